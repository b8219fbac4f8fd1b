package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shzded/MediCall-AI/internal/calls"
	"github.com/shzded/MediCall-AI/internal/stats"
	"github.com/shzded/MediCall-AI/pkg/utils"
)

type demoCall struct {
	name     string
	phone    string
	urgency  calls.Urgency
	ago      time.Duration
	secs     int64
	summary  string
	symptoms []string
	callback bool
}

var demoCalls = []demoCall{
	{"Maria Huber", "+43 660 1234567", calls.UrgencyHigh, 25 * time.Minute, 142,
		"Starke Brustschmerzen seit einer Stunde, ausstrahlend in den linken Arm.", []string{"Brustschmerzen", "Atemnot"}, true},
	{"Thomas Gruber", "+43 664 9876543", calls.UrgencyMedium, 2 * time.Hour, 95,
		"Fieber seit drei Tagen, bittet um einen Termin.", []string{"Fieber", "Husten"}, true},
	{"Anna Steiner", "+43 676 5551234", calls.UrgencyLow, 5 * time.Hour, 48,
		"Möchte ein Folgerezept für ihr Blutdruckmedikament abholen.", []string{}, false},
	{"Klaus Berger", "+43 699 4445566", calls.UrgencyMedium, 26 * time.Hour, 120,
		"Rückenschmerzen nach dem Heben, seit gestern schlimmer.", []string{"Rückenschmerzen"}, true},
	{"Elisabeth Pichler", "+43 650 7778899", calls.UrgencyLow, 50 * time.Hour, 60,
		"Fragt nach den Öffnungszeiten über die Feiertage.", []string{}, false},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo call records",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		ctx := context.Background()

		db, err := openDB(ctx, cfg)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer db.Close()

		store := calls.NewPostgresStore(db)
		now := time.Now().UTC()
		for _, d := range demoCalls {
			rec, err := store.Create(ctx, calls.NewProvisional(d.phone, time.Duration(d.secs)*time.Second, now.Add(-d.ago), "", ""))
			if err != nil {
				return fmt.Errorf("seed %s: %w", d.name, err)
			}
			if _, err := store.ApplyEnrichment(ctx, rec.ID, calls.Enrichment{
				Transcript:        d.summary,
				CallerName:        d.name,
				Summary:           d.summary,
				Symptoms:          d.symptoms,
				Urgency:           d.urgency,
				CallbackRequested: d.callback,
			}, now); err != nil {
				return fmt.Errorf("seed %s: %w", d.name, err)
			}
			log.Info("demo call inserted", "call_id", rec.ID, "name", d.name)
		}

		// Cached aggregates predate the inserted rows.
		if cfg.RedisEnabled() {
			rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
			if err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			defer rdb.Close()
			if err := stats.NewRedisCache(rdb, "").Invalidate(ctx); err != nil {
				return fmt.Errorf("invalidate stats cache: %w", err)
			}
			log.Info("stats cache invalidated")
		}
		return nil
	},
}
