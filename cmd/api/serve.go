package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/shzded/MediCall-AI/internal/archive"
	"github.com/shzded/MediCall-AI/internal/audit"
	"github.com/shzded/MediCall-AI/internal/auth"
	"github.com/shzded/MediCall-AI/internal/calls"
	"github.com/shzded/MediCall-AI/internal/enrichment"
	"github.com/shzded/MediCall-AI/internal/httpapi"
	"github.com/shzded/MediCall-AI/internal/notify"
	"github.com/shzded/MediCall-AI/internal/openai"
	"github.com/shzded/MediCall-AI/internal/reporting"
	"github.com/shzded/MediCall-AI/internal/stats"
	"github.com/shzded/MediCall-AI/internal/telephony"
	"github.com/shzded/MediCall-AI/migrations"
	"github.com/shzded/MediCall-AI/pkg/logger"
	"github.com/shzded/MediCall-AI/pkg/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, webhook receiver and enrichment workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		autoMigrate, _ := cmd.Flags().GetBool("migrate")
		return serve(autoMigrate)
	},
}

func init() {
	serveCmd.Flags().Bool("migrate", false, "apply pending migrations before serving")
}

func serve(autoMigrate bool) error {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := bootstrap()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	db, err := openDB(rootCtx, cfg)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()
	if autoMigrate {
		applied, err := utils.Migrate(rootCtx, db, migrations.FS, migrations.Dir)
		if err != nil {
			return err
		}
		log.Info("migrations applied", "versions", applied)
	}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
	}

	var archiver *archive.S3Archiver
	if cfg.S3.Bucket != "" {
		archiver, err = archive.NewS3Archiver(archive.Config(cfg.S3))
		if err != nil {
			return fmt.Errorf("s3: %w", err)
		}
	}

	store := calls.NewPostgresStore(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	hub := notify.NewHub(cfg.App.CORSOrigins, log)

	callSvc := calls.NewService(store, auditSvc, hub)
	if archiver != nil {
		callSvc.WithRecordingRemover(archiver)
	}

	var statsOpts []stats.Option
	if rdb != nil {
		statsOpts = append(statsOpts, stats.WithCache(stats.NewRedisCache(rdb, ""), cfg.Stats.CacheTTL))
	}
	engine := stats.NewEngine(store, statsOpts...)

	ai := openai.NewClient(openai.Config(cfg.OpenAI))
	if !ai.Configured() {
		log.Warn("OPENAI_API_KEY not set, calls will stay provisional")
	}

	dispatcher := enrichment.NewDispatcher(cfg.Enrichment.QueueSize, cfg.Enrichment.Workers, cfg.Enrichment.TaskTimeout, log)
	deps := enrichment.Deps{
		Store:       store,
		Fetcher:     telephony.NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, time.Minute),
		Transcriber: ai,
		Analyzer:    ai,
		Publisher:   hub,
		Queue:       dispatcher,
	}
	if archiver != nil {
		deps.Archiver = archiver
	}
	if rdb != nil && cfg.Enrichment.ProviderConcurrency > 0 {
		deps.Limiter = enrichment.NewRedisLimiter(rdb, "", cfg.Enrichment.ProviderConcurrency, cfg.Enrichment.TaskTimeout)
	}
	pipeline := enrichment.NewPipeline(deps, enrichment.Config{
		MaxAttempts: cfg.Enrichment.MaxAttempts,
		ClaimTTL:    cfg.Enrichment.TaskTimeout + time.Minute,
	})

	// Workers outlive the request that queued their task.
	workCtx, cancelWork := context.WithCancel(logger.With(context.Background(), log))
	defer cancelWork()
	dispatcher.Start(workCtx, pipeline.Enrich)

	sweepCtx, cancelSweep := context.WithCancel(workCtx)
	sweeper := enrichment.NewSweeper(store, pipeline, cfg.Enrichment.SweepInterval, cfg.Enrichment.StaleAfter, log)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(sweepCtx)
	}()

	h := httpapi.Handlers{
		Auth:    authManager,
		Audit:   auditSvc,
		Calls:   callSvc,
		Stats:   engine,
		Reports: reporting.NewService(engine, callSvc),
		Hub:     hub,
		Ready: func(ctx context.Context) error {
			return utils.HealthCheck(ctx, db, 2*time.Second)
		},
		Queue: dispatcher.Stats,
	}
	tw := telephony.TwilioWebhookHandler{Intake: pipeline, PublicBaseURL: cfg.Twilio.PublicBaseURL}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/api/health"))
	registerRoutes(r, routeDeps{
		handlers:      h,
		twilio:        tw,
		authManager:   authManager,
		twilioToken:   cfg.Twilio.AuthToken,
		publicBaseURL: cfg.Twilio.PublicBaseURL,
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.App.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", logger.HeaderRequestID},
		ExposedHeaders:   []string{"Content-Disposition", logger.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	hub.Close()

	cancelSweep()
	<-sweepDone
	// Queued tasks get the remaining budget; anything unfinished stays pending for the
	// next process's sweeper.
	dispatcher.Stop(shutdownCtx)
	cancelWork()

	log.Info("shutdown complete", "enrichment", dispatcher.Stats())
	return nil
}
