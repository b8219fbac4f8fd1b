package calls

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/shzded/MediCall-AI/migrations"
	"github.com/shzded/MediCall-AI/pkg/utils"
)

// openTestStore connects to the database named by MEDICALL_TEST_DATABASE_URL, applies
// the migrations and empties the calls table. Tests are skipped when it is unset.
func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("MEDICALL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MEDICALL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := utils.OpenPostgres(ctx, "pgx", dsn, utils.PostgresPoolConfig{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := utils.Migrate(ctx, db, migrations.FS, migrations.Dir); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE calls RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewPostgresStore(db)
}

func TestPostgresStore_MarkCallbackCompletedIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	rec, err := s.Create(ctx, NewProvisional("+43 1", time.Minute, t0, "", ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, changed, err := s.MarkCallbackCompleted(ctx, rec.ID, t0.Add(time.Hour))
	if err != nil || !changed {
		t.Fatalf("first completion: %v %v", changed, err)
	}
	second, changed, err := s.MarkCallbackCompleted(ctx, rec.ID, t0.Add(2*time.Hour))
	if err != nil || changed {
		t.Fatalf("second completion must be a no-op: %v %v", changed, err)
	}
	if second.CallbackCompletedAt == nil || !second.CallbackCompletedAt.Equal(*first.CallbackCompletedAt) {
		t.Fatalf("completion time changed: %v -> %v", first.CallbackCompletedAt, second.CallbackCompletedAt)
	}
	if _, _, err := s.MarkCallbackCompleted(ctx, rec.ID+1000, t0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresStore_Aggregates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	vienna := time.FixedZone("CET", 3600)
	mk := func(at time.Time, symptoms ...string) {
		rec := NewProvisional("p", time.Minute, at, "", "")
		rec.Symptoms = symptoms
		if _, err := s.Create(ctx, rec); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	mk(day.Add(9*time.Hour), "Fieber", "Husten")
	// 00:30 local time is still the previous UTC day.
	mk(time.Date(2025, 3, 5, 0, 30, 0, 0, vienna), "Fieber")
	mk(day.Add(24*time.Hour), "Husten", "Fieber")

	daily, err := s.DailyCounts(ctx, day, day.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("daily counts: %v", err)
	}
	if len(daily) != 2 || !daily[0].Day.Equal(day) || daily[0].Count != 2 || daily[1].Count != 1 {
		t.Fatalf("unexpected UTC day buckets %+v", daily)
	}

	syms, err := s.SymptomCounts(ctx, 10)
	if err != nil {
		t.Fatalf("symptom counts: %v", err)
	}
	if len(syms) != 2 || syms[0] != (SymptomCount{Symptom: "Fieber", Count: 3}) || syms[1] != (SymptomCount{Symptom: "Husten", Count: 2}) {
		t.Fatalf("unexpected symptom counts %+v", syms)
	}
}

func TestPostgresStore_EnrichmentAppliedOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	rec, err := s.Create(ctx, NewProvisional("+43 1", time.Minute, t0, "CA1", "https://rec/1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		lost    int
	)
	for _, name := range []string{"Maria", "Anna", "Klaus"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := s.ApplyEnrichment(ctx, rec.ID, Enrichment{CallerName: name, Urgency: UrgencyLow, Attempts: 1}, t0)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, ErrAlreadyEnriched):
				lost++
			default:
				t.Errorf("apply %s: %v", name, err)
			}
		}(name)
	}
	wg.Wait()
	if applied != 1 || lost != 2 {
		t.Fatalf("expected exactly one apply, got %d applied %d lost", applied, lost)
	}
}

func TestPostgresStore_ClaimEnrichment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	rec, err := s.Create(ctx, NewProvisional("+43 1", time.Minute, t0, "CA2", "https://rec/2"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if ok, err := s.ClaimEnrichment(ctx, rec.ID, t0, t0.Add(-10*time.Minute)); err != nil || !ok {
		t.Fatalf("first claim: %v %v", ok, err)
	}
	if ok, _ := s.ClaimEnrichment(ctx, rec.ID, t0.Add(time.Minute), t0.Add(-9*time.Minute)); ok {
		t.Fatalf("live claim must not be taken")
	}
	stale, err := s.ListStaleEnrichment(ctx, t0.Add(-time.Minute), 10)
	if err != nil || len(stale) != 0 {
		t.Fatalf("claimed record listed as stale: %+v %v", stale, err)
	}
	if err := s.ReleaseEnrichment(ctx, rec.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	stale, _ = s.ListStaleEnrichment(ctx, t0.Add(time.Minute), 10)
	if len(stale) != 1 || stale[0].ID != rec.ID {
		t.Fatalf("released record must be stale again, got %+v", stale)
	}

	if ok, _ := s.ClaimEnrichment(ctx, rec.ID, t0.Add(2*time.Minute), t0); !ok {
		t.Fatalf("released record must be claimable")
	}
	out, err := s.ApplyEnrichment(ctx, rec.ID, Enrichment{CallerName: "Maria", Urgency: UrgencyHigh, Attempts: 1}, t0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.EnrichmentClaimedAt != nil || out.EnrichmentStatus != EnrichmentSucceeded {
		t.Fatalf("apply must finish the claim, got %+v", out)
	}
	if ok, _ := s.ClaimEnrichment(ctx, rec.ID, t0.Add(time.Hour), t0.Add(time.Hour)); ok {
		t.Fatalf("enriched record must not be claimable")
	}
}
