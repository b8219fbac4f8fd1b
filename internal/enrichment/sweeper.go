package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shzded/MediCall-AI/internal/calls"
	"github.com/shzded/MediCall-AI/pkg/logger"
)

// Sweeper periodically re-queues records whose enrichment is still pending long after
// intake, for tasks dropped by a full queue or lost with a restarted process.
type Sweeper struct {
	store      calls.Store
	pipeline   *Pipeline
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	log        *slog.Logger
	clock      func() time.Time
}

func NewSweeper(store calls.Store, p *Pipeline, interval, staleAfter time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Sweeper{
		store:      store,
		pipeline:   p,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      50,
		log:        log,
		clock:      time.Now,
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		if n, err := s.SweepOnce(ctx); err != nil {
			s.log.Warn("enrichment sweep failed", "err", err)
		} else if n > 0 {
			s.log.Info("stale enrichment requeued", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// SweepOnce requeues up to one batch of stale records and returns how many were queued.
// Records this process still holds a task for are skipped. It stops early when the
// queue refuses work.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.clock().Add(-s.staleAfter)
	stale, err := s.store.ListStaleEnrichment(ctx, cutoff, s.batch)
	if err != nil {
		return 0, err
	}
	ctx = logger.With(ctx, s.log)
	queued := 0
	for _, rec := range stale {
		err := s.pipeline.Resubmit(ctx, rec)
		if errors.Is(err, ErrAlreadyQueued) || errors.Is(err, ErrNotEligible) {
			continue
		}
		if err != nil {
			break
		}
		queued++
	}
	return queued, nil
}
