package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shzded/MediCall-AI/internal/calls"
	"github.com/shzded/MediCall-AI/internal/openai"
	"github.com/shzded/MediCall-AI/pkg/logger"
)

// RecordingFetcher downloads recording audio from the telephony provider.
type RecordingFetcher interface {
	FetchRecording(ctx context.Context, recordingURL string) ([]byte, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (json.RawMessage, error)
}

// Archiver copies recording audio to long-term storage and returns its location.
type Archiver interface {
	Archive(ctx context.Context, callID int64, occurredAt time.Time, audio []byte) (string, error)
}

// Limiter bounds concurrent provider calls across replicas. ok=false means the cap is
// exhausted right now.
type Limiter interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// Submitter accepts tasks for background processing.
type Submitter interface {
	Submit(t Task) error
}

// Deps are the collaborators of a Pipeline. Archiver and Limiter are optional.
type Deps struct {
	Store       calls.Store
	Fetcher     RecordingFetcher
	Transcriber Transcriber
	Analyzer    Analyzer
	Archiver    Archiver
	Limiter     Limiter
	Publisher   calls.Publisher
	Queue       Submitter
}

type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// ClaimTTL is how long a worker's claim on a record holds before another worker may
	// take the record over. It must outlive one task.
	ClaimTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 2 * time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = 10 * time.Minute
	}
	return c
}

// IntakeEvent is the recording-complete notification from the telephony gateway.
type IntakeEvent struct {
	ExternalCallID  string
	From            string
	RecordingURL    string
	DurationSeconds int
}

// Pipeline turns telephony callbacks into enriched call records.
type Pipeline struct {
	deps  Deps
	cfg   Config
	clock func() time.Time

	mu       sync.Mutex
	inflight map[int64]struct{} // queued or running in this process
}

func NewPipeline(deps Deps, cfg Config) *Pipeline {
	return &Pipeline{
		deps:     deps,
		cfg:      cfg.withDefaults(),
		clock:    time.Now,
		inflight: make(map[int64]struct{}),
	}
}

// Intake persists the provisional record and returns its id. It never waits for
// enrichment: the task is queued without blocking and a full queue is left to the
// sweeper. A repeated callback for the same external call returns the existing id.
func (p *Pipeline) Intake(ctx context.Context, ev IntakeEvent) (int64, error) {
	log := logger.From(ctx)
	now := p.clock()

	secs := ev.DurationSeconds
	if secs < 0 {
		secs = 0
	}
	extID := strings.TrimSpace(ev.ExternalCallID)
	rec := calls.NewProvisional(ev.From, time.Duration(secs)*time.Second, now,
		extID, strings.TrimSpace(ev.RecordingURL))

	created, err := p.deps.Store.Create(ctx, rec)
	if errors.Is(err, calls.ErrDuplicateExternalID) {
		existing, gerr := p.deps.Store.GetByExternalID(ctx, extID)
		if gerr != nil {
			return 0, fmt.Errorf("intake: %w", gerr)
		}
		log.Info("duplicate recording callback", "call_id", existing.ID, "external_call_id", extID)
		return existing.ID, nil
	}
	if err != nil {
		return 0, fmt.Errorf("intake: %w", err)
	}
	log = log.With("call_id", created.ID)
	p.publish(ctx, calls.EventCreated, created.ID)

	if created.RecordingURL == nil {
		log.Warn("call without recording, enrichment skipped")
		return created.ID, nil
	}
	_ = p.schedule(ctx, log, Task{CallID: created.ID, RecordingURL: *created.RecordingURL})
	log.Info("call recorded", "duration", created.Duration.String())
	return created.ID, nil
}

// Resubmit queues enrichment for a record that is still pending. It returns
// ErrAlreadyQueued when this process already holds a task for the record and
// ErrNotEligible for records that need no enrichment.
func (p *Pipeline) Resubmit(ctx context.Context, rec calls.CallRecord) error {
	if rec.RecordingURL == nil || rec.EnrichmentStatus != calls.EnrichmentPending {
		return ErrNotEligible
	}
	return p.schedule(ctx, logger.From(ctx).With("call_id", rec.ID), Task{CallID: rec.ID, RecordingURL: *rec.RecordingURL})
}

func (p *Pipeline) schedule(ctx context.Context, log *slog.Logger, t Task) error {
	if p.deps.Queue == nil {
		log.Warn("no enrichment queue configured")
		return ErrDispatcherStopped
	}
	if !p.track(t.CallID) {
		log.Debug("enrichment already queued in this process")
		return ErrAlreadyQueued
	}
	if err := p.deps.Queue.Submit(t); err != nil {
		p.untrack(t.CallID)
		log.Warn("enrichment not queued, left for sweeper", "err", err)
		return err
	}
	if err := p.deps.Store.MarkEnrichmentQueued(ctx, t.CallID, p.clock()); err != nil && !errors.Is(err, calls.ErrNotFound) {
		log.Warn("mark enrichment queued failed", "err", err)
	}
	return nil
}

func (p *Pipeline) track(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[id]; ok {
		return false
	}
	p.inflight[id] = struct{}{}
	return true
}

func (p *Pipeline) untrack(id int64) {
	p.mu.Lock()
	delete(p.inflight, id)
	p.mu.Unlock()
}

// Enrich runs fetch, transcribe, analyze and apply for one record. Stages that already
// succeeded are not repeated when a later stage is retried. A record deleted in the
// meantime is discarded without error and never recreated. Only the worker holding the
// record's claim does any work; duplicate tasks are dropped.
func (p *Pipeline) Enrich(ctx context.Context, t Task) error {
	defer p.untrack(t.CallID)
	log := logger.From(ctx).With("call_id", t.CallID)

	rec, err := p.deps.Store.Get(ctx, t.CallID)
	if errors.Is(err, calls.ErrNotFound) {
		log.Info("call deleted before enrichment, discarding")
		return nil
	}
	if err != nil {
		return fmt.Errorf("enrich: load call: %w", err)
	}
	if rec.EnrichmentStatus != calls.EnrichmentPending {
		log.Debug("call no longer pending, discarding task", "status", rec.EnrichmentStatus)
		return nil
	}
	now := p.clock()
	claimed, err := p.deps.Store.ClaimEnrichment(ctx, t.CallID, now, now.Add(-p.cfg.ClaimTTL))
	if err != nil {
		return fmt.Errorf("enrich: claim call: %w", err)
	}
	if !claimed {
		log.Info("call claimed by another worker, discarding task")
		return nil
	}

	var (
		attempts   int
		audio      []byte
		archiveURL *string
		transcript string
		analysis   *Analysis
	)
	op := func() error {
		attempts++
		if audio == nil {
			b, err := p.deps.Fetcher.FetchRecording(ctx, t.RecordingURL)
			if err != nil {
				return p.classify(log, attempts, "fetch", err)
			}
			audio = b
			archiveURL = p.archive(ctx, log, rec, audio)
		}
		if transcript == "" || analysis == nil {
			if err := p.callProviders(ctx, audio, &transcript, &analysis); err != nil {
				return p.classify(log, attempts, "analyze", err)
			}
			if analysis.UrgencyDefaulted {
				log.Warn("unrecognized urgency, filed as medium", "urgency", analysis.RawUrgency)
			}
		}

		e := analysis.Enrichment(transcript, attempts)
		e.ArchiveURL = archiveURL
		if _, err := p.deps.Store.ApplyEnrichment(ctx, t.CallID, e, p.clock()); err != nil {
			if errors.Is(err, calls.ErrNotFound) || errors.Is(err, calls.ErrAlreadyEnriched) {
				return backoff.Permanent(err)
			}
			return p.classify(log, attempts, "apply", err)
		}
		return nil
	}

	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(p.cfg.MaxAttempts-1)), ctx))
	switch {
	case err == nil:
		log.Info("call enriched", "attempts", attempts)
		p.publish(ctx, calls.EventEnriched, t.CallID)
		return nil
	case errors.Is(err, calls.ErrNotFound):
		log.Info("call deleted during enrichment, discarding")
		return nil
	case errors.Is(err, calls.ErrAlreadyEnriched):
		log.Info("call enriched by another worker, discarding result")
		return nil
	case errors.Is(ctx.Err(), context.Canceled):
		// Shutdown: leave the record pending for the sweeper of the next process.
		log.Info("enrichment interrupted", "attempts", attempts)
		p.release(ctx, log, t.CallID)
		return err
	case errors.Is(err, ErrProviderBusy):
		// Capacity, not the call, is the problem. The sweeper picks the record up later.
		log.Warn("provider capacity exhausted, call left pending", "attempts", attempts)
		p.release(ctx, log, t.CallID)
		return err
	}

	if errors.Is(err, ErrServiceUnconfigured) {
		log.Info("enrichment services not configured, call left provisional")
	} else {
		log.Error("enrichment failed", "attempts", attempts, "err", err)
	}
	p.markFailed(ctx, log, t.CallID, err, attempts)
	return err
}

func (p *Pipeline) callProviders(ctx context.Context, audio []byte, transcript *string, analysis **Analysis) error {
	if p.deps.Limiter != nil {
		release, ok, err := p.deps.Limiter.Acquire(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrProviderBusy
		}
		defer release()
	}

	if *transcript == "" {
		text, err := p.deps.Transcriber.Transcribe(ctx, audio, "recording.wav")
		if errors.Is(err, openai.ErrEmptyResponse) {
			return ErrEmptyTranscript
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return ErrEmptyTranscript
		}
		*transcript = text
	}
	raw, err := p.deps.Analyzer.Analyze(ctx, *transcript)
	if err != nil {
		return err
	}
	a, err := ParseAnalysis(raw)
	if err != nil {
		return err
	}
	*analysis = &a
	return nil
}

func (p *Pipeline) classify(log *slog.Logger, attempt int, stage string, err error) error {
	if permanent(err) {
		return backoff.Permanent(err)
	}
	log.Warn("enrichment attempt failed", "stage", stage, "attempt", attempt, "err", err)
	return err
}

// archive is best-effort: a failed upload never fails the enrichment.
func (p *Pipeline) archive(ctx context.Context, log *slog.Logger, rec calls.CallRecord, audio []byte) *string {
	if p.deps.Archiver == nil {
		return nil
	}
	if rec.RecordingArchiveURL != nil {
		return rec.RecordingArchiveURL
	}
	loc, err := p.deps.Archiver.Archive(ctx, rec.ID, rec.OccurredAt, audio)
	if err != nil {
		log.Warn("recording archive failed", "err", err)
		return nil
	}
	log.Debug("recording archived", "location", path.Base(loc))
	return &loc
}

// release gives the claim back so the next sweep can requeue the record.
func (p *Pipeline) release(ctx context.Context, log *slog.Logger, id int64) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.deps.Store.ReleaseEnrichment(wctx, id); err != nil {
		log.Warn("release enrichment claim failed", "err", err)
	}
}

func (p *Pipeline) markFailed(ctx context.Context, log *slog.Logger, id int64, cause error, attempts int) {
	// The task context may already be past its deadline.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := p.deps.Store.MarkEnrichmentFailed(wctx, id, cause.Error(), attempts, p.clock())
	if errors.Is(err, calls.ErrNotFound) {
		return
	}
	if err != nil {
		log.Error("mark enrichment failed", "err", err)
		return
	}
	p.publish(ctx, calls.EventEnrichmentFailed, id)
}

func (p *Pipeline) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialInterval
	b.MaxInterval = p.cfg.MaxInterval
	b.MaxElapsedTime = 0
	return b
}

func (p *Pipeline) publish(ctx context.Context, eventType string, id int64) {
	if p.deps.Publisher != nil {
		p.deps.Publisher.Publish(ctx, eventType, id)
	}
}
