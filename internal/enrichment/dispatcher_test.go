package enrichment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shzded/MediCall-AI/internal/calls"
)

func TestDispatcher_ProcessesAndDrains(t *testing.T) {
	d := NewDispatcher(10, 2, time.Second, nil)
	var n atomic.Int64
	d.Start(context.Background(), func(ctx context.Context, task Task) error {
		n.Add(1)
		if task.CallID%2 == 0 {
			return errors.New("boom")
		}
		return nil
	})
	for i := int64(1); i <= 6; i++ {
		if err := d.Submit(Task{CallID: i}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d.Stop(ctx)

	if n.Load() != 6 {
		t.Fatalf("expected 6 processed, got %d", n.Load())
	}
	s := d.Stats()
	if s.Processed != 6 || s.Failed != 3 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if err := d.Submit(Task{CallID: 7}); !errors.Is(err, ErrDispatcherStopped) {
		t.Fatalf("expected stopped error, got %v", err)
	}
}

func TestDispatcher_SubmitNeverBlocks(t *testing.T) {
	d := NewDispatcher(1, 1, time.Second, nil)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Start(context.Background(), func(ctx context.Context, task Task) error {
		started <- struct{}{}
		<-release
		return nil
	})
	defer func() {
		close(release)
		d.Stop(context.Background())
	}()

	if err := d.Submit(Task{CallID: 1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started
	if err := d.Submit(Task{CallID: 2}); err != nil {
		t.Fatalf("submit into free slot: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- d.Submit(Task{CallID: 3}) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Fatalf("expected queue full, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("submit blocked on a full queue")
	}
	if d.Stats().Dropped != 1 {
		t.Fatalf("expected one dropped task")
	}
}

func TestDispatcher_AppliesTaskTimeoutAndRecoversPanics(t *testing.T) {
	d := NewDispatcher(4, 1, 20*time.Millisecond, nil)
	var mu sync.Mutex
	var deadlineErr error
	d.Start(context.Background(), func(ctx context.Context, task Task) error {
		if task.CallID == 1 {
			panic("bad task")
		}
		<-ctx.Done()
		mu.Lock()
		deadlineErr = ctx.Err()
		mu.Unlock()
		return ctx.Err()
	})
	_ = d.Submit(Task{CallID: 1})
	_ = d.Submit(Task{CallID: 2})
	d.Stop(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(deadlineErr, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", deadlineErr)
	}
	if d.Stats().Failed != 2 {
		t.Fatalf("expected panic and timeout counted as failures, got %+v", d.Stats())
	}
}

func TestPipelineWithDispatcher_EndToEnd(t *testing.T) {
	store := calls.NewMemoryStore()
	d := NewDispatcher(8, 2, time.Second, nil)
	p := NewPipeline(Deps{
		Store:       store,
		Fetcher:     &fakeFetcher{},
		Transcriber: &fakeTranscriber{},
		Analyzer:    &fakeAnalyzer{out: validAnalysis},
		Queue:       d,
	}, Config{InitialInterval: time.Millisecond})
	d.Start(context.Background(), p.Enrich)

	id, err := p.Intake(context.Background(), IntakeEvent{ExternalCallID: "CA1", From: "+43 1", RecordingURL: "https://rec/1", DurationSeconds: 30})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	d.Stop(context.Background())

	rec, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.EnrichmentStatus != calls.EnrichmentSucceeded || rec.CallerName != "Maria Huber" {
		t.Fatalf("expected enriched record, got %+v", rec)
	}
}
