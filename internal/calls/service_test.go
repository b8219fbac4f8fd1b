package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) LogCallAction(_ context.Context, action string, _ int64, _ Actor, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func seed(t *testing.T, s Store, name, phone string, u Urgency, at time.Time) CallRecord {
	t.Helper()
	rec := NewProvisional(phone, 90*time.Second, at, "", "")
	rec.CallerName = name
	rec.Urgency = u
	out, err := s.Create(context.Background(), rec)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return out
}

func newTestService() (*Service, *MemoryStore, *recordingAudit, *recordingPublisher) {
	store := NewMemoryStore()
	audit := &recordingAudit{}
	pub := &recordingPublisher{}
	svc := NewService(store, audit, pub)
	svc.clock = func() time.Time { return time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC) }
	return svc, store, audit, pub
}

func TestService_ListSearchFilterSortPaginate(t *testing.T) {
	svc, store, _, _ := newTestService()
	base := time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC)
	seed(t, store, "Maria Huber", "+43 660 1234567", UrgencyHigh, base)
	seed(t, store, "Thomas Gruber", "+43 664 9876543", UrgencyMedium, base.Add(time.Hour))
	seed(t, store, "Anna Steiner", "+43 676 5551234", UrgencyLow, base.Add(2*time.Hour))

	page, err := svc.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || page.Limit != DefaultPageSize {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Calls[0].CallerName != "Anna Steiner" {
		t.Fatalf("expected newest first, got %s", page.Calls[0].CallerName)
	}

	page, _ = svc.List(context.Background(), ListFilter{Search: "huber"})
	if page.Total != 1 || page.Calls[0].CallerName != "Maria Huber" {
		t.Fatalf("expected name search hit, got %+v", page)
	}
	page, _ = svc.List(context.Background(), ListFilter{Search: "9876"})
	if page.Total != 1 || page.Calls[0].CallerName != "Thomas Gruber" {
		t.Fatalf("expected phone search hit, got %+v", page)
	}

	page, _ = svc.List(context.Background(), ListFilter{Urgency: UrgencyLow})
	if page.Total != 1 {
		t.Fatalf("expected urgency filter, got %d", page.Total)
	}

	page, _ = svc.List(context.Background(), ListFilter{Sort: "name", Order: "asc", Skip: 1, Limit: 1})
	if page.Total != 3 || len(page.Calls) != 1 || page.Calls[0].CallerName != "Maria Huber" {
		t.Fatalf("unexpected sorted page %+v", page)
	}

	page, _ = svc.List(context.Background(), ListFilter{Sort: "drop table", Order: "asc"})
	if page.Calls[0].CallerName != "Maria Huber" {
		t.Fatalf("expected unknown sort to fall back to time, got %s", page.Calls[0].CallerName)
	}

	if _, err := svc.List(context.Background(), ListFilter{Status: "archived"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid status error, got %v", err)
	}
}

func TestService_ToggleStatusIsInvolution(t *testing.T) {
	svc, store, audit, pub := newTestService()
	rec := seed(t, store, "Maria", "1", UrgencyHigh, time.Now())

	once, err := svc.ToggleStatus(context.Background(), Actor{UserID: "u"}, rec.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if once.Status != StatusRead {
		t.Fatalf("expected read, got %s", once.Status)
	}
	twice, _ := svc.ToggleStatus(context.Background(), Actor{UserID: "u"}, rec.ID)
	if twice.Status != rec.Status {
		t.Fatalf("expected original status back, got %s", twice.Status)
	}
	if len(audit.actions) != 2 || len(pub.events) != 2 {
		t.Fatalf("expected audit and publish per toggle, got %v %v", audit.actions, pub.events)
	}
}

func TestService_SetNotesLeavesEnrichmentFields(t *testing.T) {
	svc, store, _, _ := newTestService()
	rec := seed(t, store, "Maria", "1", UrgencyHigh, time.Now())

	out, err := svc.SetNotes(context.Background(), Actor{}, rec.ID, "Termin morgen")
	if err != nil {
		t.Fatalf("notes: %v", err)
	}
	if out.Notes == nil || *out.Notes != "Termin morgen" {
		t.Fatalf("expected notes set")
	}
	if out.CallerName != "Maria" || out.Urgency != UrgencyHigh {
		t.Fatalf("notes update touched enrichment fields: %+v", out)
	}
}

func TestService_MarkCallbackCompletedIsIdempotent(t *testing.T) {
	svc, store, audit, _ := newTestService()
	rec := seed(t, store, "Maria", "1", UrgencyHigh, time.Now())

	first, err := svc.MarkCallbackCompleted(context.Background(), Actor{}, rec.ID)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if !first.CallbackCompleted || first.CallbackCompletedAt == nil {
		t.Fatalf("expected callback completed with timestamp")
	}

	svc.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	second, err := svc.MarkCallbackCompleted(context.Background(), Actor{}, rec.ID)
	if err != nil {
		t.Fatalf("second callback: %v", err)
	}
	if !second.CallbackCompletedAt.Equal(*first.CallbackCompletedAt) {
		t.Fatalf("completion time overwritten: %v -> %v", first.CallbackCompletedAt, second.CallbackCompletedAt)
	}
	if len(audit.actions) != 1 {
		t.Fatalf("expected a single audit entry, got %v", audit.actions)
	}
}

func TestService_DeleteAndNotFound(t *testing.T) {
	svc, store, _, pub := newTestService()
	rec := seed(t, store, "Maria", "1", UrgencyHigh, time.Now())

	if err := svc.Delete(context.Background(), Actor{}, rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := svc.Delete(context.Background(), Actor{}, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := svc.ToggleStatus(context.Background(), Actor{}, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if pub.events[len(pub.events)-1] != EventDeleted {
		t.Fatalf("expected delete event, got %v", pub.events)
	}
}

func TestService_Recent(t *testing.T) {
	svc, store, _, _ := newTestService()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seed(t, store, "c", "p", UrgencyLow, base.Add(time.Duration(i)*time.Hour))
	}
	rows, err := svc.Recent(context.Background(), 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 3 || !rows[0].OccurredAt.After(rows[1].OccurredAt) {
		t.Fatalf("expected 3 newest first, got %d", len(rows))
	}
}

type recordingRemover struct {
	removed []int64
}

func (r *recordingRemover) Delete(_ context.Context, callID int64, _ time.Time) error {
	r.removed = append(r.removed, callID)
	return nil
}

func TestService_DeleteRemovesArchivedRecording(t *testing.T) {
	svc, store, _, _ := newTestService()
	rm := &recordingRemover{}
	svc.WithRecordingRemover(rm)

	plain := seed(t, store, "Anna", "1", UrgencyLow, time.Now())
	archived := seed(t, store, "Klaus", "2", UrgencyLow, time.Now())
	loc := "s3://bucket/recordings/2025/03/2.wav"
	if _, err := store.ApplyEnrichment(context.Background(), archived.ID, Enrichment{
		CallerName: "Klaus", Urgency: UrgencyLow, ArchiveURL: &loc,
	}, time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := svc.Delete(context.Background(), Actor{}, plain.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(context.Background(), Actor{}, archived.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(rm.removed) != 1 || rm.removed[0] != archived.ID {
		t.Fatalf("expected only the archived recording removed, got %v", rm.removed)
	}
}
