package calls

import (
	"context"
	"fmt"
	"time"

	"github.com/shzded/MediCall-AI/pkg/logger"
)

// Actor identifies the staff member behind a mutation.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

// Audit actions recorded for staff mutations.
const (
	ActionStatusToggled     = "call.status_toggled"
	ActionNotesUpdated      = "call.notes_updated"
	ActionCallbackCompleted = "call.callback_completed"
	ActionDeleted           = "call.deleted"
)

// Change notifications published to live dashboards.
const (
	EventCreated          = "call.created"
	EventEnriched         = "call.enriched"
	EventEnrichmentFailed = "call.enrichment_failed"
	EventUpdated          = "call.updated"
	EventDeleted          = "call.deleted"
)

// AuditLogger records staff mutations. Implementations are best-effort.
type AuditLogger interface {
	LogCallAction(ctx context.Context, action string, callID int64, actor Actor, detail string) error
}

// Publisher fans change notifications out to connected clients.
type Publisher interface {
	Publish(ctx context.Context, eventType string, callID int64)
}

// RecordingRemover deletes the archived audio of a removed call.
type RecordingRemover interface {
	Delete(ctx context.Context, callID int64, occurredAt time.Time) error
}

// Page is one slice of a filtered, sorted record listing.
type Page struct {
	Calls []CallRecord `json:"calls"`
	Total int          `json:"total"`
	Skip  int          `json:"skip"`
	Limit int          `json:"limit"`
}

// Service implements the staff-facing record operations.
type Service struct {
	store     Store
	audit     AuditLogger
	publisher Publisher
	recs      RecordingRemover
	clock     func() time.Time
}

func NewService(store Store, audit AuditLogger, publisher Publisher) *Service {
	return &Service{store: store, audit: audit, publisher: publisher, clock: time.Now}
}

// WithRecordingRemover makes Delete also remove archived recordings, best-effort.
func (s *Service) WithRecordingRemover(r RecordingRemover) *Service {
	s.recs = r
	return s
}

func (s *Service) List(ctx context.Context, f ListFilter) (Page, error) {
	f = f.Normalize()
	if f.Status != "" && !f.Status.Valid() {
		return Page{}, fmt.Errorf("%w: status %q", ErrInvalidArgument, f.Status)
	}
	if f.Urgency != "" && !f.Urgency.Valid() {
		return Page{}, fmt.Errorf("%w: urgency %q", ErrInvalidArgument, f.Urgency)
	}
	rows, total, err := s.store.List(ctx, f)
	if err != nil {
		return Page{}, err
	}
	return Page{Calls: rows, Total: total, Skip: f.Skip, Limit: f.Limit}, nil
}

// Recent returns the n most recent calls by call time.
func (s *Service) Recent(ctx context.Context, n int) ([]CallRecord, error) {
	rows, _, err := s.store.List(ctx, ListFilter{Limit: n, Sort: SortTime, Order: "desc"})
	return rows, err
}

func (s *Service) Get(ctx context.Context, id int64) (CallRecord, error) {
	if id <= 0 {
		return CallRecord{}, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

func (s *Service) ToggleStatus(ctx context.Context, actor Actor, id int64) (CallRecord, error) {
	if id <= 0 {
		return CallRecord{}, ErrNotFound
	}
	rec, err := s.store.ToggleStatus(ctx, id, s.clock())
	if err != nil {
		return CallRecord{}, err
	}
	s.record(ctx, ActionStatusToggled, rec.ID, actor, string(rec.Status))
	s.publish(ctx, EventUpdated, rec.ID)
	return rec, nil
}

func (s *Service) SetNotes(ctx context.Context, actor Actor, id int64, notes string) (CallRecord, error) {
	if id <= 0 {
		return CallRecord{}, ErrNotFound
	}
	rec, err := s.store.SetNotes(ctx, id, notes, s.clock())
	if err != nil {
		return CallRecord{}, err
	}
	s.record(ctx, ActionNotesUpdated, rec.ID, actor, "")
	s.publish(ctx, EventUpdated, rec.ID)
	return rec, nil
}

// MarkCallbackCompleted is idempotent: repeating it returns the record unchanged.
func (s *Service) MarkCallbackCompleted(ctx context.Context, actor Actor, id int64) (CallRecord, error) {
	if id <= 0 {
		return CallRecord{}, ErrNotFound
	}
	rec, changed, err := s.store.MarkCallbackCompleted(ctx, id, s.clock())
	if err != nil {
		return CallRecord{}, err
	}
	if changed {
		s.record(ctx, ActionCallbackCompleted, rec.ID, actor, "")
		s.publish(ctx, EventUpdated, rec.ID)
	}
	return rec, nil
}

func (s *Service) Delete(ctx context.Context, actor Actor, id int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	var archived *CallRecord
	if s.recs != nil {
		rec, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec.RecordingArchiveURL != nil {
			archived = &rec
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, ActionDeleted, id, actor, "")
	s.publish(ctx, EventDeleted, id)

	if archived != nil {
		if err := s.recs.Delete(ctx, id, archived.OccurredAt); err != nil {
			logger.From(ctx).Warn("archived recording not removed", "call_id", id, "err", err)
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, action string, id int64, actor Actor, detail string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogCallAction(ctx, action, id, actor, detail); err != nil {
		logger.From(ctx).Warn("audit append failed", "action", action, "call_id", id, "err", err)
	}
}

func (s *Service) publish(ctx context.Context, eventType string, id int64) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, eventType, id)
	}
}
