package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shzded/MediCall-AI/internal/calls"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByCall(ctx context.Context, callID int64, limit int) ([]Event, error)
}

// Service logs who changed what. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if strings.TrimSpace(string(e.Type)) == "" {
		return ErrInvalidEvent
	}
	if e.Metadata != "" && !json.Valid([]byte(e.Metadata)) {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogCallAction records a staff mutation of a call record.
func (s *Service) LogCallAction(ctx context.Context, action string, callID int64, actor calls.Actor, detail string) error {
	id := callID
	return s.Append(ctx, Event{
		Type:        EventType(action),
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		CallID:      &id,
		Message:     detail,
	})
}

// LogAuth records token issuance for a user.
func (s *Service) LogAuth(ctx context.Context, t EventType, userID, role, ip string) error {
	return s.Append(ctx, Event{
		Type:        t,
		ActorUserID: userID,
		ActorRole:   role,
		IPAddress:   ip,
	})
}

// History returns the newest events for one call first.
func (s *Service) History(ctx context.Context, callID int64, limit int) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListByCall(ctx, callID, limit)
}

var _ calls.AuditLogger = (*Service)(nil)
