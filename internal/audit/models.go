package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted (enforced by a trigger in Postgres).
// - actor and ip capture are best-effort; do not block staff actions on audit failures.
type Event struct {
	ID string `json:"id"`

	// Type is the action, e.g. "call.deleted".
	Type EventType `json:"type"`

	ActorUserID string `json:"actor_user_id,omitempty"`
	ActorRole   string `json:"actor_role,omitempty"`
	// IPAddress is the client IP as resolved by gin.
	IPAddress string `json:"ip_address,omitempty"`

	CallID *int64 `json:"call_id,omitempty"`

	// Message is a short human-readable description.
	Message string `json:"message,omitempty"`
	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeTokenIssued    EventType = "auth.token_issued"
	EventTypeTokenRefreshed EventType = "auth.token_refreshed"
)
