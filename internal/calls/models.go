package calls

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// UnknownCaller is the caller name of a record that has not been enriched (or whose
// caller did not state a name).
const UnknownCaller = "Unbekannt"

// ProcessingSummary is the summary shown while enrichment is outstanding.
const ProcessingSummary = "Anruf wird verarbeitet…"

var (
	ErrNotFound        = errors.New("call not found")
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDuplicateExternalID means a record for the same telephony call already exists.
	ErrDuplicateExternalID = errors.New("call already recorded")
	// ErrAlreadyEnriched means another task applied enrichment to the record first.
	ErrAlreadyEnriched = errors.New("call already enriched")
)

// CallRecord is one inbound call to the practice.
//
// Ownership: CallerName, Summary, Symptoms, Urgency, CallbackRequested and Transcript are
// written by enrichment. Status, Notes and the callback completion fields are written by
// practice staff. Neither side touches the other's fields.
type CallRecord struct {
	ID         int64     `json:"id"`
	CallerName string    `json:"name"`
	Phone      string    `json:"phone"`
	Urgency    Urgency   `json:"urgency"`
	OccurredAt time.Time `json:"time"`
	Duration   Duration  `json:"duration"`
	Summary    string    `json:"summary"`
	Status     Status    `json:"status"`
	Symptoms   []string  `json:"symptoms"`

	CallbackRequested   bool       `json:"callback_requested"`
	CallbackCompleted   bool       `json:"callback_completed"`
	CallbackCompletedAt *time.Time `json:"callback_completed_at"`

	Notes          *string `json:"notes"`
	Transcript     *string `json:"transcript"`
	ExternalCallID *string `json:"external_call_id"`

	RecordingURL        *string          `json:"-"`
	RecordingArchiveURL *string          `json:"recording_archive_url,omitempty"`
	EnrichmentStatus    EnrichmentStatus `json:"enrichment_status"`
	EnrichmentAttempts  int              `json:"enrichment_attempts"`
	EnrichmentError     *string          `json:"enrichment_error,omitempty"`
	EnrichmentQueuedAt  *time.Time       `json:"-"`
	EnrichmentClaimedAt *time.Time       `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Urgency is the triage level of a call.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// Urgencies lists every urgency level, most urgent first.
var Urgencies = []Urgency{UrgencyHigh, UrgencyMedium, UrgencyLow}

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyHigh, UrgencyMedium, UrgencyLow:
		return true
	}
	return false
}

// ParseUrgency accepts an urgency level in any letter case.
func ParseUrgency(s string) (Urgency, error) {
	u := Urgency(strings.ToLower(strings.TrimSpace(s)))
	if !u.Valid() {
		return "", fmt.Errorf("%w: urgency %q", ErrInvalidArgument, s)
	}
	return u, nil
}

// Status is the read state of a call in the staff dashboard.
type Status string

const (
	StatusUnread Status = "unread"
	StatusRead   Status = "read"
)

func (s Status) Valid() bool {
	return s == StatusUnread || s == StatusRead
}

// Toggled returns the opposite read state.
func (s Status) Toggled() Status {
	if s == StatusUnread {
		return StatusRead
	}
	return StatusUnread
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: status %q", ErrInvalidArgument, s)
	}
	return st, nil
}

// EnrichmentStatus tracks the background analysis of a recording.
type EnrichmentStatus string

const (
	EnrichmentPending   EnrichmentStatus = "pending"
	EnrichmentSucceeded EnrichmentStatus = "succeeded"
	EnrichmentFailed    EnrichmentStatus = "failed"
)

// Enrichment is the result of analysing a recording. Applying it replaces every
// enrichment-owned field of a record at once.
type Enrichment struct {
	Transcript        string
	CallerName        string
	Summary           string
	Symptoms          []string
	Urgency           Urgency
	CallbackRequested bool
	Attempts          int
	ArchiveURL        *string
}

// NewProvisional builds the record created when a call arrives, before any enrichment.
func NewProvisional(phone string, duration time.Duration, occurredAt time.Time, externalCallID, recordingURL string) CallRecord {
	if strings.TrimSpace(phone) == "" {
		phone = UnknownCaller
	}
	rec := CallRecord{
		CallerName: UnknownCaller,
		Phone:      phone,
		Urgency:    UrgencyMedium,
		OccurredAt: occurredAt.UTC(),
		Duration:   Duration(duration.Truncate(time.Second)),
		Summary:    ProcessingSummary,
		Status:     StatusUnread,
		Symptoms:   []string{},
	}
	if externalCallID != "" {
		rec.ExternalCallID = &externalCallID
	}
	if recordingURL != "" {
		rec.RecordingURL = &recordingURL
		rec.EnrichmentStatus = EnrichmentPending
	} else {
		rec.EnrichmentStatus = EnrichmentFailed
		reason := "no recording"
		rec.EnrichmentError = &reason
	}
	return rec
}
