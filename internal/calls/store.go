package calls

import (
	"context"
	"strings"
	"time"
)

// Store is the persistence contract for call records.
//
// Every mutating method is atomic per record. Methods addressing a record by id return
// ErrNotFound when it does not exist; in particular ApplyEnrichment never recreates a
// record deleted while its enrichment was in flight.
type Store interface {
	Create(ctx context.Context, rec CallRecord) (CallRecord, error)
	Get(ctx context.Context, id int64) (CallRecord, error)
	GetByExternalID(ctx context.Context, externalID string) (CallRecord, error)
	List(ctx context.Context, f ListFilter) ([]CallRecord, int, error)

	ToggleStatus(ctx context.Context, id int64, now time.Time) (CallRecord, error)
	SetNotes(ctx context.Context, id int64, notes string, now time.Time) (CallRecord, error)
	// MarkCallbackCompleted reports changed=false when the callback was already completed;
	// the original completion time is kept.
	MarkCallbackCompleted(ctx context.Context, id int64, now time.Time) (rec CallRecord, changed bool, err error)
	Delete(ctx context.Context, id int64) error

	// ApplyEnrichment returns ErrAlreadyEnriched when the record was enriched before;
	// enrichment-owned fields are written at most once.
	ApplyEnrichment(ctx context.Context, id int64, e Enrichment, now time.Time) (CallRecord, error)
	// MarkEnrichmentFailed never downgrades a succeeded enrichment.
	MarkEnrichmentFailed(ctx context.Context, id int64, reason string, attempts int, now time.Time) error
	// MarkEnrichmentQueued stamps the time a record was last handed to the worker pool.
	MarkEnrichmentQueued(ctx context.Context, id int64, at time.Time) error
	// ClaimEnrichment marks a pending record as being worked on. It reports false when the
	// record is no longer pending or another worker holds a claim made at or after
	// expiredBefore.
	ClaimEnrichment(ctx context.Context, id int64, now, expiredBefore time.Time) (bool, error)
	// ReleaseEnrichment drops the claim so the record can be picked up again.
	ReleaseEnrichment(ctx context.Context, id int64) error
	// ListStaleEnrichment returns pending records with a recording that were last queued
	// before cutoff (or never) and are not claimed since cutoff.
	ListStaleEnrichment(ctx context.Context, cutoff time.Time, limit int) ([]CallRecord, error)

	CountCalls(ctx context.Context, f CountFilter) (int, error)
	SumDurations(ctx context.Context, from, to time.Time) (total time.Duration, count int, err error)
	DailyCounts(ctx context.Context, from, to time.Time) ([]DayCount, error)
	UrgencyCounts(ctx context.Context) (map[Urgency]int, error)
	SymptomCounts(ctx context.Context, limit int) ([]SymptomCount, error)
}

// ListFilter selects a page of records for the dashboard.
type ListFilter struct {
	Search  string
	Status  Status
	Urgency Urgency
	Skip    int
	Limit   int
	Sort    string
	Order   string
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Normalize applies paging defaults and maps Sort and Order onto the supported set.
func (f ListFilter) Normalize() ListFilter {
	out := f
	out.Search = strings.TrimSpace(out.Search)
	if out.Skip < 0 {
		out.Skip = 0
	}
	if out.Limit <= 0 {
		out.Limit = DefaultPageSize
	}
	if out.Limit > MaxPageSize {
		out.Limit = MaxPageSize
	}
	out.Sort = SortKey(out.Sort)
	if strings.EqualFold(out.Order, "asc") {
		out.Order = "asc"
	} else {
		out.Order = "desc"
	}
	return out
}

// Sort keys accepted by List. Anything else sorts by call time.
const (
	SortTime      = "time"
	SortName      = "name"
	SortPhone     = "phone"
	SortUrgency   = "urgency"
	SortStatus    = "status"
	SortDuration  = "duration"
	SortCreatedAt = "created_at"
	SortUpdatedAt = "updated_at"
)

func SortKey(s string) string {
	switch k := strings.ToLower(strings.TrimSpace(s)); k {
	case SortName, SortPhone, SortUrgency, SortStatus, SortDuration, SortCreatedAt, SortUpdatedAt:
		return k
	default:
		return SortTime
	}
}

// CountFilter restricts CountCalls. Zero values do not filter; the time range is
// half-open [From, To) over OccurredAt.
type CountFilter struct {
	From    time.Time
	To      time.Time
	Urgency Urgency
	Status  Status
}

func (f CountFilter) matches(r CallRecord) bool {
	if !f.From.IsZero() && r.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.OccurredAt.Before(f.To) {
		return false
	}
	if f.Urgency != "" && r.Urgency != f.Urgency {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// DayCount is the number of calls on one UTC calendar day.
type DayCount struct {
	Day   time.Time
	Count int
}

// SymptomCount is how often a symptom string occurs across all records.
type SymptomCount struct {
	Symptom string `json:"symptom"`
	Count   int    `json:"count"`
}
