package calls

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and local runs without Postgres.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]CallRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int64]CallRecord)}
}

func (s *MemoryStore) Create(_ context.Context, rec CallRecord) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ExternalCallID != nil {
		for _, r := range s.rows {
			if r.ExternalCallID != nil && *r.ExternalCallID == *rec.ExternalCallID {
				return CallRecord{}, ErrDuplicateExternalID
			}
		}
	}
	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if rec.Symptoms == nil {
		rec.Symptoms = []string{}
	}
	s.rows[rec.ID] = clone(rec)
	return clone(rec), nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return clone(r), nil
}

func (s *MemoryStore) GetByExternalID(_ context.Context, externalID string) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ExternalCallID != nil && *r.ExternalCallID == externalID {
			return clone(r), nil
		}
	}
	return CallRecord{}, ErrNotFound
}

func (s *MemoryStore) List(_ context.Context, f ListFilter) ([]CallRecord, int, error) {
	f = f.Normalize()
	needle := strings.ToLower(f.Search)

	s.mu.Lock()
	var matched []CallRecord
	for _, r := range s.rows {
		if needle != "" && !strings.Contains(strings.ToLower(r.CallerName), needle) && !strings.Contains(strings.ToLower(r.Phone), needle) {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Urgency != "" && r.Urgency != f.Urgency {
			continue
		}
		matched = append(matched, clone(r))
	}
	s.mu.Unlock()

	less := lessBy(f.Sort)
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if f.Order == "desc" {
			a, b = b, a
		}
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.ID < b.ID
	})

	total := len(matched)
	if f.Skip >= total {
		return []CallRecord{}, total, nil
	}
	end := f.Skip + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Skip:end], total, nil
}

func lessBy(key string) func(a, b CallRecord) bool {
	switch key {
	case SortName:
		return func(a, b CallRecord) bool { return a.CallerName < b.CallerName }
	case SortPhone:
		return func(a, b CallRecord) bool { return a.Phone < b.Phone }
	case SortUrgency:
		return func(a, b CallRecord) bool { return a.Urgency < b.Urgency }
	case SortStatus:
		return func(a, b CallRecord) bool { return a.Status < b.Status }
	case SortDuration:
		return func(a, b CallRecord) bool { return a.Duration < b.Duration }
	case SortCreatedAt:
		return func(a, b CallRecord) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortUpdatedAt:
		return func(a, b CallRecord) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	default:
		return func(a, b CallRecord) bool { return a.OccurredAt.Before(b.OccurredAt) }
	}
}

func (s *MemoryStore) update(id int64, fn func(r *CallRecord) bool) (CallRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return CallRecord{}, false, ErrNotFound
	}
	changed := fn(&r)
	if changed {
		s.rows[id] = clone(r)
	}
	return clone(r), changed, nil
}

func (s *MemoryStore) ToggleStatus(_ context.Context, id int64, now time.Time) (CallRecord, error) {
	rec, _, err := s.update(id, func(r *CallRecord) bool {
		r.Status = r.Status.Toggled()
		r.UpdatedAt = now.UTC()
		return true
	})
	return rec, err
}

func (s *MemoryStore) SetNotes(_ context.Context, id int64, notes string, now time.Time) (CallRecord, error) {
	rec, _, err := s.update(id, func(r *CallRecord) bool {
		n := notes
		r.Notes = &n
		r.UpdatedAt = now.UTC()
		return true
	})
	return rec, err
}

func (s *MemoryStore) MarkCallbackCompleted(_ context.Context, id int64, now time.Time) (CallRecord, bool, error) {
	return s.update(id, func(r *CallRecord) bool {
		if r.CallbackCompleted {
			return false
		}
		at := now.UTC()
		r.CallbackCompleted = true
		r.CallbackCompletedAt = &at
		r.UpdatedAt = at
		return true
	})
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *MemoryStore) ApplyEnrichment(_ context.Context, id int64, e Enrichment, now time.Time) (CallRecord, error) {
	rec, changed, err := s.update(id, func(r *CallRecord) bool {
		if r.EnrichmentStatus == EnrichmentSucceeded {
			return false
		}
		t := e.Transcript
		r.Transcript = &t
		r.CallerName = e.CallerName
		r.Summary = e.Summary
		r.Symptoms = append([]string{}, e.Symptoms...)
		r.Urgency = e.Urgency
		r.CallbackRequested = e.CallbackRequested
		if e.ArchiveURL != nil {
			u := *e.ArchiveURL
			r.RecordingArchiveURL = &u
		}
		r.EnrichmentStatus = EnrichmentSucceeded
		r.EnrichmentAttempts = e.Attempts
		r.EnrichmentError = nil
		r.EnrichmentClaimedAt = nil
		r.UpdatedAt = now.UTC()
		return true
	})
	if err != nil {
		return CallRecord{}, err
	}
	if !changed {
		return CallRecord{}, ErrAlreadyEnriched
	}
	return rec, nil
}

func (s *MemoryStore) MarkEnrichmentFailed(_ context.Context, id int64, reason string, attempts int, now time.Time) error {
	_, _, err := s.update(id, func(r *CallRecord) bool {
		if r.EnrichmentStatus == EnrichmentSucceeded {
			return false
		}
		msg := reason
		r.EnrichmentStatus = EnrichmentFailed
		r.EnrichmentError = &msg
		r.EnrichmentAttempts = attempts
		r.EnrichmentClaimedAt = nil
		r.UpdatedAt = now.UTC()
		return true
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (s *MemoryStore) MarkEnrichmentQueued(_ context.Context, id int64, at time.Time) error {
	_, _, err := s.update(id, func(r *CallRecord) bool {
		t := at.UTC()
		r.EnrichmentQueuedAt = &t
		return true
	})
	return err
}

func (s *MemoryStore) ClaimEnrichment(_ context.Context, id int64, now, expiredBefore time.Time) (bool, error) {
	_, changed, err := s.update(id, func(r *CallRecord) bool {
		if r.EnrichmentStatus != EnrichmentPending {
			return false
		}
		if r.EnrichmentClaimedAt != nil && !r.EnrichmentClaimedAt.Before(expiredBefore) {
			return false
		}
		t := now.UTC()
		r.EnrichmentClaimedAt = &t
		return true
	})
	return changed, err
}

func (s *MemoryStore) ReleaseEnrichment(_ context.Context, id int64) error {
	_, _, err := s.update(id, func(r *CallRecord) bool {
		r.EnrichmentClaimedAt = nil
		return true
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (s *MemoryStore) ListStaleEnrichment(_ context.Context, cutoff time.Time, limit int) ([]CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CallRecord
	for _, r := range s.rows {
		if r.EnrichmentStatus != EnrichmentPending || r.RecordingURL == nil {
			continue
		}
		if r.EnrichmentQueuedAt != nil && !r.EnrichmentQueuedAt.Before(cutoff) {
			continue
		}
		if r.EnrichmentClaimedAt != nil && !r.EnrichmentClaimedAt.Before(cutoff) {
			continue
		}
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountCalls(_ context.Context, f CountFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if f.matches(r) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SumDurations(_ context.Context, from, to time.Time) (time.Duration, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := CountFilter{From: from, To: to}
	var total time.Duration
	n := 0
	for _, r := range s.rows {
		if f.matches(r) {
			total += time.Duration(r.Duration)
			n++
		}
	}
	return total, n, nil
}

func (s *MemoryStore) DailyCounts(_ context.Context, from, to time.Time) ([]DayCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := CountFilter{From: from, To: to}
	byDay := make(map[time.Time]int)
	for _, r := range s.rows {
		if f.matches(r) {
			byDay[UTCDay(r.OccurredAt)]++
		}
	}
	out := make([]DayCount, 0, len(byDay))
	for d, n := range byDay {
		out = append(out, DayCount{Day: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (s *MemoryStore) UrgencyCounts(_ context.Context) (map[Urgency]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Urgency]int, len(Urgencies))
	for _, r := range s.rows {
		out[r.Urgency]++
	}
	return out, nil
}

func (s *MemoryStore) SymptomCounts(_ context.Context, limit int) ([]SymptomCount, error) {
	s.mu.Lock()
	counts := make(map[string]int)
	for _, r := range s.rows {
		for _, sym := range r.Symptoms {
			counts[sym]++
		}
	}
	s.mu.Unlock()

	out := make([]SymptomCount, 0, len(counts))
	for sym, n := range counts {
		out = append(out, SymptomCount{Symptom: sym, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Symptom < out[j].Symptom
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UTCDay returns midnight UTC of the calendar day containing t.
func UTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func clone(r CallRecord) CallRecord {
	out := r
	if r.Symptoms != nil {
		out.Symptoms = append([]string{}, r.Symptoms...)
	}
	out.CallbackCompletedAt = copyPtr(r.CallbackCompletedAt)
	out.Notes = copyPtr(r.Notes)
	out.Transcript = copyPtr(r.Transcript)
	out.ExternalCallID = copyPtr(r.ExternalCallID)
	out.RecordingURL = copyPtr(r.RecordingURL)
	out.RecordingArchiveURL = copyPtr(r.RecordingArchiveURL)
	out.EnrichmentError = copyPtr(r.EnrichmentError)
	out.EnrichmentQueuedAt = copyPtr(r.EnrichmentQueuedAt)
	out.EnrichmentClaimedAt = copyPtr(r.EnrichmentClaimedAt)
	return out
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
