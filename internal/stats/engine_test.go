package stats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shzded/MediCall-AI/internal/calls"
)

var fixedNow = time.Date(2025, 3, 4, 15, 30, 0, 0, time.UTC)

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemoryCache() *memoryCache { return &memoryCache{data: map[string][]byte{}} }

func (c *memoryCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memoryCache) Set(_ context.Context, key string, v any, _ time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	c.sets++
	return nil
}

type failingSource struct{ calls.Store }

func (failingSource) CountCalls(context.Context, calls.CountFilter) (int, error) {
	return 0, errors.New("db down")
}

func (failingSource) SumDurations(context.Context, time.Time, time.Time) (time.Duration, int, error) {
	return 0, 0, nil
}

func add(t *testing.T, s *calls.MemoryStore, at time.Time, u calls.Urgency, secs int64, st calls.Status, symptoms ...string) {
	t.Helper()
	rec := calls.NewProvisional("+43 1", time.Duration(secs)*time.Second, at, "", "")
	rec.Urgency = u
	rec.Status = st
	rec.Symptoms = symptoms
	if _, err := s.Create(context.Background(), rec); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func newEngine(s calls.Store, opts ...Option) *Engine {
	return NewEngine(s, append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func TestSummary(t *testing.T) {
	s := calls.NewMemoryStore()
	today := calls.UTCDay(fixedNow)
	add(t, s, today, calls.UrgencyHigh, 60, calls.StatusUnread)
	add(t, s, today.Add(10*time.Hour), calls.UrgencyLow, 61, calls.StatusRead)
	add(t, s, today.Add(-time.Second), calls.UrgencyHigh, 120, calls.StatusRead)
	add(t, s, today.AddDate(0, 0, -20), calls.UrgencyHigh, 10, calls.StatusUnread)

	sum, err := newEngine(s).Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TodayCount != 2 || sum.UrgentTodayCount != 1 {
		t.Fatalf("unexpected today counters: %+v", sum)
	}
	if sum.YesterdayCount != 1 {
		t.Fatalf("expected the call one second before midnight in yesterday, got %d", sum.YesterdayCount)
	}
	if sum.MonthCount != 3 {
		t.Fatalf("expected 3 calls this month, got %d", sum.MonthCount)
	}
	if sum.UnhandledUrgentCount != 2 {
		t.Fatalf("expected 2 unhandled urgent calls, got %d", sum.UnhandledUrgentCount)
	}
	if got := sum.AvgDurationToday.String(); got != "00:01:00" {
		t.Fatalf("expected floored average 00:01:00, got %s", got)
	}
	if got := sum.AvgDurationYesterday.String(); got != "00:02:00" {
		t.Fatalf("unexpected yesterday average %s", got)
	}
	if sum.UrgentPercentage != 75 {
		t.Fatalf("expected 75%% urgent, got %v", sum.UrgentPercentage)
	}
}

func TestSummary_EmptyStore(t *testing.T) {
	sum, err := newEngine(calls.NewMemoryStore()).Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.AvgDurationToday.String() != "00:00:00" || sum.UrgentPercentage != 0 {
		t.Fatalf("unexpected empty summary %+v", sum)
	}
}

func TestSummary_SourceError(t *testing.T) {
	_, err := newEngine(failingSource{calls.NewMemoryStore()}).Summary(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDailyHistogram_ZeroFilledAndOrdered(t *testing.T) {
	s := calls.NewMemoryStore()
	today := calls.UTCDay(fixedNow)
	add(t, s, today.Add(time.Hour), calls.UrgencyLow, 1, calls.StatusUnread)
	add(t, s, today.Add(2*time.Hour), calls.UrgencyLow, 1, calls.StatusUnread)
	add(t, s, today.AddDate(0, 0, -2), calls.UrgencyLow, 1, calls.StatusUnread)
	add(t, s, today.AddDate(0, 0, -7), calls.UrgencyLow, 1, calls.StatusUnread)

	out, err := newEngine(s).DailyHistogram(context.Background(), 7)
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if len(out) != 7 {
		t.Fatalf("expected 7 buckets, got %d", len(out))
	}
	if out[0].Date != "2025-02-26" || out[6].Date != "2025-03-04" {
		t.Fatalf("unexpected range %s..%s", out[0].Date, out[6].Date)
	}
	want := []int{0, 0, 0, 0, 1, 0, 2}
	for i, w := range want {
		if out[i].Count != w {
			t.Fatalf("bucket %d (%s): want %d got %d", i, out[i].Date, w, out[i].Count)
		}
	}

	one, _ := newEngine(s).DailyHistogram(context.Background(), 1)
	if len(one) != 1 || one[0].Count != 2 {
		t.Fatalf("unexpected single-day histogram %+v", one)
	}
}

func TestDailyHistogram_InvalidDays(t *testing.T) {
	e := newEngine(calls.NewMemoryStore())
	for _, d := range []int{0, -1, MaxHistogramDays + 1} {
		if _, err := e.DailyHistogram(context.Background(), d); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("days=%d: expected invalid request, got %v", d, err)
		}
	}
}

func TestUrgencyBreakdown(t *testing.T) {
	s := calls.NewMemoryStore()
	add(t, s, fixedNow, calls.UrgencyHigh, 1, calls.StatusUnread)
	add(t, s, fixedNow, calls.UrgencyLow, 1, calls.StatusUnread)
	add(t, s, fixedNow, calls.UrgencyLow, 1, calls.StatusUnread)

	out, err := newEngine(s).UrgencyBreakdown(context.Background())
	if err != nil {
		t.Fatalf("urgency: %v", err)
	}
	if len(out) != 3 || out[0].Urgency != calls.UrgencyHigh || out[1].Urgency != calls.UrgencyMedium || out[2].Urgency != calls.UrgencyLow {
		t.Fatalf("unexpected order %+v", out)
	}
	if out[0].Percentage != 33.3 || out[1].Percentage != 0 || out[2].Percentage != 66.7 {
		t.Fatalf("unexpected percentages %+v", out)
	}
	if out[1].Count != 0 {
		t.Fatalf("expected absent level with zero count")
	}
}

func TestUrgencyBreakdown_Empty(t *testing.T) {
	out, err := newEngine(calls.NewMemoryStore()).UrgencyBreakdown(context.Background())
	if err != nil {
		t.Fatalf("urgency: %v", err)
	}
	for _, u := range out {
		if u.Count != 0 || u.Percentage != 0 {
			t.Fatalf("expected zeros, got %+v", out)
		}
	}
}

func TestTopSymptoms(t *testing.T) {
	s := calls.NewMemoryStore()
	add(t, s, fixedNow, calls.UrgencyLow, 1, calls.StatusUnread, "A", "C")
	add(t, s, fixedNow, calls.UrgencyLow, 1, calls.StatusUnread, "A", "B", "C")
	add(t, s, fixedNow, calls.UrgencyLow, 1, calls.StatusUnread, "C")

	out, err := newEngine(s).TopSymptoms(context.Background(), 2)
	if err != nil {
		t.Fatalf("symptoms: %v", err)
	}
	if len(out) != 2 || out[0] != (calls.SymptomCount{Symptom: "C", Count: 3}) || out[1] != (calls.SymptomCount{Symptom: "A", Count: 2}) {
		t.Fatalf("unexpected top symptoms %+v", out)
	}

	if _, err := newEngine(s).TopSymptoms(context.Background(), 0); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	empty, _ := newEngine(calls.NewMemoryStore()).TopSymptoms(context.Background(), 5)
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice")
	}
}

func TestEngine_ServesFromCache(t *testing.T) {
	s := calls.NewMemoryStore()
	add(t, s, fixedNow, calls.UrgencyHigh, 1, calls.StatusUnread)
	cache := newMemoryCache()
	e := newEngine(s, WithCache(cache, time.Minute))

	first, err := e.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	add(t, s, fixedNow, calls.UrgencyHigh, 1, calls.StatusUnread)
	second, _ := e.Summary(context.Background())
	if second.TodayCount != first.TodayCount {
		t.Fatalf("expected cached summary, got %d then %d", first.TodayCount, second.TodayCount)
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cache.sets)
	}
}

func TestAverageDurationAndPercentage(t *testing.T) {
	if got := AverageDuration(181*time.Second, 2).String(); got != "00:01:30" {
		t.Fatalf("expected floor, got %s", got)
	}
	if got := AverageDuration(0, 0).String(); got != "00:00:00" {
		t.Fatalf("unexpected empty average %s", got)
	}
	if got := Percentage(1, 8); got != 12.5 {
		t.Fatalf("unexpected percentage %v", got)
	}
	if got := Percentage(2, 3); got != 66.7 {
		t.Fatalf("unexpected percentage %v", got)
	}
}
