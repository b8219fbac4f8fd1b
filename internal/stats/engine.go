package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shzded/MediCall-AI/internal/calls"
	"github.com/shzded/MediCall-AI/pkg/logger"
)

// Source is the read side of the call store that aggregation needs.
type Source interface {
	CountCalls(ctx context.Context, f calls.CountFilter) (int, error)
	SumDurations(ctx context.Context, from, to time.Time) (time.Duration, int, error)
	DailyCounts(ctx context.Context, from, to time.Time) ([]calls.DayCount, error)
	UrgencyCounts(ctx context.Context) (map[calls.Urgency]int, error)
	SymptomCounts(ctx context.Context, limit int) ([]calls.SymptomCount, error)
}

// Engine computes dashboard statistics. Reads are independent and tolerate a mix of
// provisional and enriched records; no snapshot is taken across queries.
type Engine struct {
	src   Source
	cache Cache
	ttl   time.Duration
	clock func() time.Time
}

type Option func(*Engine)

// WithCache serves repeated queries from c for ttl. A zero ttl disables caching.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = c
		e.ttl = ttl
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

func NewEngine(src Source, opts ...Option) *Engine {
	e := &Engine{src: src, clock: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Summary computes the headline counters. Day windows are [midnight, next midnight) UTC
// relative to the engine clock.
func (e *Engine) Summary(ctx context.Context) (Summary, error) {
	today := calls.UTCDay(e.clock())
	key := "summary:" + today.Format(time.DateOnly)

	var out Summary
	if e.cached(ctx, key, &out) {
		return out, nil
	}

	tomorrow := today.AddDate(0, 0, 1)
	yesterday := today.AddDate(0, 0, -1)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)

	var (
		total, urgentTotal         int
		sumToday, sumYesterday     time.Duration
		countToday, countYesterday int
	)

	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int, f calls.CountFilter) {
		g.Go(func() error {
			n, err := e.src.CountCalls(gctx, f)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}
	count(&out.TodayCount, calls.CountFilter{From: today, To: tomorrow})
	count(&out.UrgentTodayCount, calls.CountFilter{From: today, To: tomorrow, Urgency: calls.UrgencyHigh})
	count(&out.YesterdayCount, calls.CountFilter{From: yesterday, To: today})
	count(&out.MonthCount, calls.CountFilter{From: monthStart})
	count(&out.UnhandledUrgentCount, calls.CountFilter{Urgency: calls.UrgencyHigh, Status: calls.StatusUnread})
	count(&total, calls.CountFilter{})
	count(&urgentTotal, calls.CountFilter{Urgency: calls.UrgencyHigh})
	g.Go(func() error {
		var err error
		sumToday, countToday, err = e.src.SumDurations(gctx, today, tomorrow)
		return err
	})
	g.Go(func() error {
		var err error
		sumYesterday, countYesterday, err = e.src.SumDurations(gctx, yesterday, today)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, fmt.Errorf("stats summary: %w", err)
	}

	out.AvgDurationToday = AverageDuration(sumToday, countToday)
	out.AvgDurationYesterday = AverageDuration(sumYesterday, countYesterday)
	out.UrgentPercentage = Percentage(urgentTotal, total)

	e.store(ctx, key, out)
	return out, nil
}

// DailyHistogram returns exactly days buckets, oldest first, ending today (UTC).
// Days without calls are present with a zero count.
func (e *Engine) DailyHistogram(ctx context.Context, days int) ([]DailyCount, error) {
	if days <= 0 || days > MaxHistogramDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidRequest, MaxHistogramDays)
	}
	today := calls.UTCDay(e.clock())
	key := fmt.Sprintf("daily:%s:%d", today.Format(time.DateOnly), days)

	var out []DailyCount
	if e.cached(ctx, key, &out) && len(out) == days {
		return out, nil
	}

	start := today.AddDate(0, 0, -(days - 1))
	rows, err := e.src.DailyCounts(ctx, start, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("stats daily: %w", err)
	}
	byDay := make(map[string]int, len(rows))
	for _, r := range rows {
		byDay[calls.UTCDay(r.Day).Format(time.DateOnly)] += r.Count
	}

	out = make([]DailyCount, 0, days)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i).Format(time.DateOnly)
		out = append(out, DailyCount{Date: d, Count: byDay[d]})
	}

	e.store(ctx, key, out)
	return out, nil
}

// UrgencyBreakdown returns high, medium and low in that order, absent levels included.
func (e *Engine) UrgencyBreakdown(ctx context.Context) ([]UrgencyShare, error) {
	const key = "urgency"

	var out []UrgencyShare
	if e.cached(ctx, key, &out) && len(out) == len(calls.Urgencies) {
		return out, nil
	}

	counts, err := e.src.UrgencyCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats urgency: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	out = make([]UrgencyShare, 0, len(calls.Urgencies))
	for _, u := range calls.Urgencies {
		n := counts[u]
		out = append(out, UrgencyShare{Urgency: u, Count: n, Percentage: Percentage(n, total)})
	}

	e.store(ctx, key, out)
	return out, nil
}

// TopSymptoms returns the most frequent symptoms across all records, most frequent first.
func (e *Engine) TopSymptoms(ctx context.Context, limit int) ([]calls.SymptomCount, error) {
	if limit <= 0 || limit > MaxSymptomLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidRequest, MaxSymptomLimit)
	}
	key := fmt.Sprintf("symptoms:%d", limit)

	var out []calls.SymptomCount
	if e.cached(ctx, key, &out) {
		return out, nil
	}

	out, err := e.src.SymptomCounts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("stats symptoms: %w", err)
	}
	if out == nil {
		out = []calls.SymptomCount{}
	}
	if len(out) > limit {
		out = out[:limit]
	}

	e.store(ctx, key, out)
	return out, nil
}

// AverageDuration is the floor of total/count in whole seconds; zero when count is zero.
func AverageDuration(total time.Duration, count int) calls.Duration {
	if count <= 0 {
		return 0
	}
	secs := int64(total/time.Second) / int64(count)
	return calls.DurationFromSeconds(secs)
}

// Percentage is part/total*100 rounded to one decimal; zero when total is zero.
func Percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

func (e *Engine) cached(ctx context.Context, key string, dst any) bool {
	if e.cache == nil || e.ttl <= 0 {
		return false
	}
	ok, err := e.cache.Get(ctx, key, dst)
	if err != nil {
		logger.From(ctx).Warn("stats cache read failed", "key", key, "err", err)
		return false
	}
	return ok
}

func (e *Engine) store(ctx context.Context, key string, v any) {
	if e.cache == nil || e.ttl <= 0 {
		return
	}
	if err := e.cache.Set(ctx, key, v, e.ttl); err != nil {
		logger.From(ctx).Warn("stats cache write failed", "key", key, "err", err)
	}
}
