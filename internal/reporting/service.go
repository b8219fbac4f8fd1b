package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shzded/MediCall-AI/internal/calls"
	"github.com/shzded/MediCall-AI/internal/stats"
)

// StatsSource is the aggregation side of a report.
type StatsSource interface {
	Summary(ctx context.Context) (stats.Summary, error)
	DailyHistogram(ctx context.Context, days int) ([]stats.DailyCount, error)
	UrgencyBreakdown(ctx context.Context) ([]stats.UrgencyShare, error)
	TopSymptoms(ctx context.Context, limit int) ([]calls.SymptomCount, error)
}

// CallSource lists the newest calls first.
type CallSource interface {
	Recent(ctx context.Context, n int) ([]calls.CallRecord, error)
}

type Service struct {
	stats StatsSource
	calls CallSource
	clock func() time.Time
}

func NewService(st StatsSource, cs CallSource) *Service {
	return &Service{stats: st, calls: cs, clock: time.Now}
}

// Build collects the summary, the last 30 days, the urgency and symptom breakdowns and
// the 50 newest calls.
func (s *Service) Build(ctx context.Context) (Report, error) {
	if s.stats == nil || s.calls == nil {
		return Report{}, errors.New("reporting: sources not configured")
	}
	out := Report{GeneratedAt: s.clock().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Summary, err = s.stats.Summary(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.Daily, err = s.stats.DailyHistogram(gctx, 30)
		return err
	})
	g.Go(func() (err error) {
		out.Urgency, err = s.stats.UrgencyBreakdown(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.Symptoms, err = s.stats.TopSymptoms(gctx, stats.DefaultSymptomLimit)
		return err
	})
	g.Go(func() (err error) {
		out.Calls, err = s.calls.Recent(gctx, RecentCallsLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("reporting: %w", err)
	}
	if len(out.Calls) > RecentCallsLimit {
		out.Calls = out.Calls[:RecentCallsLimit]
	}
	return out, nil
}
