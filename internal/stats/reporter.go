package stats

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Source provides the running totals of the dispatcher
type Source interface {
	Snapshot() []types.TierSnapshot
	Workers() []types.WorkerInfo
}

// Saver adds one tier's counters to the stored stats of that day
type Saver interface {
	AddTierDailyStats(stats types.TierDailyStats) error
}

// Reporter saves per-tier daily stats on a cron schedule. Each report adds
// what happened since the previous one to the row of its day, so the
// schedule may fire any number of times a day.
type Reporter struct {
	source   Source
	store    Saver
	sched    cron.Schedule
	midnight cron.Schedule
	spec     string
	logger zerolog.Logger

	mu   sync.Mutex
	last map[types.Tier]types.TierDailyStats
}

// NewReporter parses a 5-field cron expression (minute hour dom month dow)
func NewReporter(source Source, store Saver, schedule string, logger zerolog.Logger) (*Reporter, error) {
	schedule = strings.TrimSpace(schedule)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
	}
	midnight, err := parser.Parse("0 0 * * *")
	if err != nil {
		return nil, err
	}
	return &Reporter{
		source:   source,
		store:    store,
		sched:    sched,
		midnight: midnight,
		spec:     schedule,
		logger:   logger,
		last:     make(map[types.Tier]types.TierDailyStats),
	}, nil
}

// Next returns the next report time after t
func (r *Reporter) Next(t time.Time) time.Time {
	return r.sched.Next(t)
}

// Start runs the schedule until ctx is done
func (r *Reporter) Start(ctx context.Context) {
	c := cron.New()
	c.Schedule(r.sched, cron.FuncJob(func() {
		if _, err := r.Report(time.Now()); err != nil {
			r.logger.Error().Err(err).Msg("failed to save daily stats")
		}
	}))
	c.Schedule(r.midnight, cron.FuncJob(func() {
		if _, err := r.CloseDay(time.Now()); err != nil {
			r.logger.Error().Err(err).Msg("failed to close daily stats")
		}
	}))
	c.Start()

	r.logger.Info().
		Str("schedule", r.spec).
		Time("next", r.Next(time.Now())).
		Msg("daily stats reporter started")

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info().Msg("daily stats reporter stopped")
}

// CloseDay reports under the date of the day that ended just before now, so
// calls finished after the last scheduled report keep their date
func (r *Reporter) CloseDay(now time.Time) ([]types.TierDailyStats, error) {
	return r.Report(now.Add(-time.Minute))
}

// Report adds the stats of every tier since the previous report to the day
// of now. All tiers are attempted even when one save fails; a failed tier
// is carried into the next report.
func (r *Reporter) Report(now time.Time) ([]types.TierDailyStats, error) {
	totals := r.totals()
	date := now.Format("2006-01-02")

	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		reports []types.TierDailyStats
		errs    []string
	)
	for _, tier := range types.AllTiers {
		total, ok := totals[tier]
		if !ok {
			continue
		}
		day := delta(total, r.last[tier])
		day.Date = date

		if err := r.store.AddTierDailyStats(day); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", tier, err))
			continue
		}
		r.last[tier] = total
		reports = append(reports, day)

		r.logger.Info().
			Str("tier", day.Tier).
			Str("date", date).
			Int("handled", day.Handled).
			Int("resolved", day.Resolved).
			Float64("service_level", day.ServiceLevel).
			Msg("daily stats saved")
	}

	if len(errs) > 0 {
		return reports, fmt.Errorf("saving daily stats: %s", strings.Join(errs, "; "))
	}
	return reports, nil
}

// totals collects the cumulative counters of each tier
func (r *Reporter) totals() map[types.Tier]types.TierDailyStats {
	totals := make(map[types.Tier]types.TierDailyStats)
	for _, s := range r.source.Snapshot() {
		totals[s.Tier] = types.TierDailyStats{
			Tier:          s.Tier.String(),
			Workers:       s.Workers,
			Resolved:      s.Resolved,
			Escalated:     s.Escalated,
			Failed:        s.Failed,
			Abandoned:     s.Abandoned,
			AnsweredInSL:  s.ServiceLevel.AnsweredInSL,
			TotalAnswered: s.ServiceLevel.TotalAnswered,
		}
	}
	for _, w := range r.source.Workers() {
		if t, ok := totals[w.Tier]; ok {
			t.Handled += w.Handled
			totals[w.Tier] = t
		}
	}
	return totals
}

func delta(total, prev types.TierDailyStats) types.TierDailyStats {
	day := types.TierDailyStats{
		Tier:          total.Tier,
		Workers:       total.Workers,
		Handled:       total.Handled - prev.Handled,
		Resolved:      total.Resolved - prev.Resolved,
		Escalated:     total.Escalated - prev.Escalated,
		Failed:        total.Failed - prev.Failed,
		Abandoned:     total.Abandoned - prev.Abandoned,
		AnsweredInSL:  total.AnsweredInSL - prev.AnsweredInSL,
		TotalAnswered: total.TotalAnswered - prev.TotalAnswered,
	}
	day.ServiceLevel = day.ServiceLevelPercent()
	return day
}
