package cli

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/callqueue"
	"github.com/dennisdiepolder/switchboard/internal/notify"
	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// SimOptions configures an in-process simulation
type SimOptions struct {
	Workers        [types.NumTiers]int
	Callers        int
	Escalation     float64
	MaxCall        time.Duration
	Seed           int64
	LongestIdle    bool
	SLSeconds      int
	SLTarget       int
	LogCallerLines bool
}

// CallOutcome is what one simulated caller observed
type CallOutcome struct {
	Requested types.Tier
	Info     types.CallInfo
	Err      error
}

// SimReport summarizes a finished simulation
type SimReport struct {
	Calls    []CallOutcome
	Tiers    []types.TierSnapshot
	Workers  []types.WorkerInfo
	Elapsed  time.Duration
	Problems []string
}

// OK reports whether every caller was served by a sufficient tier
func (r *SimReport) OK() bool {
	return len(r.Problems) == 0
}

// Simulate staffs a dispatcher, lets Callers concurrent callers with random
// required tiers call in, waits until every call is finished and verifies
// the outcome
func Simulate(ctx context.Context, opts SimOptions, logger zerolog.Logger) (*SimReport, error) {
	routing := callqueue.RoutingStrategy(callqueue.FirstFree{})
	if opts.LongestIdle {
		routing = callqueue.LongestIdleFirst{}
	}

	dopts := []callqueue.Option{
		callqueue.WithRoutingStrategy(routing),
		callqueue.WithDecider(callqueue.NewRandomDecider(opts.Escalation, opts.Seed)),
		callqueue.WithWorkSimulator(callqueue.NewRandomDelay(opts.MaxCall, opts.Seed+1)),
		callqueue.WithServiceLevel(opts.SLTarget, opts.SLSeconds),
	}
	if opts.LogCallerLines {
		dopts = append(dopts, callqueue.WithNotifier(notify.NewLogNotifier(logger)))
	}

	d, err := callqueue.NewDispatcher(opts.Workers, logger, dopts...)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	rng := rand.New(rand.NewSource(opts.Seed))
	report := &SimReport{Calls: make([]CallOutcome, opts.Callers)}
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < opts.Callers; i++ {
		tier := types.Tier(rng.Intn(types.NumTiers))
		wg.Add(1)
		go func(i int, tier types.Tier) {
			defer wg.Done()
			call := types.NewCallWithID(fmt.Sprintf("caller-%02d", i+1), tier)
			out := CallOutcome{Requested: tier}
			if err := d.Submit(call); err != nil {
				out.Err = err
			} else {
				out.Err = call.Wait(ctx)
			}
			out.Info = call.Info()
			report.Calls[i] = out
		}(i, tier)
	}
	wg.Wait()

	if err := d.WaitIdle(ctx); err != nil {
		return nil, fmt.Errorf("waiting for workers: %w", err)
	}
	report.Elapsed = time.Since(start)
	report.Tiers = d.Snapshot()
	report.Workers = d.Workers()
	report.Problems = verify(report.Calls)
	return report, nil
}

func verify(calls []CallOutcome) []string {
	var problems []string
	for _, c := range calls {
		switch {
		case c.Err != nil:
			problems = append(problems, fmt.Sprintf("%s: %v", c.Info.CallID, c.Err))
		case c.Info.Status != types.CallStatusResolved:
			problems = append(problems, fmt.Sprintf("%s ended %s", c.Info.CallID, c.Info.Status))
		case c.Info.ResolvedBy == nil || *c.Info.ResolvedBy < c.Requested:
			problems = append(problems, fmt.Sprintf("%s needed a %s but was resolved by %v", c.Info.CallID, c.Requested, c.Info.ResolvedBy))
		}
	}
	return problems
}

// PrintReport writes a human-readable report
func PrintReport(w io.Writer, r *SimReport) {
	bold := color.New(color.Bold)
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	dim := color.New(color.FgHiBlack)

	bold.Fprintf(w, "Calls (%d in %s)\n", len(r.Calls), r.Elapsed.Round(time.Millisecond))
	for _, c := range r.Calls {
		by := "-"
		if c.Info.ResolvedBy != nil {
			by = c.Info.ResolvedBy.String()
		}
		mark := ok.Sprint("✓")
		if c.Err != nil || c.Info.Status != types.CallStatusResolved {
			mark = bad.Sprint("✗")
		}
		fmt.Fprintf(w, "  %s %-10s needs %-10s resolved by %-10s %s\n",
			mark, c.Info.CallID, c.Requested, by,
			dim.Sprintf("escalations=%d wait=%.2fs handle=%.2fs", c.Info.Escalations, c.Info.WaitTime, c.Info.HandleTime))
	}
	fmt.Fprintln(w)

	bold.Fprintln(w, "Tiers")
	for _, t := range r.Tiers {
		fmt.Fprintf(w, "  %-10s workers=%d submitted=%d resolved=%d escalated=%d failed=%d SL=%.0f%%\n",
			t.Tier, t.Workers, t.Submitted, t.Resolved, t.Escalated, t.Failed, t.ServiceLevel.CurrentSL)
	}
	fmt.Fprintln(w)

	bold.Fprintln(w, "Workers")
	for _, wk := range r.Workers {
		fmt.Fprintf(w, "  %-13s handled=%d resolved=%d escalated=%d\n", wk.WorkerID, wk.Handled, wk.Resolved, wk.Escalated)
	}
	fmt.Fprintln(w)

	if r.OK() {
		ok.Fprintln(w, "All calls were resolved by a sufficient tier")
		return
	}
	bad.Fprintf(w, "%d problems\n", len(r.Problems))
	for _, p := range r.Problems {
		fmt.Fprintf(w, "  %s\n", p)
	}
}
