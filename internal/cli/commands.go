package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/callgen"
	"github.com/dennisdiepolder/switchboard/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// RunCmd returns the in-process simulation command
func RunCmd() *cobra.Command {
	var (
		workers string
		opts    SimOptions
		timeout time.Duration
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate concurrent callers against an in-process call center",
		Long: `Staff respondents, managers and directors, let callers with random
required tiers call in at the same time and print how every call was
handled. Exits non-zero when any call was not resolved by a worker of at
least its required tier.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := config.ParseWorkers(workers)
			if err != nil {
				return fmt.Errorf("invalid --workers: %w", err)
			}
			opts.Workers = counts
			if opts.Seed == 0 {
				opts.Seed = time.Now().UnixNano()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report, err := Simulate(ctx, opts, newLogger(verbose))
			if err != nil {
				return err
			}
			PrintReport(cmd.OutOrStdout(), report)
			if !report.OK() {
				return fmt.Errorf("%d calls were not handled correctly", len(report.Problems))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workers, "workers", "3,2,1", "respondents,managers,directors")
	cmd.Flags().IntVar(&opts.Callers, "callers", 30, "number of concurrent callers")
	cmd.Flags().Float64Var(&opts.Escalation, "escalation", 0.5, "probability that a worker escalates a call")
	cmd.Flags().DurationVar(&opts.MaxCall, "max-call", 100*time.Millisecond, "upper bound of a conversation")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (0 picks one)")
	cmd.Flags().BoolVar(&opts.LongestIdle, "longest-idle", false, "give calls to the longest idle worker of a tier")
	cmd.Flags().IntVar(&opts.SLSeconds, "sl-seconds", 20, "service level answer threshold")
	cmd.Flags().IntVar(&opts.SLTarget, "sl-target", 80, "service level target percentage")
	cmd.Flags().BoolVar(&opts.LogCallerLines, "transcript", false, "log every message said to a caller")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "give up after this long")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	return cmd
}

// GenerateCmd returns the load generator command
func GenerateCmd() *cobra.Command {
	var (
		server  string
		addr    string
		rate    float64
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Submit calls to a running server at a steady rate",
		Long: `Post calls with weighted random required tiers to a switchboard server.
The rate and tier mix can be changed at runtime through the control API
(GET /status, POST /rate, POST /inject).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(verbose)
			if !verbose {
				logger = logger.Level(zerolog.InfoLevel)
			}

			gen, err := callgen.NewGenerator(callgen.NewClient(server), rate, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			// A control API that cannot listen stops the generator too
			api := callgen.NewControlAPI(gen, logger)
			errCh := make(chan error, 1)
			go func() {
				errCh <- api.Start(ctx, addr)
				cancel()
			}()

			gen.Run(ctx)
			cancel()

			if err := <-errCh; err != nil {
				return fmt.Errorf("control API: %w", err)
			}
			s := gen.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "submitted %d calls, %d failed\n", s.Submitted, s.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "switchboard server URL")
	cmd.Flags().StringVar(&addr, "addr", ":8081", "control API listen address")
	cmd.Flags().Float64Var(&rate, "rate", 1, "calls per second")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	return cmd
}
