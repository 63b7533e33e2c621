package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quii/guardedcounter/config"
	"github.com/quii/guardedcounter/report"
	"github.com/quii/guardedcounter/service"
	"github.com/quii/guardedcounter/sink"
)

// ErrUntrustworthy indicates at least one worker failed, so the final value
// does not account for every increment.
var ErrUntrustworthy = errors.New("final value is not trustworthy")

type RunArgs struct {
	configFile *string
	workers    *int
	initial    *int64
	fail       *[]int
	report     *string
}

func NewRunArgs() *RunArgs {
	return &RunArgs{
		configFile: new(string),
		workers:    new(int),
		initial:    new(int64),
		fail:       new([]int),
		report:     new(string),
	}
}

// Config loads the config file, if any, and applies the flags that were set
// on top of it.
func (a *RunArgs) Config(cc *cobra.Command) (config.Run, error) {
	cfg := config.Default()

	if *a.configFile != "" {
		var err error

		cfg, err = config.Load(*a.configFile)
		if err != nil {
			return cfg, err
		}
	}

	flags := cc.Flags()

	if flags.Changed("workers") {
		cfg.Workers = *a.workers
	}

	if flags.Changed("initial") {
		cfg.Initial = *a.initial
	}

	if flags.Changed("fail") {
		cfg.Fail = *a.fail
	}

	if flags.Changed("sample-interval") {
		d, err := flags.GetDuration("sample-interval")
		if err != nil {
			return cfg, err
		}
		cfg.SampleInterval = d
	}

	if flags.Changed("timeout") {
		d, err := flags.GetDuration("timeout")
		if err != nil {
			return cfg, err
		}
		cfg.Timeout = d
	}

	return cfg, cfg.Validate()
}

// NewRunCmd returns the run command.
func NewRunCmd() *cobra.Command {
	args := NewRunArgs()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Spawn workers that increment a shared counter, join them, and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cc *cobra.Command, _ []string) error {
			cfg, err := args.Config(cc)
			if err != nil {
				return err
			}

			if err := report.CheckFormat(*args.report); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cc.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := sink.NewWriterSink(cc.OutOrStdout())

			summary, runErr := service.Run(ctx, cfg, service.WithSink(out))
			if summary.Workers == nil {
				return runErr
			}

			body, err := report.Render(summary, *args.report)
			if err != nil {
				return err
			}

			if len(body) > 0 {
				if _, err := cc.OutOrStdout().Write(body); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
			}

			if runErr != nil {
				return fmt.Errorf("%w: %w", ErrUntrustworthy, runErr)
			}

			return nil
		},
	}

	defaults := config.Default()

	cmd.Flags().StringVarP(args.configFile, "config", "c", "", "Read run configuration from this YAML file")
	cmd.Flags().IntVarP(args.workers, "workers", "n", defaults.Workers, "Number of increment workers to spawn")
	cmd.Flags().Int64Var(args.initial, "initial", defaults.Initial, "Initial counter value")
	cmd.Flags().IntSliceVar(args.fail, "fail", nil, "IDs of workers whose critical section fails")
	cmd.Flags().Duration("sample-interval", defaults.SampleInterval, "How often to print progress")
	cmd.Flags().Duration("timeout", 0, "Abort the run after this long (0 means no limit)")
	cmd.Flags().StringVar(args.report, "report", report.FormatNone, "Print a report after the run (markdown, html, none)")

	err := cmd.MarkFlagFilename("config", "yaml", "yml")
	if err != nil {
		panic(err)
	}

	return cmd
}
