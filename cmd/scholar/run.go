package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/scholar/internal/pipeline"
	"github.com/ajitpratap0/scholar/pkg/config"
	"github.com/ajitpratap0/scholar/pkg/logger"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline against the live sources",
		Long: `Run extracts every configured source table, writes Bronze snapshots,
conforms the Silver entities, generates the calendar and rebuilds the Gold
warehouse. The run summary is printed as JSON.

Example:
  scholar run --config scholar.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, flags, (*pipeline.Runner).Run)
		},
	}
}

func newReplayCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Rebuild Silver and Gold from the latest Bronze snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, flags, (*pipeline.Runner).Replay)
		},
	}
}

type runFunc func(*pipeline.Runner, context.Context) (*pipeline.Result, error)

func execute(cmd *cobra.Command, flags *globalFlags, run runFunc) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.runner()
	if err != nil {
		return err
	}
	res, err := run(runner, ctx)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), res)
}

func newScheduleCmd(flags *globalFlags) *cobra.Command {
	var every string
	var cronExpr string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a schedule until interrupted",
		Long: `Schedule runs the full pipeline on an interval or cron expression. A run
that is still in progress when the next one is due delays it; runs never
overlap. Failed runs are logged and the schedule continues.

Example:
  scholar schedule --every 24h
  scholar schedule --cron "0 2 * * *"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if cronExpr != "" {
				cfg.Schedule.Cron = cronExpr
			}
			if every != "" {
				d, err := parseEvery(every)
				if err != nil {
					return err
				}
				cfg.Schedule.Every = d
				cfg.Schedule.Cron = ""
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := newScheduler(cfg.Schedule, func() {
				runScheduled(ctx, a)
			})
			if err != nil {
				return err
			}
			s.StartAsync()
			logger.Info("Scheduler started",
				zap.Duration("every", cfg.Schedule.Every),
				zap.String("cron", cfg.Schedule.Cron))

			<-ctx.Done()
			s.Stop()
			logger.Info("Scheduler stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&every, "every", "", "Run interval, overriding schedule.every (e.g. 6h)")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression, overriding schedule.cron")
	return cmd
}

func runScheduled(ctx context.Context, a *app) {
	runner, err := a.runner()
	if err != nil {
		logger.Error("Failed to prepare scheduled run", zap.Error(err))
		return
	}
	if _, err := runner.Run(ctx); err != nil {
		logger.Error("Scheduled run failed", zap.Error(err))
	}
}

// newScheduler builds a UTC singleton scheduler. Cron wins over Every.
func newScheduler(cfg config.ScheduleConfig, job func()) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	var err error
	switch {
	case cfg.Cron != "":
		_, err = s.Cron(cfg.Cron).Do(job)
	case cfg.Every > 0:
		_, err = s.Every(cfg.Every).Do(job)
	default:
		return nil, fmt.Errorf("schedule needs an interval or a cron expression")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to schedule pipeline: %w", err)
	}
	return s, nil
}

func parseEvery(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid --every %q: want a positive duration such as 24h", s)
	}
	return d, nil
}
