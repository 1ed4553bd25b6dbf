package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hotcalls-poller/internal/config"
	"github.com/sells-group/hotcalls-poller/internal/notify"
	"github.com/sells-group/hotcalls-poller/internal/poller"
	"github.com/sells-group/hotcalls-poller/internal/resilience"
	"github.com/sells-group/hotcalls-poller/internal/runlog"
	"github.com/sells-group/hotcalls-poller/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one poll cycle",
	Long:  "Stages recent calls, comments and unit counts, merges them into the evaluation table, cleans the staging tables and sweeps closed or aged calls. Exits non-zero if any stage failed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		migrate, _ := cmd.Flags().GetBool("migrate")
		open := func(ctx context.Context) (store.Handle, error) {
			return openStore(ctx, cfg.Store, resilience.PolicyFromConfig(cfg.Retry))
		}
		return runOnce(ctx, cfg, open, migrate)
	},
}

func init() {
	runCmd.Flags().Bool("migrate", false, "apply pending schema migrations before the cycle")
	rootCmd.AddCommand(runCmd)
}

// runOnce executes a single cycle. Every stage failure has already been
// logged and alerted by the time it returns; the returned error only
// drives the exit status.
func runOnce(ctx context.Context, c *config.Config, open func(context.Context) (store.Handle, error), migrate bool) error {
	log := zap.L().With(zap.String("component", "cmd.run"))

	log.Info("entering hot calls poller", zap.Time("at", time.Now()))
	defer func() {
		log.Info("exiting hot calls poller", zap.Time("at", time.Now()))
	}()

	errLog, closeErrLog, err := notify.OpenErrorLog(c.ErrorLog.Path)
	if err != nil {
		log.Warn("error log unavailable, continuing without it", zap.String("path", c.ErrorLog.Path), zap.Error(err))
	} else {
		defer closeErrLog()
	}

	senders, err := notify.SendersFromConfig(c.Notify)
	if err != nil {
		log.Warn("some alert senders unavailable", zap.Int("senders", len(senders)), zap.Error(err))
	}
	notifier := notify.NewNotifier(errLog, c.Notify.SubjectPrefix, senders...)

	h, err := open(ctx)
	if err != nil {
		notifier.Report(ctx, "connect", err)
		return eris.Wrap(err, "run: connect")
	}
	defer h.Close() //nolint:errcheck

	if migrate {
		if err := store.Migrate(ctx, h); err != nil {
			notifier.Report(ctx, "migrate", err)
			return eris.Wrap(err, "run: migrate")
		}
	}

	opts, err := poller.OptionsFromConfig(c.Poller)
	if err != nil {
		notifier.Report(ctx, "setup", err)
		return eris.Wrap(err, "run: poller options")
	}
	runner, err := poller.NewRunner(h, notifier, opts)
	if err != nil {
		notifier.Report(ctx, "setup", err)
		return eris.Wrap(err, "run: build runner")
	}

	runs := runlog.New(h)
	runID, err := runs.Start(ctx)
	if err != nil {
		log.Warn("run log unavailable", zap.Error(err))
	}

	res := runner.RunCycle(ctx)
	cycleErr := res.Err()

	if runID != "" {
		sum := runlog.Summary{
			CompletedAt:  res.Finished,
			FailedStages: res.Failed(),
			Rows:         res.Rows(),
		}
		if cycleErr != nil {
			sum.Error = cycleErr.Error()
		}
		if err := runs.Finish(context.WithoutCancel(ctx), runID, sum); err != nil {
			log.Warn("failed to record run", zap.String("run_id", runID), zap.Error(err))
		}
	}

	for _, s := range res.Stages {
		log.Debug("stage result",
			zap.String("stage", s.Name),
			zap.Int64("rows", s.Rows),
			zap.Duration("elapsed", s.Duration),
			zap.Bool("failed", s.Err != nil),
		)
	}
	return cycleErr
}
