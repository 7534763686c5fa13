package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var flagSchedule string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run cycles on a cron schedule until interrupted",
	Long: `Run one cycle immediately and then one per tick of the cron schedule.

A tick that fires while the previous cycle is still running is skipped.
Failed cycles are logged and retried on the next tick.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagSchedule, "schedule", "*/5 * * * *", "cron schedule (5 fields or a descriptor such as @hourly)")
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func runWatch(cmd *cobra.Command, args []string) error {
	schedule, err := scheduleParser.Parse(flagSchedule)
	if err != nil {
		return fmt.Errorf("invalid --schedule value: %w", err)
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := a.logger.With().Str("component", "watch").Logger()

	cycle := func() {
		if err := a.runCycle(ctx, flagDryRun); err != nil {
			logger.Error().Err(err).Msg("cycle failed")
		}
	}

	logger.Info().Str("schedule", flagSchedule).Msg("watching")
	cycle()

	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)
	c.Schedule(schedule, cron.FuncJob(cycle))
	c.Start()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
