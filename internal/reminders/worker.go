package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mycarecoach/coachos/internal/metrics"
)

// StartWorker runs RunTick on the cron schedule spec until ctx is cancelled.
// A tick still running when the next one fires is skipped, so ticks never
// overlap inside one process. onTick, if set, receives every summary.
// Blocks until ctx is cancelled. Intended to be called with `go`.
func StartWorker(ctx context.Context, s *Scheduler, spec string, onTick func(Summary), logger *slog.Logger) error {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	if _, err := c.AddFunc(spec, func() {
		summary, _ := RunScheduledTick(ctx, s, time.Now(), logger)
		if onTick != nil {
			onTick(summary)
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}

	logger.Info("Reminder worker started", "schedule", spec, "period", s.period)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("Reminder worker stopped")
	return nil
}

// RunScheduledTick runs one tick and records its outcome in logs and metrics.
func RunScheduledTick(ctx context.Context, s *Scheduler, now time.Time, logger *slog.Logger) (Summary, error) {
	start := time.Now()
	summary, err := s.RunTick(ctx, now)
	dur := time.Since(start).Round(time.Millisecond)

	result := tickResult(err)
	metrics.Tick(result)
	switch result {
	case "ok":
		logger.Info("Reminder tick complete", "summary", summary.String(), "duration", dur)
	case "partial":
		logger.Warn("Reminder tick partial", "summary", summary.String(), "duration", dur, "error", err)
	default:
		logger.Error("Reminder tick failed", "summary", summary.String(), "duration", dur, "error", err)
	}
	return summary, err
}

// tickResult classifies a tick error. A partial tick that also left an
// unrecorded send is a failure.
func tickResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPartialTick) && !errors.Is(err, ErrUnrecordedSend):
		return "partial"
	default:
		return "failed"
	}
}
