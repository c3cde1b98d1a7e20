// Package maintenance runs periodic background tasks as Go tickers: the
// dashboard stats refresh and the sweep for new-session notices the
// listener missed.
package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mycarecoach/coachos/internal/reminders"
)

// DB is the slice of pgxpool.Pool the tasks need.
type DB interface {
	Execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Notifier sends a single reminder for one session.
type Notifier interface {
	Notify(ctx context.Context, sessionID uuid.UUID, t reminders.ReminderType) (reminders.Status, error)
}

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	StatsRefreshInterval time.Duration // mv_email_log_stats
	CatchUpInterval      time.Duration // Sweep for missed seance_created events
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		StatsRefreshInterval: 15 * time.Minute,
		CatchUpInterval:      15 * time.Minute,
	}
}

// Start launches all configured maintenance tickers. n may be nil, which
// disables the catch-up sweep. Blocks until ctx is cancelled. Intended to be
// called with `go`.
func Start(ctx context.Context, db DB, n Notifier, cfg Config, logger *slog.Logger) {
	if n == nil {
		cfg.CatchUpInterval = 0
	}
	logger.Info("Maintenance tickers started",
		"stats_refresh", cfg.StatsRefreshInterval,
		"catchup", cfg.CatchUpInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.StatsRefreshInterval > 0 {
		t := time.NewTicker(cfg.StatsRefreshInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { _ = RefreshMaterializedViews(ctx, db, logger) })
	}

	if cfg.CatchUpInterval > 0 {
		t := time.NewTicker(cfg.CatchUpInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { CatchUpSweep(ctx, db, n, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// CatchUpSweep finds recently created sessions whose new-session notice was
// never sent (e.g., the listener was down when the NOTIFY fired) and sends
// it. Returns how many notices went out.
func CatchUpSweep(ctx context.Context, db DB, n Notifier, logger *slog.Logger) int {
	rows, err := db.Query(ctx, "sessions_missing_new_notice")
	if err != nil {
		logger.Warn("Catch-up sweep: query failed", "error", err)
		return 0
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		logger.Warn("Catch-up sweep: scan failed", "error", err)
		return 0
	}

	sent := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return sent
		}
		status, err := n.Notify(ctx, id, reminders.TypeNewSession)
		switch {
		case err == nil && status == reminders.StatusSent:
			sent++
		case err == nil,
			errors.Is(err, reminders.ErrAlreadySent),
			errors.Is(err, reminders.ErrNotificationDisabled),
			errors.Is(err, reminders.ErrNoEmail):
		default:
			logger.Warn("Catch-up sweep: notice failed", "session_id", id, "error", err)
			if errors.Is(err, reminders.ErrUnrecordedSend) {
				return sent
			}
		}
	}
	if sent > 0 {
		logger.Info("Catch-up sweep: sent missed new-session notices", "count", sent)
	}
	return sent
}
