// Package app wires the database, mail transport and reminder scheduler
// shared by cmd/api and cmd/coachos, and starts their background loops.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mycarecoach/coachos/internal/config"
	"github.com/mycarecoach/coachos/internal/db"
	"github.com/mycarecoach/coachos/internal/listener"
	"github.com/mycarecoach/coachos/internal/mail"
	"github.com/mycarecoach/coachos/internal/maintenance"
	"github.com/mycarecoach/coachos/internal/reminders"
)

// NewLogger builds the process logger at the configured level.
func NewLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// App holds the long-lived dependencies of a process.
type App struct {
	Config    *config.Config
	Pool      *db.Pool
	Store     *reminders.PGStore
	Sender    mail.Sender
	Scheduler *reminders.Scheduler
	Logger    *slog.Logger
}

// New connects to the database and builds the scheduler.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	sender, err := mail.New(cfg, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("mail transport: %w", err)
	}
	logger.Info("Mail transport ready", "transport", cfg.MailTransport)

	store := reminders.NewPGStore(pool.Pool, cfg.SessionTimezone)
	sched := reminders.NewScheduler(store, sender, reminders.Options{
		TickPeriod:   cfg.TickPeriod,
		StoreTimeout: cfg.StoreTimeout,
		SendTimeout:  cfg.SendTimeout,
		Location:     cfg.Location(),
	}, logger)

	return &App{
		Config:    cfg,
		Pool:      pool,
		Store:     store,
		Sender:    sender,
		Scheduler: sched,
		Logger:    logger,
	}, nil
}

// Close releases the mail transport and the pool.
func (a *App) Close() {
	if err := mail.Close(a.Sender); err != nil {
		a.Logger.Warn("Mail transport close failed", "error", err)
	}
	a.Pool.Close()
}

// RunTick runs one tick at now and refreshes the dashboard stats when it
// appended log rows.
func (a *App) RunTick(ctx context.Context, now time.Time) (reminders.Summary, error) {
	summary, err := reminders.RunScheduledTick(ctx, a.Scheduler, now, a.Logger)
	a.afterTick(ctx, summary)
	return summary, err
}

func (a *App) afterTick(ctx context.Context, summary reminders.Summary) {
	if summary.Appended() == 0 {
		return
	}
	_ = maintenance.RefreshMaterializedViews(ctx, a.Pool.Pool, a.Logger)
}

// StartBackground launches the loops enabled in the config: the cron
// worker, the seance_created listener and the maintenance tickers. They stop
// when ctx is cancelled. The returned wait blocks until every loop and any
// dispatch it started has returned; call it before Close.
func (a *App) StartBackground(ctx context.Context, worker bool) (wait func() error) {
	cfg := a.Config
	var g errgroup.Group

	if worker {
		g.Go(func() error {
			err := reminders.StartWorker(ctx, a.Scheduler, cfg.ReminderCron, func(s reminders.Summary) {
				a.afterTick(context.WithoutCancel(ctx), s)
			}, a.Logger)
			if err != nil {
				a.Logger.Error("Reminder worker failed to start", "error", err)
			}
			return err
		})
	} else {
		a.Logger.Info("Reminder worker disabled (REMINDER_WORKER_ENABLED=false)")
	}

	var notifier maintenance.Notifier
	if cfg.NewSessionListenerEnabled {
		g.Go(func() error {
			listener.Start(ctx, cfg.DatabaseURL, a.Scheduler, a.Logger)
			return nil
		})
		notifier = a.Scheduler
	} else {
		a.Logger.Info("Session listener disabled (NEW_SESSION_LISTENER_ENABLED=false)")
	}

	g.Go(func() error {
		maintenance.Start(ctx, a.Pool.Pool, notifier, maintenance.Config{
			StatsRefreshInterval: cfg.StatsRefreshInterval,
			CatchUpInterval:      cfg.NewSessionCatchUpInterval,
		}, a.Logger)
		return nil
	})

	return g.Wait
}
