// Command coachos is the CoachOS reminder CLI.
//
// Usage:
//
//	coachos tick
//	coachos tick --at 2026-02-28T09:05:00Z
//	coachos worker
//	coachos notify --session 7f1c... --type manual
//	coachos migrate up
//	coachos token --coach 2b6e... --ttl 1h
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mycarecoach/coachos/internal/api/auth"
	"github.com/mycarecoach/coachos/internal/app"
	"github.com/mycarecoach/coachos/internal/config"
	"github.com/mycarecoach/coachos/internal/reminders"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "coachos",
		Short:        "CoachOS session reminder CLI",
		SilenceUsage: true,
	}

	root.AddCommand(tickCmd())
	root.AddCommand(workerCmd())
	root.AddCommand(notifyCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tokenCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// tick command
// --------------------------------------------------------------------------

func tickCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one reminder tick and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = t
			}
			return runApp(func(ctx context.Context, a *app.App) error {
				summary, err := a.RunTick(ctx, now)
				out, _ := json.MarshalIndent(summary, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Tick time (RFC3339), defaults to now")
	return cmd
}

// --------------------------------------------------------------------------
// worker command
// --------------------------------------------------------------------------

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the cron worker, session listener and maintenance until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(func(ctx context.Context, a *app.App) error {
				wait := a.StartBackground(ctx, true)
				<-ctx.Done()
				logger.Info("Worker shutting down...")
				if err := wait(); err != nil {
					return err
				}
				logger.Info("Background loops stopped")
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// notify command
// --------------------------------------------------------------------------

func notifyCmd() *cobra.Command {
	var sessionID, typeName string
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send one reminder for a session now",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(sessionID)
			if err != nil {
				return fmt.Errorf("--session must be a UUID: %w", err)
			}
			t, err := reminders.ParseReminderType(typeName)
			if err != nil {
				return err
			}
			if t != reminders.TypeManual && t != reminders.TypeNewSession {
				return fmt.Errorf("--type must be %s or %s", reminders.TypeManual, reminders.TypeNewSession)
			}
			return runApp(func(ctx context.Context, a *app.App) error {
				status, err := a.Scheduler.Notify(ctx, id, t)
				if err != nil {
					return err
				}
				logger.Info("Reminder processed", "session_id", id, "type", t, "status", status)
				if status != reminders.StatusSent {
					return fmt.Errorf("reminder logged with status %s", status)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session UUID")
	cmd.Flags().StringVar(&typeName, "type", string(reminders.TypeManual), "Reminder type (manual or newSession)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

// --------------------------------------------------------------------------
// token command
// --------------------------------------------------------------------------

func tokenCmd() *cobra.Command {
	var coachID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a dashboard access token for a coach (development)",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(coachID)
			if err != nil {
				return fmt.Errorf("--coach must be a UUID: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.AuthJWTSecret == "" {
				return errors.New("AUTH_JWT_SECRET is not set")
			}
			token, err := auth.NewToken(cfg.AuthJWTSecret, id, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&coachID, "coach", "", "Coach UUID")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("coach")
	return cmd
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back schema migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if dir == "" {
				if dir, err = findMigrations(); err != nil {
					return err
				}
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			m, err := migrate.New("file://"+abs, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("init migrate: %w", err)
			}
			defer m.Close()

			if direction == "down" {
				err = m.Down()
			} else {
				err = m.Up()
			}
			if err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate %s: %w", direction, err)
			}
			logger.Info("Migration successful", "direction", direction, "dir", abs)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Migrations directory (default: nearest ./migrations)")
	return cmd
}

// findMigrations looks for a migrations directory in the working directory
// and its parents.
func findMigrations() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	current := cwd
	for range 6 {
		candidate := filepath.Join(current, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", fmt.Errorf("migrations directory not found from %s", cwd)
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runApp handles config loading, wiring, and context cancellation.
func runApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = app.NewLogger(cfg.LogLevel)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
