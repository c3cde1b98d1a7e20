// Command api is the CoachOS API server.
//
// Usage:
//
//	coachos-api
//	API_PORT=8080 coachos-api

// @title CoachOS API
// @version 1.0.0
// @description Session reminders, email history and notification settings for MyCareCoach coaches.
// @host localhost:8000
// @BasePath /
// @schemes http https
// @contact.name MyCareCoach
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mycarecoach/coachos/internal/api"
	"github.com/mycarecoach/coachos/internal/api/handler"
	"github.com/mycarecoach/coachos/internal/app"
	"github.com/mycarecoach/coachos/internal/cache"
	"github.com/mycarecoach/coachos/internal/config"

	_ "github.com/mycarecoach/coachos/docs" // swagger docs
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	logger := app.NewLogger(slog.LevelInfo)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = app.NewLogger(cfg.LogLevel)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Reminder worker, session listener, maintenance tickers
	waitBackground := a.StartBackground(ctx, cfg.ReminderWorkerEnabled)

	// Create router
	router := api.NewRouter(handler.Deps{
		DB:       a.Pool,
		Store:    a.Store,
		Notifier: a.Scheduler,
		RunTick:  a.RunTick,
		Cache:    appCache,
		Logger:   logger,
	}, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting CoachOS API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")

	// Ticks and notices in flight finish before the pool closes.
	if err := waitBackground(); err != nil {
		logger.Error("Background loop error", "error", err)
	}
	logger.Info("Background loops stopped")
}
