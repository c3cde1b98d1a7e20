package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/mycarecoach/coachos/internal/api/auth"
	"github.com/mycarecoach/coachos/internal/api/handler"
	"github.com/mycarecoach/coachos/internal/config"
	"github.com/mycarecoach/coachos/internal/metrics"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(deps handler.Deps, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Authorization", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Handler dependencies ---
	if deps.Config == nil {
		deps.Config = cfg
	}
	h := handler.New(deps)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", metrics.Handler())

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Coach dashboard, scoped to the coach in the access token
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(cfg.AuthJWTSecret, cfg.IsProduction()))

			r.Route("/coaches/{coachID}", func(r chi.Router) {
				r.Use(auth.RequireCoach("coachID"))
				r.Get("/email-logs", h.GetEmailLogs)
				r.Get("/email-logs/stats", h.GetEmailLogStats)
				r.Get("/notification-config", h.GetNotificationConfig)
				r.Put("/notification-config", h.PutNotificationConfig)
				r.Post("/test-email", h.SendTestEmail)
			})

			r.Post("/sessions/{sessionID}/reminders", h.SendManualReminder)
		})

		// Scheduler trigger, cron secret
		r.Post("/reminders/run", h.RunReminders)
	})

	return r
}
