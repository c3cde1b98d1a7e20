// Package handler provides HTTP handlers for all API endpoints.
// Reads go through the reminders store; sends go through the scheduler so
// they share its dedup and logging.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mycarecoach/coachos/internal/api/respond"
	"github.com/mycarecoach/coachos/internal/cache"
	"github.com/mycarecoach/coachos/internal/config"
	"github.com/mycarecoach/coachos/internal/reminders"
)

// Store is the read and settings side of the reminders store.
type Store interface {
	ListHistory(ctx context.Context, coachID uuid.UUID, f reminders.HistoryFilter) ([]reminders.HistoryEntry, error)
	HistoryStats(ctx context.Context, coachID uuid.UUID) (map[reminders.Status]int, error)
	GetCoachConfig(ctx context.Context, coachID uuid.UUID) (reminders.CoachConfig, error)
	SaveCoachConfig(ctx context.Context, coachID uuid.UUID, c reminders.CoachConfig) error
	CoachContact(ctx context.Context, coachID uuid.UUID) (email, name string, err error)
	SessionCoach(ctx context.Context, sessionID uuid.UUID) (uuid.UUID, error)
}

// Notifier sends reminders outside the scheduled ticks.
type Notifier interface {
	Notify(ctx context.Context, sessionID uuid.UUID, t reminders.ReminderType) (reminders.Status, error)
	SendTest(ctx context.Context, msg reminders.Message) error
}

// TickFunc runs one reminder tick at now.
type TickFunc func(ctx context.Context, now time.Time) (reminders.Summary, error)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps groups everything the handlers need.
type Deps struct {
	DB       Pinger
	Store    Store
	Notifier Notifier
	RunTick  TickFunc
	Cache    *cache.Cache
	Config   *config.Config
	Logger   *slog.Logger
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	db       Pinger
	store    Store
	notifier Notifier
	runTick  TickFunc
	cache    *cache.Cache
	cfg      *config.Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Handler with shared dependencies.
func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := d.Cache
	if c == nil {
		c = cache.New(false)
	}
	return &Handler{
		db:       d.DB,
		store:    d.Store,
		notifier: d.Notifier,
		runTick:  d.RunTick,
		cache:    c,
		cfg:      d.Config,
		logger:   logger,
		now:      time.Now,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "CoachOS API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.db == nil || h.db.Ping(r.Context()) != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": h.now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics (active keys, expired keys).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// serveCached answers from the cache or builds, caches and writes a fresh
// body. Conditional requests get a 304 when the ETag still matches.
func (h *Handler) serveCached(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration, build func() (interface{}, error)) {
	if data, etag, ok := h.cache.Get(key); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	v, err := build()
	if err != nil {
		h.logger.Error("query failed", "path", r.URL.Path, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Query failed")
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Encoding failed")
		return
	}

	etag := h.cache.Set(key, raw, ttl)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, raw, etag, ttl, false)
}

// parseID parses a chi URL param as a UUID, writing a 400 on failure.
func parseID(w http.ResponseWriter, raw, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
