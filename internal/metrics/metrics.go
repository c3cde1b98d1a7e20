// Package metrics holds the Prometheus collectors shared by the reminder job
// and the API server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	remindersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachos_reminders_total",
			Help: "Reminder dispatch attempts by type and recorded status",
		},
		[]string{"type", "status"},
	)
	skippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachos_reminder_skipped_total",
			Help: "Reminder candidates dropped before dispatch",
		},
		[]string{"reason"},
	)
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachos_reminder_ticks_total",
			Help: "Reminder ticks by result",
		},
		[]string{"result"},
	)
	unrecordedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coachos_reminder_unrecorded_total",
			Help: "Emails sent whose email_logs row could not be written",
		},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachos_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coachos_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		remindersTotal, skippedTotal, ticksTotal, unrecordedTotal,
		httpRequestsTotal, httpRequestDuration,
	)
}

// Skip reasons.
const (
	SkipNoEmail    = "no_email"
	SkipPreference = "preference"
	SkipDuplicate  = "duplicate"
)

// ReminderAttempt counts one dispatch attempt.
func ReminderAttempt(reminderType, status string) {
	remindersTotal.WithLabelValues(reminderType, status).Inc()
}

// ReminderSkipped counts candidates dropped for reason.
func ReminderSkipped(reason string, n int) {
	if n > 0 {
		skippedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// Tick counts a finished tick; result is "ok", "partial" or "failed".
func Tick(result string) {
	ticksTotal.WithLabelValues(result).Inc()
}

// UnrecordedSend counts a send that could not be logged.
func UnrecordedSend() {
	unrecordedTotal.Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder captures the status code written by the next handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency labelled by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"path":   path,
			"status": strconv.Itoa(rec.status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}
