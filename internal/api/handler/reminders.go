package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mycarecoach/coachos/internal/api/auth"
	"github.com/mycarecoach/coachos/internal/api/respond"
	"github.com/mycarecoach/coachos/internal/cache"
	"github.com/mycarecoach/coachos/internal/reminders"
)

// runResponse is the body of POST /api/v1/reminders/run.
type runResponse struct {
	Success    bool              `json:"success"`
	EmailsSent int               `json:"emails_sent"`
	Summary    reminders.Summary `json:"summary"`
	Error      string            `json:"error,omitempty"`
}

// RunReminders runs one reminder tick now. Used by external schedulers.
// @Summary Run a reminder tick
// @Description Runs the reminder job once for the current period. Requires the cron secret as a Bearer token.
// @Tags reminders
// @Produce json
// @Security BearerAuth
// @Success 200 {object} runResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 500 {object} runResponse
// @Router /api/v1/reminders/run [post]
func (h *Handler) RunReminders(w http.ResponseWriter, r *http.Request) {
	if !h.authorizedCron(r) {
		respond.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing cron secret")
		return
	}

	summary, err := h.runTick(r.Context(), h.now())
	if summary.Appended() > 0 {
		h.cache.DeletePrefix("coach:")
	}

	resp := runResponse{Success: err == nil, EmailsSent: summary.Sent, Summary: summary}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusInternalServerError
	}
	respond.WriteJSONObject(w, status, resp)
}

// authorizedCron checks the Bearer token against CRON_SECRET. Without a
// configured secret the endpoint is open outside production only.
func (h *Handler) authorizedCron(r *http.Request) bool {
	secret := ""
	production := false
	if h.cfg != nil {
		secret = h.cfg.CronSecret
		production = h.cfg.IsProduction()
	}
	if secret == "" {
		return !production
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

// SendManualReminder sends a reminder for one session on the coach's request.
// @Summary Send a manual reminder
// @Description Emails the session's client a reminder now. Coach preferences do not apply, but a reminder already sent for the session is not repeated.
// @Tags reminders
// @Produce json
// @Security BearerAuth
// @Param sessionID path string true "Session UUID"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Failure 422 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/sessions/{sessionID}/reminders [post]
func (h *Handler) SendManualReminder(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseID(w, chi.URLParam(r, "sessionID"), "sessionID")
	if !ok {
		return
	}

	owner, err := h.store.SessionCoach(r.Context(), sessionID)
	if errors.Is(err, reminders.ErrSessionNotFound) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Session not found")
		return
	}
	if err != nil {
		h.logger.Error("session lookup failed", "session_id", sessionID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Reminder could not be processed")
		return
	}
	if coachID, ok := auth.CoachID(r.Context()); ok && coachID != owner {
		respond.WriteError(w, http.StatusForbidden, "FORBIDDEN", "Session belongs to another coach")
		return
	}

	status, err := h.notifier.Notify(r.Context(), sessionID, reminders.TypeManual)
	switch {
	case errors.Is(err, reminders.ErrSessionNotFound):
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Session not found")
		return
	case errors.Is(err, reminders.ErrAlreadySent):
		respond.WriteError(w, http.StatusConflict, "ALREADY_SENT", "A manual reminder was already sent for this session")
		return
	case errors.Is(err, reminders.ErrNoEmail):
		respond.WriteError(w, http.StatusUnprocessableEntity, "NO_EMAIL", "Client has no email address")
		return
	case err != nil:
		h.logger.Error("manual reminder failed", "session_id", sessionID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Reminder could not be processed")
		return
	}

	h.cache.DeletePrefix(cache.CoachPrefix(owner.String()))

	if status == reminders.StatusError {
		respond.WriteError(w, http.StatusBadGateway, "SEND_FAILED", "Reminder could not be delivered")
		return
	}
	respond.WriteJSONObject(w, http.StatusCreated, map[string]interface{}{
		"session_id": sessionID.String(),
		"type":       reminders.TypeManual,
		"status":     status,
	})
}
