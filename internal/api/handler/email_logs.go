package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mycarecoach/coachos/internal/api/respond"
	"github.com/mycarecoach/coachos/internal/cache"
	"github.com/mycarecoach/coachos/internal/reminders"
)

// historyResponse is the body of GET .../email-logs.
type historyResponse struct {
	CoachID string                   `json:"coach_id"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
	Entries []reminders.HistoryEntry `json:"entries"`
}

// GetEmailLogs returns a coach's email log history, newest first.
// @Summary Email log history
// @Description Lists the emails sent (or attempted) on behalf of a coach, filterable by status and type.
// @Tags email-logs
// @Produce json
// @Param coachID path string true "Coach UUID"
// @Param status query string false "Log status" Enums(sent, pending, error)
// @Param type query string false "Reminder type" Enums(remind24h, remind1h, confirmation, newSession, manual)
// @Param limit query int false "Page size (max 200)"
// @Param offset query int false "Rows to skip"
// @Success 200 {object} historyResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/coaches/{coachID}/email-logs [get]
func (h *Handler) GetEmailLogs(w http.ResponseWriter, r *http.Request) {
	coachID, ok := parseID(w, chi.URLParam(r, "coachID"), "coachID")
	if !ok {
		return
	}

	q := r.URL.Query()
	var f reminders.HistoryFilter
	if raw := q.Get("status"); raw != "" {
		st, err := reminders.ParseStatus(raw)
		if err != nil {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_STATUS", "Unknown status", err.Error())
			return
		}
		f.Status = st
	}
	if raw := q.Get("type"); raw != "" {
		t, err := reminders.ParseReminderType(raw)
		if err != nil {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_TYPE", "Unknown reminder type", err.Error())
			return
		}
		f.Type = t
	}
	var err error
	if f.Limit, err = queryInt(q.Get("limit"), reminders.DefaultHistoryLimit); err != nil || f.Limit < 1 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
		return
	}
	f.Limit = min(f.Limit, reminders.MaxHistoryLimit)
	if f.Offset, err = queryInt(q.Get("offset"), 0); err != nil || f.Offset < 0 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_OFFSET", "offset must be a non-negative integer")
		return
	}

	key := cache.CoachKey(coachID.String(), "history",
		string(f.Status), string(f.Type), strconv.Itoa(f.Limit), strconv.Itoa(f.Offset))
	h.serveCached(w, r, key, cache.TTLHistory, func() (interface{}, error) {
		entries, err := h.store.ListHistory(r.Context(), coachID, f)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []reminders.HistoryEntry{}
		}
		return historyResponse{
			CoachID: coachID.String(),
			Limit:   f.Limit,
			Offset:  f.Offset,
			Entries: entries,
		}, nil
	})
}

// GetEmailLogStats returns per-status counts of a coach's email log.
// @Summary Email log statistics
// @Description Counts of sent, pending and failed emails for a coach. Served from the mv_email_log_stats materialized view.
// @Tags email-logs
// @Produce json
// @Param coachID path string true "Coach UUID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/coaches/{coachID}/email-logs/stats [get]
func (h *Handler) GetEmailLogStats(w http.ResponseWriter, r *http.Request) {
	coachID, ok := parseID(w, chi.URLParam(r, "coachID"), "coachID")
	if !ok {
		return
	}

	key := cache.CoachKey(coachID.String(), "stats")
	h.serveCached(w, r, key, cache.TTLStats, func() (interface{}, error) {
		stats, err := h.store.HistoryStats(r.Context(), coachID)
		if err != nil {
			return nil, err
		}
		total := 0
		for _, n := range stats {
			total += n
		}
		return map[string]interface{}{
			"coach_id": coachID.String(),
			"sent":     stats[reminders.StatusSent],
			"pending":  stats[reminders.StatusPending],
			"error":    stats[reminders.StatusError],
			"total":    total,
		}, nil
	})
}

func queryInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
