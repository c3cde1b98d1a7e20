package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mycarecoach/coachos/internal/api/respond"
	"github.com/mycarecoach/coachos/internal/cache"
	"github.com/mycarecoach/coachos/internal/reminders"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// notificationConfigRequest is the body of PUT .../notification-config.
// Every flag must be present; a missing one is not read as false.
type notificationConfigRequest struct {
	Remind24h           *bool `json:"remind24h" validate:"required"`
	Remind1h            *bool `json:"remind1h" validate:"required"`
	ConfirmAfterSession *bool `json:"confirmAfterSession" validate:"required"`
	NotifyOnNewSession  *bool `json:"notifyOnNewSession" validate:"required"`
}

func (req notificationConfigRequest) config() reminders.CoachConfig {
	return reminders.CoachConfig{
		Remind24h:           *req.Remind24h,
		Remind1h:            *req.Remind1h,
		ConfirmAfterSession: *req.ConfirmAfterSession,
		NotifyOnNewSession:  *req.NotifyOnNewSession,
	}
}

// GetNotificationConfig returns a coach's reminder preferences.
// @Summary Get notification preferences
// @Description Returns the four reminder flags of a coach. Coaches without a saved row get the defaults.
// @Tags settings
// @Produce json
// @Param coachID path string true "Coach UUID"
// @Success 200 {object} reminders.CoachConfig
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/coaches/{coachID}/notification-config [get]
func (h *Handler) GetNotificationConfig(w http.ResponseWriter, r *http.Request) {
	coachID, ok := parseID(w, chi.URLParam(r, "coachID"), "coachID")
	if !ok {
		return
	}

	key := cache.CoachKey(coachID.String(), "config")
	h.serveCached(w, r, key, cache.TTLConfig, func() (interface{}, error) {
		return h.store.GetCoachConfig(r.Context(), coachID)
	})
}

// PutNotificationConfig replaces a coach's reminder preferences.
// @Summary Update notification preferences
// @Description Saves all four reminder flags of a coach. Takes effect on the next tick.
// @Tags settings
// @Accept json
// @Produce json
// @Param coachID path string true "Coach UUID"
// @Param body body notificationConfigRequest true "Preferences"
// @Success 200 {object} reminders.CoachConfig
// @Failure 400 {object} respond.ErrorResponse
// @Failure 422 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/coaches/{coachID}/notification-config [put]
func (h *Handler) PutNotificationConfig(w http.ResponseWriter, r *http.Request) {
	coachID, ok := parseID(w, chi.URLParam(r, "coachID"), "coachID")
	if !ok {
		return
	}

	var req notificationConfigRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Malformed JSON body", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		detail := err.Error()
		if errors.As(err, &verrs) && len(verrs) > 0 {
			detail = verrs[0].Field() + " is required"
		}
		respond.WriteErrorDetail(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Every preference flag is required", detail)
		return
	}

	cfg := req.config()
	if err := h.store.SaveCoachConfig(r.Context(), coachID, cfg); err != nil {
		h.logger.Error("save coach config failed", "coach_id", coachID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Could not save preferences")
		return
	}
	h.cache.DeletePrefix(cache.CoachPrefix(coachID.String()))
	h.logger.Info("coach config updated", "coach_id", coachID)

	respond.WriteJSONObject(w, http.StatusOK, cfg)
}

// SendTestEmail sends a test email to the coach's own address.
// @Summary Send a test email
// @Description Sends a test message to the coach through the configured transport. Nothing is logged.
// @Tags settings
// @Produce json
// @Param coachID path string true "Coach UUID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} respond.ErrorResponse
// @Failure 422 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/coaches/{coachID}/test-email [post]
func (h *Handler) SendTestEmail(w http.ResponseWriter, r *http.Request) {
	coachID, ok := parseID(w, chi.URLParam(r, "coachID"), "coachID")
	if !ok {
		return
	}

	email, name, err := h.store.CoachContact(r.Context(), coachID)
	switch {
	case errors.Is(err, reminders.ErrCoachNotFound):
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Coach not found")
		return
	case err != nil:
		h.logger.Error("coach contact lookup failed", "coach_id", coachID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Query failed")
		return
	case email == "":
		respond.WriteError(w, http.StatusUnprocessableEntity, "NO_EMAIL", "Coach has no email address")
		return
	}

	if err := h.notifier.SendTest(r.Context(), reminders.TestMessage(email, name)); err != nil {
		h.logger.Warn("test email failed", "coach_id", coachID, "error", err)
		respond.WriteErrorDetail(w, http.StatusBadGateway, "SEND_FAILED", "Test email could not be sent", err.Error())
		return
	}

	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"to":      email,
	})
}
