// Package listener provides a Postgres LISTEN/NOTIFY consumer for new
// sessions. It holds a dedicated pgx connection (not from the pool)
// listening on the `seance_created` channel.
//
// The seances insert trigger fires pg_notify and this consumer asks the
// scheduler to send the client a new-session notice.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mycarecoach/coachos/internal/reminders"
)

const (
	Channel          = "seance_created"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
	queueSize        = 64
)

// Notifier sends a single reminder for one session.
type Notifier interface {
	Notify(ctx context.Context, sessionID uuid.UUID, t reminders.ReminderType) (reminders.Status, error)
}

// SessionCreatedEvent is the JSON payload from pg_notify('seance_created', ...).
type SessionCreatedEvent struct {
	SessionID uuid.UUID `json:"seance_id"`
	CoachID   uuid.UUID `json:"coach_id"`
}

// ParseEvent decodes a notification payload.
func ParseEvent(payload string) (SessionCreatedEvent, error) {
	var event SessionCreatedEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return SessionCreatedEvent{}, fmt.Errorf("decode %s payload: %w", Channel, err)
	}
	if event.SessionID == uuid.Nil {
		return SessionCreatedEvent{}, fmt.Errorf("%s payload has no seance_id", Channel)
	}
	return event, nil
}

// Start opens a dedicated connection and listens on the seance_created
// channel. It reconnects automatically on connection loss. Events are
// handled one at a time by a single worker. Blocks until ctx is cancelled
// and the worker has finished its current event. Intended to be called
// with `go`.
func Start(ctx context.Context, dbURL string, n Notifier, logger *slog.Logger) {
	events := make(chan SessionCreatedEvent, queueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Process(ctx, n, events, logger)
	}()
	defer func() {
		close(events)
		<-done
	}()

	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, events, logger)
		if ctx.Err() != nil {
			logger.Info("Session listener stopped (context cancelled)")
			return
		}

		logger.Error("Session listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// Process handles events in order until the channel is closed. Events still
// queued after ctx is cancelled are dropped; the catch-up sweep picks them
// up on the next run.
func Process(ctx context.Context, n Notifier, events <-chan SessionCreatedEvent, logger *slog.Logger) {
	for event := range events {
		if ctx.Err() != nil {
			logger.Debug("Session event dropped on shutdown", "session_id", event.SessionID)
			continue
		}
		HandleEvent(ctx, n, event, logger)
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, events chan<- SessionCreatedEvent, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+Channel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", Channel, err)
	}
	logger.Info("Session listener connected", "channel", Channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		event, err := ParseEvent(notification.Payload)
		if err != nil {
			logger.Warn("Failed to parse session event",
				"payload", notification.Payload, "error", err)
			continue
		}

		logger.Info("Session created event received",
			"session_id", event.SessionID, "coach_id", event.CoachID)

		select {
		case events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// HandleEvent sends the new-session notice for event. Outcomes that are not
// failures (preference off, already sent, no address) are logged at debug
// or info level.
func HandleEvent(ctx context.Context, n Notifier, event SessionCreatedEvent, logger *slog.Logger) {
	status, err := n.Notify(ctx, event.SessionID, reminders.TypeNewSession)
	switch {
	case err == nil:
		logger.Info("New session notice processed",
			"session_id", event.SessionID, "status", status)
	case errors.Is(err, reminders.ErrNotificationDisabled), errors.Is(err, reminders.ErrAlreadySent):
		logger.Debug("New session notice skipped",
			"session_id", event.SessionID, "reason", err)
	case errors.Is(err, reminders.ErrNoEmail):
		logger.Info("New session notice skipped, client has no email",
			"session_id", event.SessionID)
	default:
		logger.Error("New session notice failed",
			"session_id", event.SessionID, "error", err)
	}
}
