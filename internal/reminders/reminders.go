// Package reminders decides which coaching sessions need a reminder email and
// guarantees each (session, reminder type) is sent at most once.
//
// Pipeline per tick: windows → candidates → coach preferences → persisted
// dedup → render → send → append email log row.
// Dedup is keyed only on the email_logs table, so restarts and re-runs are safe.
package reminders

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	lead24h = 24 * time.Hour
	lead1h  = time.Hour

	defaultTickPeriod   = time.Hour
	defaultStoreTimeout = 10 * time.Second
	defaultSendTimeout  = 15 * time.Second
)

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrUnrecordedSend means an email went out but its log row could not be
	// written. The next tick may send it again.
	ErrUnrecordedSend = errors.New("reminder sent but not recorded")

	// ErrAlreadyRecorded is returned by a Store when a sent row for the same
	// (session, type) already exists.
	ErrAlreadyRecorded = errors.New("reminder already recorded as sent")

	// ErrPartialTick means at least one window could not be evaluated.
	ErrPartialTick = errors.New("tick completed partially")

	ErrSessionNotFound      = errors.New("session not found")
	ErrAlreadySent          = errors.New("reminder already sent for session")
	ErrNoEmail              = errors.New("client has no email address")
	ErrNotificationDisabled = errors.New("notification disabled by coach")
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// ReminderType identifies which message a log row records.
type ReminderType string

const (
	TypeRemind24h    ReminderType = "remind24h"
	TypeRemind1h     ReminderType = "remind1h"
	TypeConfirmation ReminderType = "confirmation"
	TypeNewSession   ReminderType = "newSession"
	TypeManual       ReminderType = "manual"
)

// ReminderTypes lists every type in display order.
var ReminderTypes = []ReminderType{
	TypeRemind24h, TypeRemind1h, TypeConfirmation, TypeNewSession, TypeManual,
}

// ParseReminderType validates a type name coming from a flag or query string.
func ParseReminderType(s string) (ReminderType, error) {
	for _, t := range ReminderTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown reminder type %q", s)
}

// Status is the outcome recorded for one dispatch attempt.
type Status string

const (
	StatusSent    Status = "sent"
	StatusPending Status = "pending"
	StatusError   Status = "error"
)

// ParseStatus validates a status name coming from a query string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusSent, StatusPending, StatusError:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Candidate is an upcoming (or just finished) session joined with its client
// and coach.
type Candidate struct {
	SessionID       uuid.UUID
	CoachID         uuid.UUID
	ClientID        uuid.UUID
	ClientEmail     string
	ClientFirstName string
	CoachName       string
	StartsAt        time.Time
	DurationMinutes int
	SessionType     string
}

// EndsAt returns the session end instant.
func (c Candidate) EndsAt() time.Time {
	return c.StartsAt.Add(time.Duration(c.DurationMinutes) * time.Minute)
}

// Reminder is a candidate paired with the reminder type it is evaluated for.
type Reminder struct {
	Candidate
	Type ReminderType
}

// Key returns the dedup key of the reminder.
func (r Reminder) Key() LogKey {
	return LogKey{SessionID: r.SessionID, Type: r.Type}
}

// CoachConfig holds a coach's notification preferences.
type CoachConfig struct {
	Remind24h           bool `json:"remind24h"`
	Remind1h            bool `json:"remind1h"`
	ConfirmAfterSession bool `json:"confirmAfterSession"`
	NotifyOnNewSession  bool `json:"notifyOnNewSession"`
}

// DefaultCoachConfig applies when a coach has no coach_config row.
func DefaultCoachConfig() CoachConfig {
	return CoachConfig{
		Remind24h:           true,
		Remind1h:            false,
		ConfirmAfterSession: true,
		NotifyOnNewSession:  true,
	}
}

// Allows reports whether the coach wants reminders of type t.
// Manual reminders are an explicit coach action and always allowed.
func (c CoachConfig) Allows(t ReminderType) bool {
	switch t {
	case TypeRemind24h:
		return c.Remind24h
	case TypeRemind1h:
		return c.Remind1h
	case TypeConfirmation:
		return c.ConfirmAfterSession
	case TypeNewSession:
		return c.NotifyOnNewSession
	case TypeManual:
		return true
	}
	return false
}

// LogKey is the at-most-once key of the email log.
type LogKey struct {
	SessionID uuid.UUID
	Type      ReminderType
}

// LogEntry is one append-only email_logs row.
type LogEntry struct {
	ID        uuid.UUID    `json:"id"`
	CoachID   uuid.UUID    `json:"coach_id"`
	ClientID  uuid.UUID    `json:"client_id"`
	SessionID uuid.UUID    `json:"seance_id"`
	Type      ReminderType `json:"type"`
	Status    Status       `json:"status"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Summary reports the outcome of one tick.
type Summary struct {
	TickAt            time.Time `json:"tick_at"`
	Windows           int       `json:"windows"`
	Candidates        int       `json:"candidates"`
	SkippedNoEmail    int       `json:"skipped_no_email"`
	SkippedPreference int       `json:"skipped_preference"`
	SkippedDuplicate  int       `json:"skipped_duplicate"`
	Sent              int       `json:"sent"`
	DuplicateSent     int       `json:"duplicate_sent"` // delivered, but another attempt holds the sent row
	Unrecorded        int       `json:"unrecorded"`     // delivered, log append failed
	Failed            int       `json:"failed"`
	Errors            []string  `json:"errors,omitempty"`
}

// String returns a human-readable summary.
func (s Summary) String() string {
	return fmt.Sprintf(
		"tick=%s windows=%d candidates=%d no_email=%d pref=%d dup=%d sent=%d dup_sent=%d unrecorded=%d failed=%d errors=%d",
		s.TickAt.UTC().Format(time.RFC3339), s.Windows, s.Candidates,
		s.SkippedNoEmail, s.SkippedPreference, s.SkippedDuplicate,
		s.Sent, s.DuplicateSent, s.Unrecorded, s.Failed, len(s.Errors))
}

// Appended returns the number of log rows written during the tick.
func (s Summary) Appended() int {
	return s.Sent + s.Failed
}
