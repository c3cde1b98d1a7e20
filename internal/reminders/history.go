package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// ErrCoachNotFound is returned when a coach id has no coachs row.
var ErrCoachNotFound = errors.New("coach not found")

// HistoryFilter narrows the email log history of one coach.
type HistoryFilter struct {
	Status Status
	Type   ReminderType
	Limit  int
	Offset int
}

// HistoryEntry is a log row joined with what the history view displays.
type HistoryEntry struct {
	LogEntry
	ClientFirstName string     `json:"client_first_name"`
	ClientLastName  string     `json:"client_last_name"`
	ClientEmail     string     `json:"client_email"`
	SessionDate     *time.Time `json:"session_date,omitempty"`
	SessionTime     string     `json:"session_time,omitempty"`
}

// ListHistory returns a coach's email log, newest first.
func (s *PGStore) ListHistory(ctx context.Context, coachID uuid.UUID, f HistoryFilter) ([]HistoryEntry, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	f.Limit = min(f.Limit, MaxHistoryLimit)
	if f.Offset < 0 {
		f.Offset = 0
	}

	var statusParam, typeParam interface{}
	if f.Status != "" {
		statusParam = statusToDB[f.Status]
	}
	if f.Type != "" {
		typeParam = typeToDB[f.Type]
	}

	rows, err := s.pool.Query(ctx, "email_logs_by_coach", coachID, statusParam, typeParam, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, f.Limit)
	for rows.Next() {
		var (
			e           HistoryEntry
			rawType     string
			rawStatus   string
			sessionTime pgtype.Time
		)
		if err := rows.Scan(
			&e.ID, &e.ClientID, &e.SessionID, &rawType, &rawStatus, &e.Error, &e.CreatedAt,
			&e.ClientFirstName, &e.ClientLastName, &e.ClientEmail,
			&e.SessionDate, &sessionTime,
		); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		e.CoachID = coachID
		e.Type = typeFromDB[rawType]
		e.Status = statusFromDB[rawStatus]
		if sessionTime.Valid {
			e.SessionTime = formatClock(time.Duration(sessionTime.Microseconds) * time.Microsecond)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HistoryStats returns per-status counts for a coach, from the periodically
// refreshed mv_email_log_stats view.
func (s *PGStore) HistoryStats(ctx context.Context, coachID uuid.UUID) (map[Status]int, error) {
	stats := map[Status]int{StatusSent: 0, StatusPending: 0, StatusError: 0}

	rows, err := s.pool.Query(ctx, "email_log_stats", coachID)
	if err != nil {
		return nil, fmt.Errorf("email log stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		var total int
		if err := rows.Scan(&raw, &total); err != nil {
			return nil, fmt.Errorf("scan email log stats: %w", err)
		}
		if st, ok := statusFromDB[raw]; ok {
			stats[st] = total
		}
	}
	return stats, rows.Err()
}

// GetCoachConfig returns the coach's preferences, or the defaults when no
// row exists.
func (s *PGStore) GetCoachConfig(ctx context.Context, coachID uuid.UUID) (CoachConfig, error) {
	var c CoachConfig
	err := s.pool.QueryRow(ctx, "coach_config_by_id", coachID).Scan(
		&c.Remind24h, &c.Remind1h, &c.ConfirmAfterSession, &c.NotifyOnNewSession,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultCoachConfig(), nil
	}
	if err != nil {
		return CoachConfig{}, fmt.Errorf("get coach config: %w", err)
	}
	return c, nil
}

// SaveCoachConfig upserts the four preference flags.
func (s *PGStore) SaveCoachConfig(ctx context.Context, coachID uuid.UUID, c CoachConfig) error {
	_, err := s.pool.Exec(ctx, "coach_config_upsert",
		coachID, c.Remind24h, c.Remind1h, c.ConfirmAfterSession, c.NotifyOnNewSession)
	if err != nil {
		return fmt.Errorf("save coach config: %w", err)
	}
	return nil
}

// CoachContact returns the coach's email and display name.
func (s *PGStore) CoachContact(ctx context.Context, coachID uuid.UUID) (email, name string, err error) {
	err = s.pool.QueryRow(ctx, "coach_contact", coachID).Scan(&email, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", ErrCoachNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("get coach contact: %w", err)
	}
	return email, name, nil
}

// SessionCoach returns the coach owning a session.
func (s *PGStore) SessionCoach(ctx context.Context, sessionID uuid.UUID) (uuid.UUID, error) {
	var coachID uuid.UUID
	err := s.pool.QueryRow(ctx, "session_coach", sessionID).Scan(&coachID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrSessionNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get session coach: %w", err)
	}
	return coachID, nil
}

// formatClock renders a TIME column as HH:MM.
func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
