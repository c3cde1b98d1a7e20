package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the SQLSTATE raised by email_logs_sent_once.
const uniqueViolation = "23505"

// Column values as stored by the hosted UI.
var (
	typeToDB = map[ReminderType]string{
		TypeRemind24h:    "rappel_24h",
		TypeRemind1h:     "rappel_1h",
		TypeConfirmation: "confirmation",
		TypeNewSession:   "nouvelle_seance",
		TypeManual:       "rappel_manuel",
	}
	statusToDB = map[Status]string{
		StatusSent:    "envoye",
		StatusPending: "en_attente",
		StatusError:   "erreur",
	}
	typeFromDB   = invert(typeToDB)
	statusFromDB = invert(statusToDB)
)

func invert[K, V comparable](m map[K]V) map[V]K {
	out := make(map[V]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// PGStore implements Store on the Postgres schema shared with the hosted UI.
// Statements are prepared by internal/db.
type PGStore struct {
	pool     *pgxpool.Pool
	timezone string
}

// NewPGStore creates a store. timezone names the zone seances.date/heure
// are expressed in.
func NewPGStore(pool *pgxpool.Pool, timezone string) *PGStore {
	return &PGStore{pool: pool, timezone: timezone}
}

// QueryUpcomingSessions returns not-done sessions starting in [start, end).
func (s *PGStore) QueryUpcomingSessions(ctx context.Context, start, end time.Time) ([]Candidate, error) {
	rows, err := s.pool.Query(ctx, "reminder_upcoming_sessions", start, end, s.timezone)
	if err != nil {
		return nil, fmt.Errorf("query upcoming sessions: %w", err)
	}
	return collectCandidates(rows)
}

// QueryEndedSessions returns sessions ending in [start, end), done or not.
func (s *PGStore) QueryEndedSessions(ctx context.Context, start, end time.Time) ([]Candidate, error) {
	rows, err := s.pool.Query(ctx, "reminder_ended_sessions", start, end, s.timezone)
	if err != nil {
		return nil, fmt.Errorf("query ended sessions: %w", err)
	}
	return collectCandidates(rows)
}

// GetSessionCandidate returns one session joined with its client and coach.
func (s *PGStore) GetSessionCandidate(ctx context.Context, sessionID uuid.UUID) (Candidate, error) {
	rows, err := s.pool.Query(ctx, "reminder_session_by_id", sessionID, s.timezone)
	if err != nil {
		return Candidate{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	candidates, err := collectCandidates(rows)
	if err != nil {
		return Candidate{}, err
	}
	if len(candidates) == 0 {
		return Candidate{}, ErrSessionNotFound
	}
	return candidates[0], nil
}

func collectCandidates(rows pgx.Rows) ([]Candidate, error) {
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(
			&c.SessionID, &c.CoachID, &c.ClientID,
			&c.ClientEmail, &c.ClientFirstName, &c.CoachName,
			&c.StartsAt, &c.DurationMinutes, &c.SessionType,
		); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// QueryCoachConfigs loads the configs of coachIDs in one round trip.
func (s *PGStore) QueryCoachConfigs(ctx context.Context, coachIDs []uuid.UUID) (map[uuid.UUID]CoachConfig, error) {
	configs := make(map[uuid.UUID]CoachConfig, len(coachIDs))
	if len(coachIDs) == 0 {
		return configs, nil
	}

	rows, err := s.pool.Query(ctx, "reminder_coach_configs", uuidStrings(coachIDs))
	if err != nil {
		return nil, fmt.Errorf("query coach configs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var c CoachConfig
		if err := rows.Scan(&id, &c.Remind24h, &c.Remind1h, &c.ConfirmAfterSession, &c.NotifyOnNewSession); err != nil {
			return nil, fmt.Errorf("scan coach config: %w", err)
		}
		configs[id] = c
	}
	return configs, rows.Err()
}

// QueryExistingLogKeys checks every key in one round trip.
func (s *PGStore) QueryExistingLogKeys(ctx context.Context, keys []LogKey) (map[LogKey]bool, error) {
	existing := make(map[LogKey]bool)
	if len(keys) == 0 {
		return existing, nil
	}

	sessionIDs := make([]string, len(keys))
	types := make([]string, len(keys))
	for i, k := range keys {
		sessionIDs[i] = k.SessionID.String()
		types[i] = typeToDB[k.Type]
	}

	rows, err := s.pool.Query(ctx, "reminder_existing_log_keys", sessionIDs, types)
	if err != nil {
		return nil, fmt.Errorf("query existing log keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var t string
		if err := rows.Scan(&id, &t); err != nil {
			return nil, fmt.Errorf("scan log key: %w", err)
		}
		existing[LogKey{SessionID: id, Type: typeFromDB[t]}] = true
	}
	return existing, rows.Err()
}

// AppendLogEntry inserts one email_logs row.
func (s *PGStore) AppendLogEntry(ctx context.Context, e LogEntry) error {
	_, err := s.pool.Exec(ctx, "reminder_append_log",
		e.ID, e.CoachID, e.ClientID, e.SessionID,
		typeToDB[e.Type], statusToDB[e.Status], e.Error,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyRecorded
		}
		return fmt.Errorf("append email log: %w", err)
	}
	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
