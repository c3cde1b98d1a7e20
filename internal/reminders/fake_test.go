package reminders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store with the same dedup semantics as PGStore.
type memStore struct {
	mu       sync.Mutex
	sessions []Candidate
	done     map[uuid.UUID]bool
	configs  map[uuid.UUID]CoachConfig
	logs     []LogEntry

	upcomingErr  error
	endedErr     error
	configErr    error
	keysErr      error
	appendErr    error
	ignoreWindow bool // return every session from window queries
	honorCtx     bool // fail appends on a done context, as pgx does

	configCalls int
	keysCalls   int
}

func newMemStore(sessions ...Candidate) *memStore {
	return &memStore{
		sessions: sessions,
		done:     make(map[uuid.UUID]bool),
		configs:  make(map[uuid.UUID]CoachConfig),
	}
}

func (s *memStore) QueryUpcomingSessions(_ context.Context, start, end time.Time) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upcomingErr != nil {
		return nil, s.upcomingErr
	}
	var out []Candidate
	for _, c := range s.sessions {
		if s.done[c.SessionID] {
			continue
		}
		if s.ignoreWindow || (!c.StartsAt.Before(start) && c.StartsAt.Before(end)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) QueryEndedSessions(_ context.Context, start, end time.Time) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endedErr != nil {
		return nil, s.endedErr
	}
	var out []Candidate
	for _, c := range s.sessions {
		if e := c.EndsAt(); !e.Before(start) && e.Before(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) GetSessionCandidate(_ context.Context, id uuid.UUID) (Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.sessions {
		if c.SessionID == id {
			return c, nil
		}
	}
	return Candidate{}, ErrSessionNotFound
}

func (s *memStore) QueryCoachConfigs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]CoachConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configCalls++
	if s.configErr != nil {
		return nil, s.configErr
	}
	out := make(map[uuid.UUID]CoachConfig)
	for _, id := range ids {
		if c, ok := s.configs[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (s *memStore) QueryExistingLogKeys(_ context.Context, keys []LogKey) (map[LogKey]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keysCalls++
	if s.keysErr != nil {
		return nil, s.keysErr
	}
	want := make(map[LogKey]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	out := make(map[LogKey]bool)
	for _, e := range s.logs {
		k := LogKey{SessionID: e.SessionID, Type: e.Type}
		if want[k] && (e.Status == StatusSent || e.Status == StatusPending) {
			out[k] = true
		}
	}
	return out, nil
}

func (s *memStore) AppendLogEntry(ctx context.Context, e LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.honorCtx {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if s.appendErr != nil {
		return s.appendErr
	}
	if e.Status == StatusSent {
		for _, l := range s.logs {
			if l.SessionID == e.SessionID && l.Type == e.Type && l.Status == StatusSent {
				return ErrAlreadyRecorded
			}
		}
	}
	e.CreatedAt = time.Now()
	s.logs = append(s.logs, e)
	return nil
}

func (s *memStore) entries(id uuid.UUID, t ReminderType) []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LogEntry
	for _, e := range s.logs {
		if e.SessionID == id && e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func countStatus(entries []LogEntry, st Status) int {
	n := 0
	for _, e := range entries {
		if e.Status == st {
			n++
		}
	}
	return n
}

type sentMail struct {
	to, subject, body string
}

// memSender records deliveries. fail, if set, decides per recipient.
type memSender struct {
	mu   sync.Mutex
	sent []sentMail
	fail func(to string) error
}

func (s *memSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		if err := s.fail(to); err != nil {
			return err
		}
	}
	s.sent = append(s.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (s *memSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// cancelingSender delivers, then cancels the caller's context, like a
// shutdown signal landing right after the SMTP server accepted the message.
type cancelingSender struct {
	memSender
	cancel context.CancelFunc
}

func (s *cancelingSender) Send(ctx context.Context, to, subject, body string) error {
	if err := s.memSender.Send(ctx, to, subject, body); err != nil {
		return err
	}
	s.cancel()
	return nil
}

var errSMTPDown = errors.New("smtp: connection refused")

func session(start time.Time, email string) Candidate {
	return Candidate{
		SessionID:       uuid.New(),
		CoachID:         uuid.New(),
		ClientID:        uuid.New(),
		ClientEmail:     email,
		ClientFirstName: "Camille",
		CoachName:       "Julie Martin",
		StartsAt:        start,
		DurationMinutes: 60,
		SessionType:     "cardio",
	}
}
