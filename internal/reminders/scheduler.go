package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mycarecoach/coachos/internal/metrics"
)

// Store is the data the scheduler reads and the log it appends to.
type Store interface {
	// QueryUpcomingSessions returns not-done sessions starting in [start, end).
	QueryUpcomingSessions(ctx context.Context, start, end time.Time) ([]Candidate, error)
	// QueryEndedSessions returns sessions ending in [start, end).
	QueryEndedSessions(ctx context.Context, start, end time.Time) ([]Candidate, error)
	// GetSessionCandidate returns one session, or ErrSessionNotFound.
	GetSessionCandidate(ctx context.Context, sessionID uuid.UUID) (Candidate, error)
	// QueryCoachConfigs returns the stored configs; absent coaches are omitted.
	QueryCoachConfigs(ctx context.Context, coachIDs []uuid.UUID) (map[uuid.UUID]CoachConfig, error)
	// QueryExistingLogKeys returns the keys that already have a sent or
	// pending row.
	QueryExistingLogKeys(ctx context.Context, keys []LogKey) (map[LogKey]bool, error)
	// AppendLogEntry writes one row. It returns ErrAlreadyRecorded when a
	// sent row for the same key exists.
	AppendLogEntry(ctx context.Context, entry LogEntry) error
}

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Options tunes a Scheduler. Zero values pick defaults.
type Options struct {
	TickPeriod   time.Duration
	StoreTimeout time.Duration
	SendTimeout  time.Duration
	Location     *time.Location
}

// Scheduler runs reminder ticks. It never reads the clock; callers pass now.
type Scheduler struct {
	store        Store
	sender       Sender
	period       time.Duration
	storeTimeout time.Duration
	sendTimeout  time.Duration
	loc          *time.Location
	logger       *slog.Logger

	notifyLocks keyLocks
}

// NewScheduler creates a Scheduler.
func NewScheduler(store Store, sender Sender, opts Options, logger *slog.Logger) *Scheduler {
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = defaultTickPeriod
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        store,
		sender:       sender,
		period:       opts.TickPeriod,
		storeTimeout: opts.StoreTimeout,
		sendTimeout:  opts.SendTimeout,
		loc:          opts.Location,
		logger:       logger,
	}
}

// Location returns the timezone messages are rendered in.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// RunTick evaluates every window at now and dispatches due reminders.
//
// A failed window query skips that window only (ErrPartialTick). A failed
// config or log-key query stops the tick before any send. A log append that
// fails after a successful send aborts the remaining dispatches and returns
// ErrUnrecordedSend.
func (s *Scheduler) RunTick(ctx context.Context, now time.Time) (Summary, error) {
	summary := Summary{TickAt: Align(now, s.period)}

	// 1. Candidate selection per window
	var windowErrs []error
	var pending []Reminder
	for _, w := range ComputeWindows(now, s.period) {
		candidates, err := s.selectCandidates(ctx, w)
		if err != nil {
			s.logger.Error("window query failed",
				"type", w.Type, "start", w.Start, "end", w.End, "error", err)
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", w.Type, err))
			windowErrs = append(windowErrs, fmt.Errorf("window %s: %w", w.Type, err))
			continue
		}
		summary.Windows++
		for _, c := range candidates {
			pending = append(pending, Reminder{Candidate: c, Type: w.Type})
		}
	}
	summary.Candidates = len(pending)

	pending, summary.SkippedNoEmail = DropMissingEmail(pending)
	metrics.ReminderSkipped(metrics.SkipNoEmail, summary.SkippedNoEmail)
	if len(pending) == 0 {
		return summary, partialErr(windowErrs)
	}

	// 2. Coach preferences, one query for every coach in the tick
	configs, err := s.coachConfigs(ctx, CoachIDs(pending))
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		return summary, errors.Join(append(windowErrs, err)...)
	}
	pending, summary.SkippedPreference = FilterByPreference(pending, configs)
	metrics.ReminderSkipped(metrics.SkipPreference, summary.SkippedPreference)
	if len(pending) == 0 {
		return summary, partialErr(windowErrs)
	}

	// 3. Persisted dedup, one batched existence check
	existing, err := s.existingKeys(ctx, LogKeys(pending))
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		return summary, errors.Join(append(windowErrs, err)...)
	}
	pending, summary.SkippedDuplicate = FilterDuplicates(pending, existing)
	metrics.ReminderSkipped(metrics.SkipDuplicate, summary.SkippedDuplicate)

	// 4. Dispatch
	for i, r := range pending {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("tick cancelled before dispatch finished",
				"remaining", len(pending)-i, "error", err)
			summary.Errors = append(summary.Errors, err.Error())
			return summary, errors.Join(append(windowErrs, err)...)
		}

		status, err := s.dispatch(ctx, r)
		switch {
		case errors.Is(err, ErrAlreadyRecorded):
			summary.DuplicateSent++
		case errors.Is(err, ErrUnrecordedSend):
			summary.Unrecorded++
			summary.Errors = append(summary.Errors, err.Error())
			s.logger.Error("tick aborted after unrecorded send",
				"alert", true, "remaining", len(pending)-i-1, "error", err)
			return summary, errors.Join(append(windowErrs, err)...)
		case status == StatusSent:
			summary.Sent++
		case status == StatusError:
			summary.Failed++
		}
	}

	return summary, partialErr(windowErrs)
}

// Notify sends a single reminder of type t for one session outside the tick
// windows: new-session notices and manual reminders. Preferences apply to
// every type except manual; dedup applies to all.
//
// Calls for the same session and type are serialized, so the listener, the
// catch-up sweep and the API cannot both pass dedup in one process.
func (s *Scheduler) Notify(ctx context.Context, sessionID uuid.UUID, t ReminderType) (Status, error) {
	unlock := s.notifyLocks.lock(LogKey{SessionID: sessionID, Type: t})
	defer unlock()

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	c, err := s.store.GetSessionCandidate(storeCtx, sessionID)
	cancel()
	if err != nil {
		return "", err
	}
	if c.ClientEmail == "" {
		return "", ErrNoEmail
	}
	r := Reminder{Candidate: c, Type: t}

	if t != TypeManual {
		configs, err := s.coachConfigs(ctx, []uuid.UUID{c.CoachID})
		if err != nil {
			return "", err
		}
		if kept, _ := FilterByPreference([]Reminder{r}, configs); len(kept) == 0 {
			return "", ErrNotificationDisabled
		}
	}

	existing, err := s.existingKeys(ctx, []LogKey{r.Key()})
	if err != nil {
		return "", err
	}
	if existing[r.Key()] {
		return "", ErrAlreadySent
	}

	status, err := s.dispatch(ctx, r)
	if errors.Is(err, ErrAlreadyRecorded) {
		return status, nil
	}
	return status, err
}

// SendTest delivers a test message without logging it.
func (s *Scheduler) SendTest(ctx context.Context, msg Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	return s.sender.Send(sendCtx, msg.To, msg.Subject, msg.Body)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (s *Scheduler) selectCandidates(ctx context.Context, w Window) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if w.Type == TypeConfirmation {
		return s.store.QueryEndedSessions(ctx, w.Start, w.End)
	}
	return s.store.QueryUpcomingSessions(ctx, w.Start, w.End)
}

func (s *Scheduler) coachConfigs(ctx context.Context, coachIDs []uuid.UUID) (map[uuid.UUID]CoachConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	configs, err := s.store.QueryCoachConfigs(ctx, coachIDs)
	if err != nil {
		return nil, fmt.Errorf("query coach configs: %w", err)
	}
	return configs, nil
}

func (s *Scheduler) existingKeys(ctx context.Context, keys []LogKey) (map[LogKey]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	existing, err := s.store.QueryExistingLogKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("query existing log keys: %w", err)
	}
	return existing, nil
}

// dispatch sends r and appends exactly one log row for the attempt. The
// returned error is ErrAlreadyRecorded when another attempt holds the sent
// row, ErrUnrecordedSend when the row could not be written after a send,
// and nil otherwise.
//
// The append outlives ctx: once the email is out, cancellation must not
// keep it from being recorded.
func (s *Scheduler) dispatch(ctx context.Context, r Reminder) (Status, error) {
	entry := LogEntry{
		ID:        uuid.New(),
		CoachID:   r.CoachID,
		ClientID:  r.ClientID,
		SessionID: r.SessionID,
		Type:      r.Type,
		Status:    StatusSent,
	}

	msg, err := BuildMessage(r, s.loc)
	if err == nil {
		sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		err = s.sender.Send(sendCtx, msg.To, msg.Subject, msg.Body)
		cancel()
	}
	if err != nil {
		entry.Status = StatusError
		entry.Error = err.Error()
		s.logger.Warn("reminder send failed",
			"session_id", r.SessionID, "type", r.Type, "error", err)
	}

	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	appendErr := s.store.AppendLogEntry(appendCtx, entry)
	cancel()
	metrics.ReminderAttempt(string(r.Type), string(entry.Status))

	switch {
	case appendErr == nil:
		if entry.Status == StatusSent {
			s.logger.Info("reminder sent",
				"session_id", r.SessionID, "type", r.Type, "coach_id", r.CoachID)
		}
		return entry.Status, nil

	case entry.Status == StatusError:
		// Nothing went out; the next tick retries while the window is open.
		s.logger.Error("failed to log send failure",
			"session_id", r.SessionID, "type", r.Type, "error", appendErr)
		return entry.Status, nil

	case errors.Is(appendErr, ErrAlreadyRecorded):
		s.logger.Warn("reminder recorded concurrently, duplicate email possible",
			"session_id", r.SessionID, "type", r.Type)
		return entry.Status, ErrAlreadyRecorded

	default:
		metrics.UnrecordedSend()
		s.logger.Error("reminder sent but not recorded",
			"alert", true, "session_id", r.SessionID, "type", r.Type, "error", appendErr)
		return entry.Status, fmt.Errorf("%w: session=%s type=%s: %w",
			ErrUnrecordedSend, r.SessionID, r.Type, appendErr)
	}
}

// keyLocks is a set of mutexes keyed by LogKey. Entries are dropped once
// no caller holds or waits on them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[LogKey]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func (k *keyLocks) lock(key LogKey) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[LogKey]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func partialErr(windowErrs []error) error {
	if len(windowErrs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPartialTick, errors.Join(windowErrs...))
}
