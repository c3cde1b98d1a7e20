package listener

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mycarecoach/coachos/internal/reminders"
)

type recordingNotifier struct {
	calls []uuid.UUID
	types []reminders.ReminderType
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, id uuid.UUID, t reminders.ReminderType) (reminders.Status, error) {
	n.calls = append(n.calls, id)
	n.types = append(n.types, t)
	if n.err != nil {
		return "", n.err
	}
	return reminders.StatusSent, nil
}

func TestParseEvent(t *testing.T) {
	id := uuid.New()
	coach := uuid.New()

	event, err := ParseEvent(`{"seance_id":"` + id.String() + `","coach_id":"` + coach.String() + `"}`)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if event.SessionID != id || event.CoachID != coach {
		t.Fatalf("got %+v", event)
	}
}

func TestParseEventRejectsBadPayloads(t *testing.T) {
	for _, payload := range []string{``, `not json`, `{}`, `{"seance_id":"42"}`} {
		if _, err := ParseEvent(payload); err == nil {
			t.Errorf("ParseEvent(%q) should fail", payload)
		}
	}
}

func TestHandleEventSendsNewSessionNotice(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	id := uuid.New()

	for _, notifyErr := range []error{nil, reminders.ErrNotificationDisabled, errors.New("boom")} {
		n := &recordingNotifier{err: notifyErr}
		HandleEvent(context.Background(), n, SessionCreatedEvent{SessionID: id}, logger)

		if len(n.calls) != 1 || n.calls[0] != id || n.types[0] != reminders.TypeNewSession {
			t.Fatalf("expected one newSession notify for %s, got %v %v", id, n.calls, n.types)
		}
	}
}

// overlapNotifier records the highest number of Notify calls in flight.
type overlapNotifier struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	handled  []uuid.UUID
}

func (n *overlapNotifier) Notify(_ context.Context, id uuid.UUID, _ reminders.ReminderType) (reminders.Status, error) {
	n.mu.Lock()
	n.inFlight++
	n.maxSeen = max(n.maxSeen, n.inFlight)
	n.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	n.mu.Lock()
	n.inFlight--
	n.handled = append(n.handled, id)
	n.mu.Unlock()
	return reminders.StatusSent, nil
}

func TestProcessHandlesEventsOneAtATime(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := &overlapNotifier{}
	events := make(chan SessionCreatedEvent, 4)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		events <- SessionCreatedEvent{SessionID: id}
	}
	close(events)

	Process(context.Background(), n, events, logger)

	if n.maxSeen != 1 {
		t.Fatalf("expected sequential handling, saw %d concurrent notifies", n.maxSeen)
	}
	if len(n.handled) != len(ids) {
		t.Fatalf("expected %d events handled, got %d", len(ids), len(n.handled))
	}
	for i, id := range ids {
		if n.handled[i] != id {
			t.Fatalf("event %d handled out of order", i)
		}
	}
}

func TestProcessDropsQueuedEventsAfterCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := &recordingNotifier{}
	events := make(chan SessionCreatedEvent, 2)
	events <- SessionCreatedEvent{SessionID: uuid.New()}
	events <- SessionCreatedEvent{SessionID: uuid.New()}
	close(events)

	Process(ctx, n, events, logger)

	if len(n.calls) != 0 {
		t.Fatalf("expected no notifies after cancel, got %d", len(n.calls))
	}
}
