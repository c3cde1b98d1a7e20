package reminders

import (
	"testing"

	"github.com/google/uuid"
)

func reminder(coach uuid.UUID, t ReminderType, email string) Reminder {
	return Reminder{
		Candidate: Candidate{SessionID: uuid.New(), CoachID: coach, ClientEmail: email},
		Type:      t,
	}
}

func TestFilterByPreference(t *testing.T) {
	withConfig, withoutConfig := uuid.New(), uuid.New()
	configs := map[uuid.UUID]CoachConfig{
		withConfig: {Remind24h: false, Remind1h: true, ConfirmAfterSession: false, NotifyOnNewSession: false},
	}

	tests := []struct {
		name string
		r    Reminder
		keep bool
	}{
		{"configured 24h off", reminder(withConfig, TypeRemind24h, "x"), false},
		{"configured 1h on", reminder(withConfig, TypeRemind1h, "x"), true},
		{"configured confirmation off", reminder(withConfig, TypeConfirmation, "x"), false},
		{"configured manual always", reminder(withConfig, TypeManual, "x"), true},
		{"default 24h on", reminder(withoutConfig, TypeRemind24h, "x"), true},
		{"default 1h off", reminder(withoutConfig, TypeRemind1h, "x"), false},
		{"default confirmation on", reminder(withoutConfig, TypeConfirmation, "x"), true},
		{"default new session on", reminder(withoutConfig, TypeNewSession, "x"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, skipped := FilterByPreference([]Reminder{tt.r}, configs)
			if got := len(kept) == 1; got != tt.keep {
				t.Fatalf("keep = %v, want %v", got, tt.keep)
			}
			if skipped != 1-len(kept) {
				t.Fatalf("skipped = %d, kept = %d", skipped, len(kept))
			}
		})
	}
}

func TestFilterDuplicates(t *testing.T) {
	coach := uuid.New()
	logged := reminder(coach, TypeRemind24h, "a")
	fresh := reminder(coach, TypeRemind24h, "b")
	sameSessionOtherType := Reminder{Candidate: logged.Candidate, Type: TypeRemind1h}

	existing := map[LogKey]bool{logged.Key(): true}
	kept, skipped := FilterDuplicates([]Reminder{logged, fresh, sameSessionOtherType, fresh}, existing)

	if skipped != 2 {
		t.Fatalf("expected the logged key and the repeated key skipped, got %d", skipped)
	}
	if len(kept) != 2 || kept[0].Key() != fresh.Key() || kept[1].Key() != sameSessionOtherType.Key() {
		t.Fatalf("unexpected kept set %+v", kept)
	}
}

func TestDropMissingEmailDoesNotAliasInput(t *testing.T) {
	coach := uuid.New()
	in := []Reminder{reminder(coach, TypeRemind24h, ""), reminder(coach, TypeRemind24h, "b")}
	first := in[0]

	kept, dropped := DropMissingEmail(in)
	if dropped != 1 || len(kept) != 1 || kept[0].ClientEmail != "b" {
		t.Fatalf("got kept=%+v dropped=%d", kept, dropped)
	}
	if in[0].SessionID != first.SessionID {
		t.Fatal("input slice was modified")
	}
}

func TestCoachIDsDistinctInOrder(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids := CoachIDs([]Reminder{
		reminder(a, TypeRemind24h, "x"),
		reminder(b, TypeRemind24h, "x"),
		reminder(a, TypeRemind1h, "x"),
	})
	if len(ids) != 2 || ids[0] != a || ids[1] != b {
		t.Fatalf("got %v", ids)
	}
}
