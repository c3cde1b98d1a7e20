package reminders

import (
	"strings"
	"testing"
	"time"
)

func TestBuildMessageDayBefore(t *testing.T) {
	r := Reminder{
		Candidate: session(mustTime(t, "2026-03-01T09:00:00Z"), "camille@example.com"),
		Type:      TypeRemind24h,
	}

	msg, err := BuildMessage(r, time.UTC)
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}

	want := "Bonjour Camille,\n\n" +
		"Ceci est un rappel pour votre séance de sport-santé demain :\n\n" +
		"📅 Date: 01/03/2026\n" +
		"🕐 Heure: 09:00\n" +
		"👤 Coach: Julie Martin\n\n" +
		"À demain !\n\n" +
		"MyCareCoach\nVotre santé en mouvement"
	if msg.Body != want {
		t.Fatalf("body mismatch:\n%s\n--- want ---\n%s", msg.Body, want)
	}
	if msg.To != "camille@example.com" {
		t.Fatalf("unexpected recipient %q", msg.To)
	}
}

func TestBuildMessageUsesSessionTimezone(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	r := Reminder{
		Candidate: session(mustTime(t, "2026-03-01T09:00:00Z"), "camille@example.com"),
		Type:      TypeRemind1h,
	}

	msg, err := BuildMessage(r, paris)
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}
	if msg.Subject != "Rappel: Votre séance commence à 10:00" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
}

func TestBuildMessageEveryType(t *testing.T) {
	c := session(mustTime(t, "2026-03-01T09:00:00Z"), "camille@example.com")
	for _, typ := range ReminderTypes {
		msg, err := BuildMessage(Reminder{Candidate: c, Type: typ}, time.UTC)
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		if msg.Subject == "" || !strings.Contains(msg.Body, "Camille") || !strings.HasSuffix(msg.Body, signature) {
			t.Errorf("%s: incomplete message %+v", typ, msg)
		}
	}
}

func TestBuildMessageUnknownType(t *testing.T) {
	c := session(mustTime(t, "2026-03-01T09:00:00Z"), "camille@example.com")
	if _, err := BuildMessage(Reminder{Candidate: c, Type: "weekly"}, time.UTC); err == nil {
		t.Fatal("expected an error for an unknown type")
	}
}

func TestParseReminderType(t *testing.T) {
	for _, typ := range ReminderTypes {
		got, err := ParseReminderType(string(typ))
		if err != nil || got != typ {
			t.Errorf("ParseReminderType(%q) = %q, %v", typ, got, err)
		}
	}
	if _, err := ParseReminderType("rappel_24h"); err == nil {
		t.Error("storage names are not accepted")
	}
}
