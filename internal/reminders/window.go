package reminders

import "time"

// Window is the half-open range [Start, End) evaluated for one reminder type
// during one tick.
type Window struct {
	Type  ReminderType
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Align truncates now to the tick period boundary (UTC). Ticks fired anywhere
// inside the same period evaluate the same windows, and consecutive periods
// tile the timeline without gaps or overlap.
func Align(now time.Time, period time.Duration) time.Time {
	return now.UTC().Truncate(period)
}

// ComputeWindows returns the windows to evaluate at now.
//
// Lead-time windows start at align(now)+lead and span one period; they are
// matched against the session start. The confirmation window covers the
// previous period and is matched against the session end.
// A tick that never runs leaves its windows unevaluated; nothing backfills them.
func ComputeWindows(now time.Time, period time.Duration) []Window {
	base := Align(now, period)
	leads := []struct {
		t    ReminderType
		lead time.Duration
	}{
		{TypeRemind24h, lead24h},
		{TypeRemind1h, lead1h},
	}

	windows := make([]Window, 0, len(leads)+1)
	for _, l := range leads {
		start := base.Add(l.lead)
		windows = append(windows, Window{Type: l.t, Start: start, End: start.Add(period)})
	}
	windows = append(windows, Window{Type: TypeConfirmation, Start: base.Add(-period), End: base})
	return windows
}
