package reminders

import "github.com/google/uuid"

// DropMissingEmail removes reminders whose client cannot be reached.
func DropMissingEmail(items []Reminder) (kept []Reminder, dropped int) {
	kept = items[:0:0]
	for _, r := range items {
		if r.ClientEmail == "" {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped
}

// CoachIDs returns the distinct coach ids of items, in first-seen order.
func CoachIDs(items []Reminder) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, r := range items {
		if !seen[r.CoachID] {
			seen[r.CoachID] = true
			ids = append(ids, r.CoachID)
		}
	}
	return ids
}

// FilterByPreference keeps reminders the owning coach has enabled. Coaches
// missing from configs get DefaultCoachConfig.
func FilterByPreference(items []Reminder, configs map[uuid.UUID]CoachConfig) (kept []Reminder, skipped int) {
	kept = items[:0:0]
	for _, r := range items {
		cfg, ok := configs[r.CoachID]
		if !ok {
			cfg = DefaultCoachConfig()
		}
		if !cfg.Allows(r.Type) {
			skipped++
			continue
		}
		kept = append(kept, r)
	}
	return kept, skipped
}

// LogKeys returns the dedup keys of items.
func LogKeys(items []Reminder) []LogKey {
	keys := make([]LogKey, len(items))
	for i, r := range items {
		keys[i] = r.Key()
	}
	return keys
}

// FilterDuplicates drops reminders already handled according to existing,
// and repeated keys within items.
func FilterDuplicates(items []Reminder, existing map[LogKey]bool) (kept []Reminder, skipped int) {
	kept = items[:0:0]
	seen := make(map[LogKey]bool, len(items))
	for _, r := range items {
		k := r.Key()
		if existing[k] || seen[k] {
			skipped++
			continue
		}
		seen[k] = true
		kept = append(kept, r)
	}
	return kept, skipped
}
