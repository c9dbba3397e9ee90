package streak

import (
	"sort"
	"time"
)

// Compute returns the length of the consecutive-day activity streak
// ending at reference. Dates and reference are normalized to midnight
// in the reference's location before comparison, so callers can pass
// raw timestamps.
//
// The streak counts backwards from the reference date: if the most
// recent activity day is not the reference day itself, the streak is 0.
func Compute(dates []time.Time, reference time.Time) int {
	if len(dates) == 0 {
		return 0
	}

	ref := startOfDay(reference)

	// Deduplicate on the day boundary — multiple activities on the
	// same day count once.
	seen := make(map[time.Time]struct{}, len(dates))
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := startOfDay(d.In(reference.Location()))
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}

	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	count := 0
	for _, day := range days {
		expected := ref.AddDate(0, 0, -count)
		if day.After(expected) {
			// Activity after the reference date does not extend the
			// streak and must not break it either.
			continue
		}
		if !day.Equal(expected) {
			break
		}
		count++
	}
	return count
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
