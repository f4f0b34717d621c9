// Package recurrence computes the next occurrence of a repeating
// scheduled message. All functions are pure.
package recurrence

import (
	"time"

	"campaign-engine/internal/domain"
)

// Next returns the occurrence following t for the given repeat kind.
// The boolean is false when no further occurrence exists.
func Next(t time.Time, repeat domain.RepeatType) (time.Time, bool) {
	switch repeat {
	case domain.RepeatDaily:
		return t.AddDate(0, 0, 1), true
	case domain.RepeatWeekly:
		return t.AddDate(0, 0, 7), true
	case domain.RepeatMonthly:
		return nextMonth(t), true
	}
	return time.Time{}, false
}

// nextMonth advances to the same day-of-month in the following month,
// clamped to the last valid day when the target month is shorter
// (Jan 31 -> Feb 28/29). AddDate cannot be used here: it normalizes
// Jan 31 + 1 month to Mar 2/3.
func nextMonth(t time.Time) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	if last := lastDay(year, month+1); day > last {
		day = last
	}
	return time.Date(year, month+1, day, hour, min, sec, t.Nanosecond(), t.Location())
}

func lastDay(year int, month time.Month) int {
	// day zero of the following month
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
