// Package recurrence materializes ledger transactions from recurring
// schedules.
package recurrence

import (
	"time"

	"householdledger/internal/core"
)

// DaysIn returns the number of days in month of year.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonths moves date by months calendar months. The resulting day is
// dayOverride when positive, the source day otherwise, clamped to the length
// of the target month.
func AddMonths(date time.Time, months, dayOverride int) time.Time {
	total := date.Year()*12 + int(date.Month()) - 1 + months
	year, month := total/12, time.Month(total%12+1)
	return clampedDate(year, month, targetDay(date.Day(), dayOverride))
}

// NextDueDate returns the next date item should generate a transaction for.
// It reports false when the schedule has no start date or one of its dates is
// malformed.
func NextDueDate(item core.ScheduleItem) (time.Time, bool) {
	if item.HasMalformedDate() {
		return time.Time{}, false
	}
	if !item.LastGenerated.IsEmpty() {
		return AddMonths(item.LastGenerated.Time, 1, item.Day), true
	}
	if item.StartDate.IsEmpty() {
		return time.Time{}, false
	}

	start := item.StartDate.Time
	candidate := clampedDate(start.Year(), start.Month(), targetDay(start.Day(), item.Day))
	if candidate.Before(start) {
		candidate = AddMonths(candidate, 1, item.Day)
	}
	return candidate, true
}

func targetDay(day, override int) int {
	if override > 0 {
		return override
	}
	return day
}

func clampedDate(year int, month time.Month, day int) time.Time {
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// dateOf returns the calendar day of t, in its own location, at UTC midnight.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
