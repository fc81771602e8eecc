package domain

import (
	"strings"
	"time"
)

// DayLayout is the calendar-day format accepted by day filters.
const DayLayout = "2006-01-02"

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DayBounds parses a YYYY-MM-DD day in loc and returns its closed
// [00:00:00.000, 23:59:59.999] interval.
func DayBounds(day string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	parsed, err := time.ParseInLocation(DayLayout, strings.TrimSpace(day), loc)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidDate
	}
	start := StartOfDay(parsed, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end, nil
}
