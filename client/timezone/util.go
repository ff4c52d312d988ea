// Package timezone provides timezone utilities for the console client.
//
// Conversation grouping compares calendar days in the user's timezone,
// so every truncation here is location-aware.
package timezone

import (
	"fmt"
	"time"
)

// UTC is the coordinated universal time timezone.
var UTC = time.UTC

// ParseTimezone parses an IANA timezone identifier (e.g., "Asia/Shanghai").
// If the timezone is invalid, returns UTC and an error.
func ParseTimezone(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return UTC, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	return loc, nil
}

// StartOfDay returns the start of the day (00:00:00) in the given timezone.
func StartOfDay(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	return time.Date(t.In(tz).Year(), t.In(tz).Month(), t.In(tz).Day(), 0, 0, 0, 0, tz)
}

// StartOfMonth returns the first day of t's month (00:00:00) in the given timezone.
func StartOfMonth(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	return time.Date(t.In(tz).Year(), t.In(tz).Month(), 1, 0, 0, 0, 0, tz)
}

// SameDay reports whether a and b fall on the same calendar day in tz.
func SameDay(a, b time.Time, tz *time.Location) bool {
	return StartOfDay(a, tz).Equal(StartOfDay(b, tz))
}
