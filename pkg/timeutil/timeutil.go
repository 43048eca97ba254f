// Package timeutil holds the slot arithmetic shared by the scheduling engine:
// instant normalization into the practice timezone, slot-grid alignment checks
// and listing-range derivation.
package timeutil

import (
	"time"

	"github.com/osdentaire/agenda-api/pkg/errors"
)

// DefaultTimezone is the practice's operating zone; all stored instants are
// normalized to it.
const DefaultTimezone = "Europe/Paris"

// NormalizeInstant parses an ISO-8601 instant carrying an offset or zone and
// converts it to loc, truncated to the minute.
func NormalizeInstant(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.InvalidDateTime(raw)
	}
	return t.In(loc).Truncate(time.Minute), nil
}

// IsSlotAligned reports whether t sits on the slot grid: minute-of-hour is a
// multiple of slotMinutes and seconds/sub-seconds are zero.
func IsSlotAligned(t time.Time, slotMinutes int) bool {
	if slotMinutes <= 0 {
		return false
	}
	return t.Minute()%slotMinutes == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

// StartOfWeek returns Monday 00:00 of t's calendar week in t's location.
func StartOfWeek(t time.Time) time.Time {
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -daysSinceMonday)
}

// ListingRange derives the [start, end) window for a listing. Explicit bounds
// are normalized; otherwise the window defaults to the current calendar week
// in loc. End must be strictly after start.
func ListingRange(start, end string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	var (
		rangeStart time.Time
		err        error
	)
	if start != "" {
		rangeStart, err = NormalizeInstant(start, loc)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		rangeStart = StartOfWeek(now.In(loc))
	}

	var rangeEnd time.Time
	if end != "" {
		rangeEnd, err = NormalizeInstant(end, loc)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		rangeEnd = rangeStart.AddDate(0, 0, 7)
	}

	if !rangeEnd.After(rangeStart) {
		return time.Time{}, time.Time{}, errors.InvalidRange()
	}
	return rangeStart, rangeEnd, nil
}
