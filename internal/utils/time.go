package utils

import (
	"fmt"
	"time"
)

// DateLayout is the civil date format used for opened, reserved and quota dates.
const DateLayout = "2006-01-02"

// DateKey returns the civil date of t in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

func ParseDateKey(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// WithinWindow reports whether the civil date today falls between the civil dates of
// start and end, inclusive on both ends.
func WithinWindow(today string, start, end time.Time, loc *time.Location) bool {
	return today >= DateKey(start, loc) && today <= DateKey(end, loc)
}

// LoadLocation falls back to UTC when name is empty.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
