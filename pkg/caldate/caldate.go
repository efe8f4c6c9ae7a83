// Package caldate holds the calendar-date and wall-clock formats used on the
// wire and in SQL (to_char) so every domain parses them the same way.
package caldate

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"

	// SQL formats matching DateLayout and ClockLayout for to_char.
	SQLDate  = "YYYY-MM-DD"
	SQLClock = "HH24:MI"
)

// ParseDate parses YYYY-MM-DD as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// ParseClock parses HH:MM (or HH:MM:SS, seconds dropped) into an offset from
// midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		if t, err = time.Parse(ClockLayout+":05", s); err != nil {
			return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
		}
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// FormatClock renders an offset from midnight as HH:MM.
func FormatClock(d time.Duration) string {
	m := int(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Today truncates now to its calendar date in UTC.
func Today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string { return t.Format(DateLayout) }
