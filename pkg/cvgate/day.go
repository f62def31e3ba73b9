package cvgate

import (
	"fmt"
	"time"
)

// dayKeyFormat is the stable string form of a counter day.
const dayKeyFormat = "2006-01-02"

// Day is a UTC calendar date, the scope of every usage counter. Quota
// resets are purely a function of the date: a counter recorded for one
// Day never affects decisions made on the next.
type Day struct {
	t time.Time
}

// DayOf truncates a time to its UTC calendar date.
func DayOf(t time.Time) Day {
	tt := t.UTC()
	return Day{t: time.Date(tt.Year(), tt.Month(), tt.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDay parses a stable day key produced by Key.
func ParseDay(s string) (Day, error) {
	t, err := time.ParseInLocation(dayKeyFormat, s, time.UTC)
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return Day{t: t}, nil
}

// Time returns the day as UTC midnight.
func (d Day) Time() time.Time {
	return d.t
}

// Key returns the stable string key for this day, e.g. "2026-08-30".
func (d Day) Key() string {
	return d.t.Format(dayKeyFormat)
}

// Next returns the following calendar day.
func (d Day) Next() Day {
	return Day{t: d.t.Add(24 * time.Hour)}
}

// IsZero reports whether the day is the zero value.
func (d Day) IsZero() bool {
	return d.t.IsZero()
}

// Equal reports whether two days name the same calendar date.
func (d Day) Equal(other Day) bool {
	return d.t.Equal(other.t)
}
