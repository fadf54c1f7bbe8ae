// Package timemath holds the naive wall-clock date and time-of-day values used
// by availability windows and slots. No time zone is attached to either type.
package timemath

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrBadDate  = errors.New("date must be YYYY-MM-DD")
	ErrBadClock = errors.New("time must be HH:MM or HH:MM:SS")
)

const dateLayout = "2006-01-02"

// Date is a calendar day without a location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a strict YYYY-MM-DD value and rejects impossible days
// such as 2025-02-30.
func ParseDate(s string) (Date, error) {
	if len(s) != len(dateLayout) {
		return Date{}, ErrBadDate
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, ErrBadDate
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of the day, which is how the date is handed to storage.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(int(d.Month) - int(o.Month))
	default:
		return sign(d.Day - o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Clock is a time of day counted in seconds since midnight.
type Clock int

const day = Clock(24 * 60 * 60)

// ParseClock accepts HH:MM or HH:MM:SS on a 24 hour clock.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, ErrBadClock
	}
	limits := []int{23, 59, 59}
	var total int
	for i, p := range parts {
		if len(p) != 2 {
			return 0, ErrBadClock
		}
		n := 0
		for _, r := range p {
			if r < '0' || r > '9' {
				return 0, ErrBadClock
			}
			n = n*10 + int(r-'0')
		}
		if n > limits[i] {
			return 0, ErrBadClock
		}
		total = total*60 + n
	}
	if len(parts) == 2 {
		total *= 60
	}
	return Clock(total), nil
}

// ClockOf returns the time of day of t in t's own location, truncated to the second.
func ClockOf(t time.Time) Clock {
	h, m, s := t.Clock()
	return Clock(h*3600 + m*60 + s)
}

// NewClock builds a clock from hours, minutes and seconds.
func NewClock(h, m, s int) Clock {
	return Clock(h*3600 + m*60 + s)
}

// Add steps the clock forward. The result is not wrapped at midnight, so
// callers comparing against a window end see overflow as "after".
func (c Clock) Add(d time.Duration) Clock {
	return c + Clock(d/time.Second)
}

// Sub returns c - o as a duration.
func (c Clock) Sub(o Clock) time.Duration {
	return time.Duration(c-o) * time.Second
}

// Duration returns the offset from midnight.
func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Second
}

// Valid reports whether the clock lies within a single day.
func (c Clock) Valid() bool {
	return c >= 0 && c < day
}

// String renders HH:MM, appending :SS only when seconds are set.
func (c Clock) String() string {
	h, m, s := int(c)/3600, int(c)/60%60, int(c)%60
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Moment is a naive (date, time of day) pair, ordered lexicographically.
type Moment struct {
	Date  Date
	Clock Clock
}

// MomentOf reduces t to its wall-clock reading in loc, truncated to the second.
func MomentOf(t time.Time, loc *time.Location) Moment {
	if loc != nil {
		t = t.In(loc)
	}
	return Moment{Date: DateOf(t), Clock: ClockOf(t)}
}

func (m Moment) Compare(o Moment) int {
	if c := m.Date.Compare(o.Date); c != 0 {
		return c
	}
	return sign(int(m.Clock - o.Clock))
}

func (m Moment) Before(o Moment) bool { return m.Compare(o) < 0 }

func (m Moment) String() string {
	return m.Date.String() + "T" + m.Clock.String()
}

// ParseWeekday accepts full English weekday names in any case.
func ParseWeekday(s string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(strings.TrimSpace(s), d.String()) {
			return d, true
		}
	}
	return 0, false
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
