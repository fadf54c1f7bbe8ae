package scheduling

import (
	"math"
	"time"

	"github.com/hackgods/doctor-availability-scheduling/internal/timemath"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// WindowInput is the raw shape of a declare-availability request.
type WindowInput struct {
	Date      string
	StartTime string
	EndTime   string
	Session   string
	Weekdays  []string
}

// WindowSpec is a WindowInput that passed validation.
type WindowSpec struct {
	Date      timemath.Date
	StartTime timemath.Clock
	EndTime   timemath.Clock
	Session   Session
	Weekdays  []time.Weekday
}

// ValidateWindow checks formats, ordering, the not-in-the-past rule and the
// weekday hint. It returns a *ValidationError on failure.
func ValidateWindow(in WindowInput, today timemath.Date) (WindowSpec, error) {
	var spec WindowSpec

	date, err := timemath.ParseDate(in.Date)
	if err != nil {
		return spec, invalid("date", ReasonBadDate, err.Error())
	}
	if date.Before(today) {
		return spec, invalid("date", ReasonPastDate, "date cannot be in the past")
	}

	start, err := timemath.ParseClock(in.StartTime)
	if err != nil {
		return spec, invalid("startTime", ReasonBadTime, err.Error())
	}
	end, err := timemath.ParseClock(in.EndTime)
	if err != nil {
		return spec, invalid("endTime", ReasonBadTime, err.Error())
	}
	if start >= end {
		return spec, invalid("endTime", ReasonEndNotAfterStart, "start time must be before end time")
	}

	session, ok := ParseSession(in.Session)
	if !ok {
		return spec, invalid("session", ReasonBadSession, "session must be one of Morning, Evening, FullDay")
	}

	weekdays := make([]time.Weekday, 0, len(in.Weekdays))
	for _, name := range in.Weekdays {
		wd, ok := timemath.ParseWeekday(name)
		if !ok {
			return spec, invalid("weekdays", ReasonBadWeekday, "unknown weekday "+name)
		}
		weekdays = append(weekdays, wd)
	}
	if len(weekdays) > 0 && !containsWeekday(weekdays, date.Weekday()) {
		return spec, invalid("weekdays", ReasonWeekdayMismatch, date.String()+" is a "+date.Weekday().String())
	}

	return WindowSpec{
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Session:   session,
		Weekdays:  weekdays,
	}, nil
}

// ValidatePage applies defaults for zero values and returns the offset and
// limit to query with. Limits above MaxLimit are clamped.
func ValidatePage(page, limit int) (offset, size int, err error) {
	if page == 0 {
		page = DefaultPage
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if page < 1 {
		return 0, 0, invalid("page", ReasonBadPage, "page must be >= 1")
	}
	if limit < 1 {
		return 0, 0, invalid("limit", ReasonBadPage, "limit must be >= 1")
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if page-1 > math.MaxInt/limit {
		return 0, 0, invalid("page", ReasonBadPage, "page is out of range")
	}
	return (page - 1) * limit, limit, nil
}

func containsWeekday(days []time.Weekday, d time.Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}
