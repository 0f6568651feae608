package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedDate is returned for completion dates that are not "YYYY-MM-DD".
var ErrMalformedDate = errors.New("malformed date")

const dateLayout = "2006-01-02"

// Date is a calendar day with no time-of-day or zone component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a "YYYY-MM-DD" calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrMalformedDate, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// midnightUTC anchors the date at UTC midnight so day arithmetic never sees a DST shift.
func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is an earlier calendar day than o.
func (d Date) Before(o Date) bool {
	return d.midnightUTC().Before(o.midnightUTC())
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return d.midnightUTC().Format(dateLayout)
}

// DaysBetween returns the number of calendar days from "from" to "to".
// The result is negative when "to" is before "from".
func DaysBetween(from, to Date) int {
	return int(to.midnightUTC().Sub(from.midnightUTC()).Hours() / 24)
}
