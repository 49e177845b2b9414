// Package workdays implements pure working-day date arithmetic: weekend and
// holiday aware addition, subtraction, counting and rounding.
//
// All operations normalize their inputs to UTC midnight and are total for
// valid inputs. Dates cross API boundaries as YYYY-MM-DD strings with no time
// component and no timezone, parsed with ParseDate, so timezone-aware parsing
// can never introduce off-by-one shifts.
package workdays

import (
	"fmt"
	"time"
)

// DateLayout is the only accepted wire format for dates.
const DateLayout = "2006-01-02"

// ParseError is returned when a date string cannot be parsed as YYYY-MM-DD.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid date %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseDate parses a YYYY-MM-DD string into a normalized UTC date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &ParseError{Input: s, Err: err}
	}
	return Normalize(t), nil
}

// FormatDate formats a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Normalize truncates a timestamp to its calendar date at UTC midnight.
func Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsWeekend reports whether the date falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Calendar is an immutable holiday set used for working-day classification.
// The zero value is a valid calendar with no holidays.
type Calendar struct {
	holidays map[string]struct{}
}

// NewCalendar creates a calendar from holiday dates.
func NewCalendar(holidays ...time.Time) Calendar {
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		set[FormatDate(Normalize(h))] = struct{}{}
	}
	return Calendar{holidays: set}
}

// ParseCalendar creates a calendar from YYYY-MM-DD holiday strings.
func ParseCalendar(dates []string) (Calendar, error) {
	holidays := make([]time.Time, 0, len(dates))
	for _, s := range dates {
		d, err := ParseDate(s)
		if err != nil {
			return Calendar{}, err
		}
		holidays = append(holidays, d)
	}
	return NewCalendar(holidays...), nil
}

// IsHoliday reports whether the date is in the calendar's holiday set.
func (c Calendar) IsHoliday(t time.Time) bool {
	if c.holidays == nil {
		return false
	}
	_, ok := c.holidays[FormatDate(Normalize(t))]
	return ok
}

// IsWorkingDay reports whether the date is neither a weekend nor a holiday.
func (c Calendar) IsWorkingDay(t time.Time) bool {
	return !IsWeekend(t) && !c.IsHoliday(t)
}

// AddWorkingDays returns the date exactly days working days after date.
// A negative count delegates to SubtractWorkingDays. A zero count returns the
// normalized input unchanged, even when it is not a working day itself.
func (c Calendar) AddWorkingDays(date time.Time, days int) time.Time {
	if days < 0 {
		return c.SubtractWorkingDays(date, -days)
	}
	return c.step(date, days, 1)
}

// SubtractWorkingDays returns the date exactly days working days before date.
// A negative count delegates to AddWorkingDays.
func (c Calendar) SubtractWorkingDays(date time.Time, days int) time.Time {
	if days < 0 {
		return c.AddWorkingDays(date, -days)
	}
	return c.step(date, days, -1)
}

func (c Calendar) step(date time.Time, days, direction int) time.Time {
	d := Normalize(date)
	for remaining := days; remaining > 0; {
		d = d.AddDate(0, 0, direction)
		if c.IsWorkingDay(d) {
			remaining--
		}
	}
	return d
}

// NextWorkingDay rounds the date forward to the closest working day. A date
// that already is a working day is returned unchanged.
func (c Calendar) NextWorkingDay(date time.Time) time.Time {
	d := Normalize(date)
	for !c.IsWorkingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// PreviousWorkingDay rounds the date backward to the closest working day. A
// date that already is a working day is returned unchanged.
func (c Calendar) PreviousWorkingDay(date time.Time) time.Time {
	d := Normalize(date)
	for !c.IsWorkingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// CountWorkingDays counts the working days between a and b, inclusive of both
// endpoints when they are working days. The count is symmetric under endpoint
// swap.
func (c Calendar) CountWorkingDays(a, b time.Time) int {
	from, to := Normalize(a), Normalize(b)
	if from.After(to) {
		from, to = to, from
	}

	count := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsWorkingDay(d) {
			count++
		}
	}
	return count
}
