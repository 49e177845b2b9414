package workdays

import "time"

// DefaultUSHolidays returns the six widely observed US holidays for a year:
// New Year's Day, Memorial Day, Independence Day, Labor Day, Thanksgiving and
// Christmas. Floating holidays are computed from the weekday rules, fixed ones
// are used as-is without weekend observance shifting.
func DefaultUSHolidays(year int) []time.Time {
	return []time.Time{
		time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		lastWeekday(year, time.May, time.Monday),
		time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC),
		nthWeekday(year, time.September, time.Monday, 1),
		nthWeekday(year, time.November, time.Thursday, 4),
		time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC),
	}
}

// DefaultUSCalendar builds a calendar holding the default US holidays for all
// given years. Computations that may cross a year boundary should include the
// adjacent years.
func DefaultUSCalendar(years ...int) Calendar {
	var holidays []time.Time
	for _, y := range years {
		holidays = append(holidays, DefaultUSHolidays(y)...)
	}
	return NewCalendar(holidays...)
}

// nthWeekday returns the nth occurrence of a weekday in a month, n starting
// at 1.
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+(n-1)*7)
}

// lastWeekday returns the last occurrence of a weekday in a month.
func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(weekday) + 7) % 7
	return d.AddDate(0, 0, -offset)
}
