package workdays_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/fieldbot/internal/workdays"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := workdays.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestParseDate(t *testing.T) {
	tests := map[string]struct {
		input   string
		expDate string
		expErr  bool
	}{
		"A valid ISO date should parse.": {
			input:   "2025-01-31",
			expDate: "2025-01-31",
		},

		"A date with time component should fail.": {
			input:  "2025-01-31T10:00:00Z",
			expErr: true,
		},

		"A slash separated date should fail.": {
			input:  "2025/01/31",
			expErr: true,
		},

		"A month out of range should fail.": {
			input:  "2025-13-01",
			expErr: true,
		},

		"An empty string should fail.": {
			input:  "",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			got, err := workdays.ParseDate(test.input)

			if test.expErr {
				var perr *workdays.ParseError
				assert.Error(err)
				assert.True(errors.As(err, &perr))
				assert.Equal(test.input, perr.Input)
			} else if assert.NoError(err) {
				assert.Equal(test.expDate, workdays.FormatDate(got))
				assert.Equal(time.UTC, got.Location())
			}
		})
	}
}

func TestAddSubtractWorkingDays(t *testing.T) {
	holidayCal, err := workdays.ParseCalendar([]string{"2025-03-14"})
	require.NoError(t, err)

	tests := map[string]struct {
		calendar workdays.Calendar
		date     string
		days     int
		subtract bool
		expDate  string
	}{
		"Adding zero days should return the same date even on a weekend.": {
			date:    "2025-03-15",
			days:    0,
			expDate: "2025-03-15",
		},

		"Adding one day from a Friday should land on Monday.": {
			date:    "2025-03-14",
			days:    1,
			expDate: "2025-03-17",
		},

		"Adding days over a holiday should skip the holiday.": {
			calendar: holidayCal,
			date:     "2025-03-13",
			days:     1,
			expDate:  "2025-03-17",
		},

		"Adding a negative count should subtract.": {
			date:    "2025-03-17",
			days:    -1,
			expDate: "2025-03-14",
		},

		"Subtracting one day from a Monday should land on Friday.": {
			date:     "2025-03-17",
			days:     1,
			subtract: true,
			expDate:  "2025-03-14",
		},

		"Subtracting a negative count should add.": {
			date:     "2025-03-14",
			days:     -1,
			subtract: true,
			expDate:  "2025-03-17",
		},

		"Subtracting ten business days from 2025-01-31 with default US holidays should land on 2025-01-17.": {
			calendar: workdays.DefaultUSCalendar(2025),
			date:     "2025-01-31",
			days:     10,
			subtract: true,
			expDate:  "2025-01-17",
		},

		"Adding across a year boundary should skip New Year's Day.": {
			calendar: workdays.DefaultUSCalendar(2024, 2025),
			date:     "2024-12-30",
			days:     3,
			expDate:  "2025-01-03",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			date := mustDate(t, test.date)

			var got time.Time
			if test.subtract {
				got = test.calendar.SubtractWorkingDays(date, test.days)
			} else {
				got = test.calendar.AddWorkingDays(date, test.days)
			}

			assert.Equal(test.expDate, workdays.FormatDate(got))
		})
	}
}

func TestAddSubtractRoundTrip(t *testing.T) {
	tests := map[string]struct {
		calendar workdays.Calendar
		date     string
		days     int
		expDate  string
	}{
		"Starting on a working day the round trip should return the start date.": {
			date:    "2025-03-12",
			days:    7,
			expDate: "2025-03-12",
		},

		"Starting on a Saturday the round trip should land on the previous working day.": {
			date:    "2025-03-15",
			days:    1,
			expDate: "2025-03-14",
		},

		"Starting on a holiday the round trip should land on the previous working day.": {
			calendar: workdays.DefaultUSCalendar(2025),
			date:     "2025-07-04",
			days:     5,
			expDate:  "2025-07-03",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			date := mustDate(t, test.date)

			forward := test.calendar.AddWorkingDays(date, test.days)
			back := test.calendar.SubtractWorkingDays(forward, test.days)

			assert.Equal(test.expDate, workdays.FormatDate(back))
			assert.Equal(test.calendar.PreviousWorkingDay(date), back)
		})
	}
}

func TestCountWorkingDays(t *testing.T) {
	tests := map[string]struct {
		calendar workdays.Calendar
		from     string
		to       string
		expCount int
	}{
		"A full working week should count five days.": {
			from:     "2025-03-10",
			to:       "2025-03-14",
			expCount: 5,
		},

		"A weekend only range should count zero days.": {
			from:     "2025-03-15",
			to:       "2025-03-16",
			expCount: 0,
		},

		"A single working day range should count one day.": {
			from:     "2025-03-12",
			to:       "2025-03-12",
			expCount: 1,
		},

		"A range containing a holiday should not count the holiday.": {
			calendar: workdays.DefaultUSCalendar(2025),
			from:     "2025-12-22",
			to:       "2025-12-26",
			expCount: 4,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			from := mustDate(t, test.from)
			to := mustDate(t, test.to)

			assert.Equal(test.expCount, test.calendar.CountWorkingDays(from, to))
			assert.Equal(test.expCount, test.calendar.CountWorkingDays(to, from))
		})
	}
}

func TestWorkingDayRounding(t *testing.T) {
	tests := map[string]struct {
		calendar workdays.Calendar
		date     string
		expNext  string
		expPrev  string
	}{
		"A working day should round to itself in both directions.": {
			date:    "2025-03-12",
			expNext: "2025-03-12",
			expPrev: "2025-03-12",
		},

		"A Saturday should round forward to Monday and backward to Friday.": {
			date:    "2025-03-15",
			expNext: "2025-03-17",
			expPrev: "2025-03-14",
		},

		"A holiday on a Saturday should round forward past the weekend.": {
			calendar: workdays.DefaultUSCalendar(2026),
			date:     "2026-07-04",
			expNext:  "2026-07-06",
			expPrev:  "2026-07-03",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			date := mustDate(t, test.date)

			assert.Equal(test.expNext, workdays.FormatDate(test.calendar.NextWorkingDay(date)))
			assert.Equal(test.expPrev, workdays.FormatDate(test.calendar.PreviousWorkingDay(date)))
		})
	}
}

func TestIsWorkingDay(t *testing.T) {
	calendar := workdays.DefaultUSCalendar(2025)

	// Classification must agree with its parts over a representative spread.
	start := mustDate(t, "2025-01-01")
	for i := 0; i < 60; i++ {
		d := start.AddDate(0, 0, i)
		exp := !workdays.IsWeekend(d) && !calendar.IsHoliday(d)
		assert.Equal(t, exp, calendar.IsWorkingDay(d), "date %s", workdays.FormatDate(d))
	}
}

func TestDefaultUSHolidays(t *testing.T) {
	assert := assert.New(t)

	got := workdays.DefaultUSHolidays(2025)

	exp := []string{
		"2025-01-01",
		"2025-05-26",
		"2025-07-04",
		"2025-09-01",
		"2025-11-27",
		"2025-12-25",
	}

	require.Len(t, got, len(exp))
	for i, d := range got {
		assert.Equal(exp[i], workdays.FormatDate(d))
	}
}
