// Package schedule validates the optional cron expressions carried by task
// definitions. The engine never fires runs from a schedule, an external
// scheduler does; here expressions are only checked and their next firing
// time computed for display.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/slok/fieldbot/internal/model"
)

// parser accepts the standard five-field cron format.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks that expr is a valid five-field cron expression. An empty
// expression is valid, it means the task has no schedule.
func Validate(expr string) error {
	if expr == "" {
		return nil
	}

	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %v: %w", expr, err, model.ErrNotValid)
	}

	return nil
}

// NextRun returns when a scheduler would next fire expr after the given
// time. It returns false for an empty expression.
func NextRun(expr string, after time.Time) (time.Time, bool, error) {
	if expr == "" {
		return time.Time{}, false, nil
	}

	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid cron expression %q: %v: %w", expr, err, model.ErrNotValid)
	}

	return sched.Next(after), true, nil
}
