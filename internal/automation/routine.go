package automation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/update"
	"github.com/slok/fieldbot/internal/workdays"
)

// Routine turns one work item into the concrete field update a task wants,
// or decides the item must be skipped.
type Routine interface {
	// Plan returns the update request for the item. A non-empty skip reason
	// means the item is skipped before it ever starts; an error marks the
	// item failed.
	Plan(item model.WorkItem) (req update.Request, skipReason string, err error)
}

// RoutineFactory builds the routine for a validated task.
type RoutineFactory func(task model.Task) (Routine, error)

func defaultRoutines() map[model.TaskType]RoutineFactory {
	return map[model.TaskType]RoutineFactory{
		model.TaskTypeDueDateUpdate:  NewDueDateRoutine,
		model.TaskTypeFieldSync:      notImplementedRoutine(model.TaskTypeFieldSync),
		model.TaskTypeBulkTransition: notImplementedRoutine(model.TaskTypeBulkTransition),
	}
}

// notImplementedRoutine is the factory for declared task types that have no
// routine yet. Failing at start time beats silently doing nothing.
func notImplementedRoutine(t model.TaskType) RoutineFactory {
	return func(model.Task) (Routine, error) {
		return nil, fmt.Errorf("task type %q is not yet implemented: %w", t, model.ErrNotImplemented)
	}
}

// labelDateRE matches the ISO date embedded in target version labels such as
// "v2025-01-31", "2025.01.31" or a bare "2025-01-31".
var labelDateRE = regexp.MustCompile(`(\d{4})[-.](\d{2})[-.](\d{2})`)

// DueDateRoutine plans due-date updates: the new value lands a configured
// number of days ahead of the item's target version date.
type DueDateRoutine struct {
	config model.DueDateTaskConfig
	// custom is the task's own holiday calendar, nil selects the default US
	// calendar for the target date's years.
	custom *workdays.Calendar
}

// NewDueDateRoutine builds the routine for a due-date update task.
func NewDueDateRoutine(task model.Task) (Routine, error) {
	if task.DueDate == nil {
		return nil, fmt.Errorf("due date configuration is required: %w", model.ErrNotValid)
	}
	if err := task.DueDate.Validate(); err != nil {
		return nil, err
	}

	r := &DueDateRoutine{config: *task.DueDate}

	if len(task.DueDate.Holidays) > 0 {
		calendar, err := workdays.ParseCalendar(task.DueDate.Holidays)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday dates: %w", err)
		}
		r.custom = &calendar
	}

	return r, nil
}

// Plan computes the due date for one item. Items without a parseable target
// version date are skipped, never failed.
func (r *DueDateRoutine) Plan(item model.WorkItem) (update.Request, string, error) {
	label := strings.TrimSpace(item.TargetVersionLabel)
	if label == "" {
		return update.Request{}, "no target version set", nil
	}

	target, ok := targetDateFromLabel(label)
	if !ok {
		return update.Request{}, fmt.Sprintf("no date in target version %q", label), nil
	}

	var due time.Time
	if r.config.BusinessDaysOnly {
		due = r.calendarFor(target.Year()).SubtractWorkingDays(target, r.config.DaysBeforeTarget)
	} else {
		due = target.AddDate(0, 0, -r.config.DaysBeforeTarget)
	}

	return update.Request{
		Item:     item,
		FieldID:  r.config.FieldID,
		NewValue: workdays.FormatDate(due),
	}, "", nil
}

func (r *DueDateRoutine) calendarFor(year int) workdays.Calendar {
	if r.custom != nil {
		return *r.custom
	}
	// Subtraction can cross into the previous year.
	return workdays.DefaultUSCalendar(year-1, year, year+1)
}

func targetDateFromLabel(label string) (time.Time, bool) {
	m := labelDateRE.FindStringSubmatch(label)
	if m == nil {
		return time.Time{}, false
	}

	date, err := workdays.ParseDate(m[1] + "-" + m[2] + "-" + m[3])
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}
