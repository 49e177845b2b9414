package model

import (
	"fmt"
	"time"
)

// TaskType identifies the automation routine a task runs.
type TaskType string

const (
	// TaskTypeDueDateUpdate updates a date-like field ahead of each item's
	// target-version deadline. This is the only type with an implemented
	// routine.
	TaskTypeDueDateUpdate TaskType = "due_date_update"
	// TaskTypeFieldSync is declared but has no routine yet.
	TaskTypeFieldSync TaskType = "field_sync"
	// TaskTypeBulkTransition is declared but has no routine yet.
	TaskTypeBulkTransition TaskType = "bulk_transition"
)

// KnownTaskType reports whether t is one of the declared task types.
func KnownTaskType(t TaskType) bool {
	switch t {
	case TaskTypeDueDateUpdate, TaskTypeFieldSync, TaskTypeBulkTransition:
		return true
	default:
		return false
	}
}

// Task is a configured automation task as managed by the configuration
// surface and consumed by the orchestrator through a start command.
type Task struct {
	ID   string
	Type TaskType
	Name string
	// Schedule is an optional cron expression describing when the external
	// scheduler would fire this task. It is validated and displayed but never
	// executed by the engine.
	Schedule string
	// DueDate holds the configuration for TaskTypeDueDateUpdate tasks.
	DueDate   *DueDateTaskConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DueDateTaskConfig configures the due-date update routine.
type DueDateTaskConfig struct {
	// FieldID is the identifier of the date field to write on each item.
	FieldID string
	// DaysBeforeTarget is how many days ahead of the target-version date the
	// due date lands.
	DaysBeforeTarget int
	// BusinessDaysOnly selects working-day arithmetic instead of calendar days.
	BusinessDaysOnly bool
	// Holidays are extra non-working dates in YYYY-MM-DD form. When empty the
	// default US holiday set applies.
	Holidays []string
}

// Validate validates the task configuration.
//
// Schedule expressions are validated separately by the schedule package so the
// model stays free of parser dependencies.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is required: %w", ErrNotValid)
	}
	if t.Name == "" {
		return fmt.Errorf("task name is required: %w", ErrNotValid)
	}
	if !KnownTaskType(t.Type) {
		return fmt.Errorf("unknown task type %q: %w", t.Type, ErrNotValid)
	}

	if t.Type == TaskTypeDueDateUpdate {
		if t.DueDate == nil {
			return fmt.Errorf("due date configuration is required for %s tasks: %w", TaskTypeDueDateUpdate, ErrNotValid)
		}
		if err := t.DueDate.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate validates the due-date routine configuration.
func (c DueDateTaskConfig) Validate() error {
	if c.FieldID == "" {
		return fmt.Errorf("field id is required: %w", ErrNotValid)
	}
	if c.DaysBeforeTarget <= 0 {
		return fmt.Errorf("days before target must be positive, got %d: %w", c.DaysBeforeTarget, ErrNotValid)
	}
	return nil
}
