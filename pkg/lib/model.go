package lib

import (
	"time"

	"github.com/slok/fieldbot/internal/model"
)

// Sentinel errors returned by the SDK, for use with [errors.Is].
var (
	// ErrNotFound is returned when a task does not exist.
	ErrNotFound = model.ErrNotFound
	// ErrAlreadyExists is returned when a task with the same name already exists.
	ErrAlreadyExists = model.ErrAlreadyExists
	// ErrNotValid is returned when a task definition or operation is invalid.
	ErrNotValid = model.ErrNotValid
)

// TaskType identifies the automation routine a task runs.
type TaskType string

const (
	// TaskTypeDueDateUpdate updates a date-like field ahead of each item's
	// target-version date.
	TaskTypeDueDateUpdate TaskType = "due_date_update"
)

// Task is an automation task definition.
//
// The ID and timestamps are assigned by the SDK when the task is stored, they
// are ignored on [Client.ApplyTask] input.
type Task struct {
	// ID is the unique identifier (ULID) assigned when the task is stored.
	ID string
	// Name is the unique human-friendly name. Tasks are addressed by name.
	Name string
	// Type selects the automation routine.
	Type TaskType
	// Schedule is an optional cron expression describing when an external
	// scheduler would fire this task. It is validated and displayed but never
	// executed.
	Schedule string
	// DueDate configures the due-date update routine. Required for
	// [TaskTypeDueDateUpdate] tasks.
	DueDate   *DueDateConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DueDateConfig configures the due-date update routine.
type DueDateConfig struct {
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

// RunState is the terminal state of a finished run.
type RunState string

const (
	// RunStateCompleted indicates the run processed every item.
	RunStateCompleted RunState = "completed"
	// RunStateFailed indicates the run aborted outside the per-item loop.
	RunStateFailed RunState = "failed"
	// RunStateStopped indicates the run was halted by a stop command.
	RunStateStopped RunState = "stopped_by_user"
)

// RunCounts aggregates the per-item outcomes of a run.
type RunCounts struct {
	Total   int
	Success int
	Failed  int
	Skipped int
}

// RunResult is the outcome of a finished run.
type RunResult struct {
	State  RunState
	Counts RunCounts
	// Error is the run-level failure when State is [RunStateFailed].
	Error string
}

// RunSummary is the stored record of one finished run.
type RunSummary struct {
	RunID      string
	TaskID     string
	TaskName   string
	State      RunState
	Counts     RunCounts
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

func taskFromModel(t model.Task) Task {
	task := Task{
		ID:        t.ID,
		Name:      t.Name,
		Type:      TaskType(t.Type),
		Schedule:  t.Schedule,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if t.DueDate != nil {
		task.DueDate = &DueDateConfig{
			FieldID:          t.DueDate.FieldID,
			DaysBeforeTarget: t.DueDate.DaysBeforeTarget,
			BusinessDaysOnly: t.DueDate.BusinessDaysOnly,
			Holidays:         t.DueDate.Holidays,
		}
	}
	return task
}

func taskToModel(t Task) model.Task {
	task := model.Task{
		ID:        t.ID,
		Name:      t.Name,
		Type:      model.TaskType(t.Type),
		Schedule:  t.Schedule,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if t.DueDate != nil {
		task.DueDate = &model.DueDateTaskConfig{
			FieldID:          t.DueDate.FieldID,
			DaysBeforeTarget: t.DueDate.DaysBeforeTarget,
			BusinessDaysOnly: t.DueDate.BusinessDaysOnly,
			Holidays:         t.DueDate.Holidays,
		}
	}
	return task
}

func summaryFromModel(s model.RunSummary) RunSummary {
	return RunSummary{
		RunID:    s.RunID,
		TaskID:   s.TaskID,
		TaskName: s.TaskName,
		State:    RunState(s.State),
		Counts: RunCounts{
			Total:   s.Counts.Total,
			Success: s.Counts.Success,
			Failed:  s.Counts.Failed,
			Skipped: s.Counts.Skipped,
		},
		Error:      s.Error,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}
