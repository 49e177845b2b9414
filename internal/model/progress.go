package model

import (
	"fmt"
	"time"
)

// RunState represents the lifecycle state of the automation orchestrator.
type RunState string

const (
	// RunStateIdle indicates no run is active and a new one may start.
	RunStateIdle RunState = "idle"
	// RunStateRunning indicates a run is executing.
	RunStateRunning RunState = "running"
	// RunStateCompleted indicates the last run processed every item.
	RunStateCompleted RunState = "completed"
	// RunStateFailed indicates the last run aborted outside the per-item loop.
	RunStateFailed RunState = "failed"
	// RunStateStopped indicates the last run was halted by a stop command.
	RunStateStopped RunState = "stopped_by_user"
)

// IsTerminal reports whether the state is terminal (a finished run waiting to
// be acknowledged back to idle).
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateCompleted, RunStateFailed, RunStateStopped:
		return true
	default:
		return false
	}
}

// ItemStatus represents the processing state of a single work item within a run.
type ItemStatus string

const (
	ItemStatusQueued     ItemStatus = "queued"
	ItemStatusInProgress ItemStatus = "in_progress"
	ItemStatusSuccess    ItemStatus = "success"
	ItemStatusFailed     ItemStatus = "failed"
	ItemStatusSkipped    ItemStatus = "skipped"
)

// CanTransition reports whether an item may move from s to next.
//
// Statuses are monotonic: an item never regresses, and skipped is terminal and
// reachable only from queued (an item that started processing either succeeds
// or fails, it is never skipped afterwards).
func (s ItemStatus) CanTransition(next ItemStatus) bool {
	switch s {
	case ItemStatusQueued:
		return next == ItemStatusInProgress || next == ItemStatusSkipped
	case ItemStatusInProgress:
		return next == ItemStatusSuccess || next == ItemStatusFailed
	default:
		return false
	}
}

// ItemProgress tracks one work item through a run.
type ItemProgress struct {
	Key    string
	Title  string
	Status ItemStatus
	// Reason explains a skipped or failed status in human terms.
	Reason string
}

// RunProgress is the mutable aggregate owned exclusively by the orchestrator
// for the duration of one task execution. Consumers receive copies and should
// treat each snapshot as replaceable state, not as an event log.
type RunProgress struct {
	TaskID         string
	TotalItems     int
	ProcessedItems int
	// CurrentItem is the item presently mid-flight, nil between items.
	CurrentItem *ItemProgress
	// History holds one entry per item that has left the in-progress state,
	// append-only, in processing order.
	History []ItemProgress
}

// Validate checks the aggregate invariants.
func (p RunProgress) Validate() error {
	if p.TaskID == "" {
		return fmt.Errorf("task id is required: %w", ErrNotValid)
	}
	if p.TotalItems < 0 {
		return fmt.Errorf("total items must be >= 0: %w", ErrNotValid)
	}
	if p.ProcessedItems < 0 || p.ProcessedItems > p.TotalItems {
		return fmt.Errorf("processed items must be within [0, total]: %w", ErrNotValid)
	}
	return nil
}

// Clone returns a deep copy safe to hand to consumers while the run mutates
// the original.
func (p RunProgress) Clone() RunProgress {
	c := p
	if p.CurrentItem != nil {
		item := *p.CurrentItem
		c.CurrentItem = &item
	}
	if p.History != nil {
		c.History = make([]ItemProgress, len(p.History))
		copy(c.History, p.History)
	}
	return c
}

// Counts aggregates the history entries by terminal status.
func (p RunProgress) Counts() RunCounts {
	c := RunCounts{Total: p.TotalItems}
	for _, item := range p.History {
		switch item.Status {
		case ItemStatusSuccess:
			c.Success++
		case ItemStatusFailed:
			c.Failed++
		case ItemStatusSkipped:
			c.Skipped++
		}
	}
	return c
}

// RunCounts summarizes a finished run by item status.
type RunCounts struct {
	Total   int
	Success int
	Failed  int
	Skipped int
}

// RunSummary is the persisted record of one finished run.
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

// Validate checks the summary invariants.
func (s RunSummary) Validate() error {
	if s.RunID == "" {
		return fmt.Errorf("run id is required: %w", ErrNotValid)
	}
	if s.TaskID == "" {
		return fmt.Errorf("task id is required: %w", ErrNotValid)
	}
	if !s.State.IsTerminal() {
		return fmt.Errorf("summary state must be terminal, got %q: %w", s.State, ErrNotValid)
	}
	return nil
}
