package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/fieldbot/internal/model"
)

func TestItemStatusCanTransition(t *testing.T) {
	tests := map[string]struct {
		from model.ItemStatus
		to   model.ItemStatus
		exp  bool
	}{
		"Queued to in progress is allowed":    {from: model.ItemStatusQueued, to: model.ItemStatusInProgress, exp: true},
		"Queued to skipped is allowed":        {from: model.ItemStatusQueued, to: model.ItemStatusSkipped, exp: true},
		"Queued to success is not allowed":    {from: model.ItemStatusQueued, to: model.ItemStatusSuccess, exp: false},
		"In progress to success is allowed":   {from: model.ItemStatusInProgress, to: model.ItemStatusSuccess, exp: true},
		"In progress to failed is allowed":    {from: model.ItemStatusInProgress, to: model.ItemStatusFailed, exp: true},
		"In progress to skipped is rejected":  {from: model.ItemStatusInProgress, to: model.ItemStatusSkipped, exp: false},
		"Success is terminal":                 {from: model.ItemStatusSuccess, to: model.ItemStatusQueued, exp: false},
		"Failed is terminal":                  {from: model.ItemStatusFailed, to: model.ItemStatusInProgress, exp: false},
		"Skipped is terminal":                 {from: model.ItemStatusSkipped, to: model.ItemStatusInProgress, exp: false},
		"No regression from success to queue": {from: model.ItemStatusSuccess, to: model.ItemStatusQueued, exp: false},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, test.from.CanTransition(test.to))
		})
	}
}

func TestRunProgressCounts(t *testing.T) {
	progress := model.RunProgress{
		TaskID:         "task-1",
		TotalItems:     5,
		ProcessedItems: 4,
		History: []model.ItemProgress{
			{Key: "PRJ-1", Status: model.ItemStatusSuccess},
			{Key: "PRJ-2", Status: model.ItemStatusFailed, Reason: "element not found"},
			{Key: "PRJ-3", Status: model.ItemStatusSkipped, Reason: "no target version set"},
			{Key: "PRJ-4", Status: model.ItemStatusSuccess},
		},
	}

	counts := progress.Counts()

	assert.Equal(t, model.RunCounts{Total: 5, Success: 2, Failed: 1, Skipped: 1}, counts)
}

func TestRunProgressClone(t *testing.T) {
	current := model.ItemProgress{Key: "PRJ-2", Status: model.ItemStatusInProgress}
	progress := model.RunProgress{
		TaskID:         "task-1",
		TotalItems:     2,
		ProcessedItems: 1,
		CurrentItem:    &current,
		History: []model.ItemProgress{
			{Key: "PRJ-1", Status: model.ItemStatusSuccess},
		},
	}

	clone := progress.Clone()

	// Mutating the clone must not leak into the original.
	clone.CurrentItem.Status = model.ItemStatusFailed
	clone.History[0].Status = model.ItemStatusFailed

	assert.Equal(t, model.ItemStatusInProgress, progress.CurrentItem.Status)
	assert.Equal(t, model.ItemStatusSuccess, progress.History[0].Status)
}

func TestRunProgressCloneZeroValue(t *testing.T) {
	// A clone of the zero value stays the zero value, the history must not
	// turn into an empty non-nil slice.
	clone := model.RunProgress{}.Clone()

	assert.Equal(t, model.RunProgress{}, clone)
	assert.Nil(t, clone.History)
}

func TestRunStateIsTerminal(t *testing.T) {
	tests := map[string]struct {
		state model.RunState
		exp   bool
	}{
		"Idle is not terminal":      {state: model.RunStateIdle, exp: false},
		"Running is not terminal":   {state: model.RunStateRunning, exp: false},
		"Completed is terminal":     {state: model.RunStateCompleted, exp: true},
		"Failed is terminal":        {state: model.RunStateFailed, exp: true},
		"Stopped by user terminal":  {state: model.RunStateStopped, exp: true},
		"Unknown states non final ": {state: model.RunState("wat"), exp: false},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, test.state.IsTerminal())
		})
	}
}
