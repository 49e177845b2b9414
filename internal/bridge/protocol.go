// Package bridge exposes the automation engine to an external dashboard
// process over a WebSocket connection. Commands (start, stop, ack) flow in,
// run events (progress, completed, error) are broadcast to every connected
// client. All dates crossing this boundary are plain YYYY-MM-DD strings.
package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/retry"
	"github.com/slok/fieldbot/internal/throttle"
	"github.com/slok/fieldbot/internal/workdays"
)

// Envelope wraps every message with a type discriminator.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EnvelopeRaw is used for receiving messages where the payload needs to be
// unmarshaled based on the message type.
type EnvelopeRaw struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalEnvelope creates an envelope with the given type and payload.
func MarshalEnvelope(msgType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: msgType, Payload: payload})
}

// Message type constants.
const (
	// Dashboard -> engine.
	TypeStart = "start"
	TypeStop  = "stop"
	TypeAck   = "ack"

	// Engine -> dashboard.
	TypeProgress  = "progress"
	TypeCompleted = "completed"
	TypeError     = "error"
)

// Dashboard -> engine messages.

// StartMessage asks the engine to run a task.
type StartMessage struct {
	Task      TaskPayload      `json:"task"`
	RunConfig RunConfigPayload `json:"runConfig"`
}

// TaskPayload is the task descriptor carried by a start command.
type TaskPayload struct {
	ID     string             `json:"id"`
	Type   string             `json:"type"`
	Name   string             `json:"name"`
	Config *DueDateTaskConfig `json:"config,omitempty"`
}

// DueDateTaskConfig is the wire form of the due-date routine configuration.
type DueDateTaskConfig struct {
	FieldID              string   `json:"fieldId"`
	DaysBeforeTargetDate int      `json:"daysBeforeTargetDate"`
	BusinessDaysOnly     bool     `json:"businessDaysOnly"`
	Holidays             []string `json:"holidays,omitempty"`
}

// RunConfigPayload carries the optional per-run throttle and retry settings.
type RunConfigPayload struct {
	Throttling  *ThrottlingPayload  `json:"throttling,omitempty"`
	RetryPolicy *RetryPolicyPayload `json:"retryPolicy,omitempty"`
}

// ThrottlingPayload is the wire form of the throttle configuration, delays in
// milliseconds.
type ThrottlingPayload struct {
	InitialDelayMs     int `json:"initialDelayMs"`
	MinDelayMs         int `json:"minDelayMs"`
	MaxDelayMs         int `json:"maxDelayMs"`
	AfterInteractionMs int `json:"afterInteractionMs"`
	AfterNavigationMs  int `json:"afterNavigationMs"`
}

// RetryPolicyPayload is the wire form of the retry policy, delays in
// milliseconds.
type RetryPolicyPayload struct {
	MaxAttempts       int     `json:"maxAttempts"`
	InitialDelayMs    int     `json:"initialDelayMs"`
	BackoffMultiplier float64 `json:"backoffMultiplier"`
	MaxDelayMs        int     `json:"maxDelayMs"`
}

// StopMessage asks for a cooperative stop of the active run.
type StopMessage struct {
	TaskID string `json:"taskId"`
}

// AckMessage acknowledges a finished run, moving the engine back to idle.
type AckMessage struct {
	TaskID string `json:"taskId"`
}

// Engine -> dashboard messages.

// ProgressMessage is the run progress snapshot. Consumers should treat each
// snapshot as replaceable state, not an event log.
type ProgressMessage struct {
	TaskID         string         `json:"taskId"`
	TotalItems     int            `json:"totalItems"`
	ProcessedItems int            `json:"processedItems"`
	CurrentItem    *ItemProgress  `json:"currentItem,omitempty"`
	History        []ItemProgress `json:"history"`
}

// ItemProgress is the wire form of one item's progress.
type ItemProgress struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// CompletedMessage reports a finished run with its counts by status.
type CompletedMessage struct {
	TaskID  string     `json:"taskId"`
	Summary RunSummary `json:"summary"`
}

// RunSummary is the wire form of the final run counts.
type RunSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// ErrorMessage reports an unrecoverable run failure or a rejected command.
type ErrorMessage struct {
	TaskID string `json:"taskId"`
	Error  string `json:"error"`
}

// mapping to/from the domain model.

func (m StartMessage) taskToModel() (model.Task, error) {
	task := model.Task{
		ID:   m.Task.ID,
		Type: model.TaskType(m.Task.Type),
		Name: m.Task.Name,
	}

	if m.Task.Config != nil {
		for _, h := range m.Task.Config.Holidays {
			if _, err := workdays.ParseDate(h); err != nil {
				return model.Task{}, fmt.Errorf("holiday %q is not a YYYY-MM-DD date: %w", h, model.ErrNotValid)
			}
		}
		task.DueDate = &model.DueDateTaskConfig{
			FieldID:          m.Task.Config.FieldID,
			DaysBeforeTarget: m.Task.Config.DaysBeforeTargetDate,
			BusinessDaysOnly: m.Task.Config.BusinessDaysOnly,
			Holidays:         m.Task.Config.Holidays,
		}
	}

	if err := task.Validate(); err != nil {
		return model.Task{}, err
	}

	return task, nil
}

func (p ThrottlingPayload) toModel() throttle.Config {
	return throttle.Config{
		InitialDelay:     time.Duration(p.InitialDelayMs) * time.Millisecond,
		MinDelay:         time.Duration(p.MinDelayMs) * time.Millisecond,
		MaxDelay:         time.Duration(p.MaxDelayMs) * time.Millisecond,
		AfterInteraction: time.Duration(p.AfterInteractionMs) * time.Millisecond,
		AfterNavigation:  time.Duration(p.AfterNavigationMs) * time.Millisecond,
	}
}

func (p RetryPolicyPayload) toModel() retry.Policy {
	return retry.Policy{
		MaxAttempts:       p.MaxAttempts,
		InitialDelay:      time.Duration(p.InitialDelayMs) * time.Millisecond,
		BackoffMultiplier: p.BackoffMultiplier,
		MaxDelay:          time.Duration(p.MaxDelayMs) * time.Millisecond,
	}
}

func progressFromModel(p model.RunProgress) ProgressMessage {
	msg := ProgressMessage{
		TaskID:         p.TaskID,
		TotalItems:     p.TotalItems,
		ProcessedItems: p.ProcessedItems,
		History:        make([]ItemProgress, 0, len(p.History)),
	}

	if p.CurrentItem != nil {
		item := itemFromModel(*p.CurrentItem)
		msg.CurrentItem = &item
	}
	for _, item := range p.History {
		msg.History = append(msg.History, itemFromModel(item))
	}

	return msg
}

func itemFromModel(i model.ItemProgress) ItemProgress {
	return ItemProgress{
		Key:    i.Key,
		Title:  i.Title,
		Status: string(i.Status),
		Reason: i.Reason,
	}
}
