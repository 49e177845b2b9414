package io

import (
	"context"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/schedule"
	"github.com/slok/fieldbot/internal/workdays"
)

// TaskYAMLRepository loads task definitions from YAML files.
type TaskYAMLRepository struct {
	fs fs.FS
}

// NewTaskYAMLRepository creates a new YAML task repository.
func NewTaskYAMLRepository(filesystem fs.FS) *TaskYAMLRepository {
	return &TaskYAMLRepository{fs: filesystem}
}

// GetTask loads a task definition from a YAML file and returns a validated
// domain model. The returned task has no ID or timestamps, the caller assigns
// those when it stores the task.
func (r *TaskYAMLRepository) GetTask(ctx context.Context, path string) (model.Task, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.Task{}, fmt.Errorf("reading task file: %w", err)
	}

	if ctx.Err() != nil {
		return model.Task{}, ctx.Err()
	}

	var t TaskConfig
	if err := yaml.Unmarshal(data, &t); err != nil {
		return model.Task{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := t.validate(); err != nil {
		return model.Task{}, fmt.Errorf("invalid task definition: %w", err)
	}

	return t.toModel(), nil
}

// TaskConfig represents the YAML structure for a task definition.
type TaskConfig struct {
	Name     string         `yaml:"name"`
	Type     string         `yaml:"type"`
	Schedule string         `yaml:"schedule,omitempty"`
	DueDate  *DueDateConfig `yaml:"due_date,omitempty"`
}

// DueDateConfig represents the YAML structure for the due-date routine
// configuration.
type DueDateConfig struct {
	FieldID          string   `yaml:"field_id"`
	DaysBeforeTarget int      `yaml:"days_before_target"`
	BusinessDaysOnly bool     `yaml:"business_days_only"`
	Holidays         []string `yaml:"holidays,omitempty"`
}

func (t TaskConfig) validate() error {
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}

	if !model.KnownTaskType(model.TaskType(t.Type)) {
		return fmt.Errorf("unknown task type: %q", t.Type)
	}

	if err := schedule.Validate(t.Schedule); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	if model.TaskType(t.Type) == model.TaskTypeDueDateUpdate {
		if t.DueDate == nil {
			return fmt.Errorf("due_date is required for %s tasks", model.TaskTypeDueDateUpdate)
		}
		if err := t.DueDate.validate(); err != nil {
			return fmt.Errorf("due_date: %w", err)
		}
	}

	return nil
}

func (d DueDateConfig) validate() error {
	if d.FieldID == "" {
		return fmt.Errorf("field_id is required")
	}
	if d.DaysBeforeTarget <= 0 {
		return fmt.Errorf("days_before_target must be positive, got: %d", d.DaysBeforeTarget)
	}
	for _, h := range d.Holidays {
		if _, err := workdays.ParseDate(h); err != nil {
			return fmt.Errorf("holiday %q is not a YYYY-MM-DD date", h)
		}
	}
	return nil
}

func (t TaskConfig) toModel() model.Task {
	task := model.Task{
		Name:     t.Name,
		Type:     model.TaskType(t.Type),
		Schedule: t.Schedule,
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
