package lib

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/fieldbot/internal/schedule"
)

// ApplyTask creates the task, or updates it in place when a task with the
// same name already exists. The ID and timestamps of the input are ignored.
func (c *Client) ApplyTask(ctx context.Context, task Task) (*Task, error) {
	if err := schedule.Validate(task.Schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule: %v: %w", err, ErrNotValid)
	}

	// Timestamps are stored with second precision.
	now := time.Now().UTC().Truncate(time.Second)
	mt := taskToModel(task)

	existing, err := c.repo.GetTaskByName(ctx, task.Name)
	switch {
	case err == nil:
		mt.ID = existing.ID
		mt.CreatedAt = existing.CreatedAt
		mt.UpdatedAt = now
		if err := mt.Validate(); err != nil {
			return nil, fmt.Errorf("invalid task: %w", err)
		}
		if err := c.repo.UpdateTask(ctx, mt); err != nil {
			return nil, fmt.Errorf("could not update task: %w", err)
		}

	case errors.Is(err, ErrNotFound):
		mt.ID = ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
		mt.CreatedAt = now
		mt.UpdatedAt = now
		if err := mt.Validate(); err != nil {
			return nil, fmt.Errorf("invalid task: %w", err)
		}
		if err := c.repo.CreateTask(ctx, mt); err != nil {
			return nil, fmt.Errorf("could not create task: %w", err)
		}

	default:
		return nil, fmt.Errorf("could not get task %q: %w", task.Name, err)
	}

	applied := taskFromModel(mt)
	return &applied, nil
}

// GetTask returns a task by name.
func (c *Client) GetTask(ctx context.Context, name string) (*Task, error) {
	mt, err := c.repo.GetTaskByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("could not get task %q: %w", name, err)
	}

	task := taskFromModel(*mt)
	return &task, nil
}

// ListTasks returns all tasks.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	mts, err := c.repo.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}

	tasks := make([]Task, 0, len(mts))
	for _, mt := range mts {
		tasks = append(tasks, taskFromModel(mt))
	}
	return tasks, nil
}

// RemoveTask removes a task by name.
func (c *Client) RemoveTask(ctx context.Context, name string) error {
	mt, err := c.repo.GetTaskByName(ctx, name)
	if err != nil {
		return fmt.Errorf("could not get task %q: %w", name, err)
	}

	if err := c.repo.DeleteTask(ctx, mt.ID); err != nil {
		return fmt.Errorf("could not delete task %q: %w", name, err)
	}

	return nil
}

// RunHistory returns the finished runs, oldest first.
func (c *Client) RunHistory(ctx context.Context) ([]RunSummary, error) {
	mss, err := c.repo.ListRunSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list run history: %w", err)
	}

	summaries := make([]RunSummary, 0, len(mss))
	for _, ms := range mss {
		summaries = append(summaries, summaryFromModel(ms))
	}
	return summaries, nil
}
