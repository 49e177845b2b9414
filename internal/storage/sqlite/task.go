package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slok/fieldbot/internal/model"
)

const taskColumns = `id, name, type, schedule, field_id, days_before_target, business_days_only, holidays, created_at, updated_at`

// CreateTask creates a new task in the repository.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var fieldID, holidays string
	var daysBefore int
	var businessDays bool
	if t.DueDate != nil {
		fieldID = t.DueDate.FieldID
		daysBefore = t.DueDate.DaysBeforeTarget
		businessDays = t.DueDate.BusinessDaysOnly
		holidays = strings.Join(t.DueDate.Holidays, ",")
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		t.ID,
		t.Name,
		t.Type,
		t.Schedule,
		fieldID,
		daysBefore,
		businessDays,
		holidays,
		t.CreatedAt.Unix(),
		t.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("task %s: %w", t.Name, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert task: %w", err)
	}

	r.logger.Debugf("Created task in repository: %s", t.ID)
	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	return r.scanTask(r.db.QueryRowContext(ctx, query, id), id)
}

// GetTaskByName retrieves a task by name.
func (r *Repository) GetTaskByName(ctx context.Context, name string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE name = ?`
	return r.scanTask(r.db.QueryRowContext(ctx, query, name), name)
}

// ListTasks returns all tasks ordered by name.
func (r *Repository) ListTasks(ctx context.Context) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate tasks: %w", err)
	}

	return tasks, nil
}

// UpdateTask updates an existing task.
func (r *Repository) UpdateTask(ctx context.Context, t model.Task) error {
	query := `
		UPDATE tasks
		SET name = ?, type = ?, schedule = ?, field_id = ?, days_before_target = ?, business_days_only = ?, holidays = ?, updated_at = ?
		WHERE id = ?
	`

	var fieldID, holidays string
	var daysBefore int
	var businessDays bool
	if t.DueDate != nil {
		fieldID = t.DueDate.FieldID
		daysBefore = t.DueDate.DaysBeforeTarget
		businessDays = t.DueDate.BusinessDaysOnly
		holidays = strings.Join(t.DueDate.Holidays, ",")
	}

	result, err := r.db.ExecContext(ctx, query, t.Name, t.Type, t.Schedule, fieldID, daysBefore, businessDays, holidays, time.Now().UTC().Unix(), t.ID)
	if err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", t.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Updated task in repository: %s", t.ID)
	return nil
}

// DeleteTask deletes a task.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted task from repository: %s", id)
	return nil
}

func (r *Repository) scanTask(row *sql.Row, ref string) (*model.Task, error) {
	t, err := scanTaskRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", ref, model.ErrNotFound)
		}
		return nil, err
	}
	return t, nil
}

func scanTaskRow(scan func(dest ...any) error) (*model.Task, error) {
	var t model.Task
	var fieldID, holidays string
	var daysBefore int
	var businessDays bool
	var createdAt, updatedAt int64

	err := scan(
		&t.ID,
		&t.Name,
		&t.Type,
		&t.Schedule,
		&fieldID,
		&daysBefore,
		&businessDays,
		&holidays,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("could not scan task: %w", err)
	}

	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	// A stored field id means the row carries a due-date routine config.
	if fieldID != "" {
		t.DueDate = &model.DueDateTaskConfig{
			FieldID:          fieldID,
			DaysBeforeTarget: daysBefore,
			BusinessDaysOnly: businessDays,
		}
		if holidays != "" {
			t.DueDate.Holidays = strings.Split(holidays, ",")
		}
	}

	return &t, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
