package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/fieldbot/internal/model"
)

// AppendRunSummary appends a finished-run summary to the history.
func (r *Repository) AppendRunSummary(ctx context.Context, s model.RunSummary) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid run summary: %w", err)
	}

	query := `
		INSERT INTO run_summaries (run_id, task_id, task_name, state, total, success, failed, skipped, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		s.RunID,
		s.TaskID,
		s.TaskName,
		s.State,
		s.Counts.Total,
		s.Counts.Success,
		s.Counts.Failed,
		s.Counts.Skipped,
		s.Error,
		s.StartedAt.Unix(),
		s.FinishedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run summary %s: %w", s.RunID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert run summary: %w", err)
	}

	r.logger.Debugf("Appended run summary to repository: %s", s.RunID)
	return nil
}

// ListRunSummaries returns all run summaries, oldest first.
func (r *Repository) ListRunSummaries(ctx context.Context) ([]model.RunSummary, error) {
	query := `
		SELECT run_id, task_id, task_name, state, total, success, failed, skipped, error, started_at, finished_at
		FROM run_summaries
		ORDER BY finished_at ASC, run_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not query run summaries: %w", err)
	}
	defer rows.Close()

	var summaries []model.RunSummary
	for rows.Next() {
		var s model.RunSummary
		var startedAt, finishedAt int64

		err := rows.Scan(
			&s.RunID,
			&s.TaskID,
			&s.TaskName,
			&s.State,
			&s.Counts.Total,
			&s.Counts.Success,
			&s.Counts.Failed,
			&s.Counts.Skipped,
			&s.Error,
			&startedAt,
			&finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("could not scan run summary: %w", err)
		}

		s.StartedAt = time.Unix(startedAt, 0).UTC()
		s.FinishedAt = time.Unix(finishedAt, 0).UTC()
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate run summaries: %w", err)
	}

	return summaries, nil
}
