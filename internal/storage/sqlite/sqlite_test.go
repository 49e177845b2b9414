package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/fieldbot/internal/log"
	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/storage/sqlite"
)

func taskFixture(id, name string) model.Task {
	now := time.Now().UTC().Truncate(time.Second)
	return model.Task{
		ID:       id,
		Type:     model.TaskTypeDueDateUpdate,
		Name:     name,
		Schedule: "30 9 * * 1-5",
		DueDate: &model.DueDateTaskConfig{
			FieldID:          "duedate",
			DaysBeforeTarget: 10,
			BusinessDaysOnly: true,
			Holidays:         []string{"2025-01-01", "2025-12-25"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func summaryFixture(runID, taskID string) model.RunSummary {
	now := time.Now().UTC().Truncate(time.Second)
	return model.RunSummary{
		RunID:      runID,
		TaskID:     taskID,
		TaskName:   "release-prep",
		State:      model.RunStateCompleted,
		Counts:     model.RunCounts{Total: 5, Success: 3, Failed: 1, Skipped: 1},
		StartedAt:  now.Add(-2 * time.Minute),
		FinishedAt: now,
	}
}

func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepositoryTaskCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	task := taskFixture("id-1", "release-prep")
	require.NoError(t, repo.CreateTask(ctx, task))

	got, err := repo.GetTask(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "release-prep", got.Name)
	assert.Equal(t, model.TaskTypeDueDateUpdate, got.Type)
	assert.Equal(t, "30 9 * * 1-5", got.Schedule)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, "duedate", got.DueDate.FieldID)
	assert.Equal(t, 10, got.DueDate.DaysBeforeTarget)
	assert.True(t, got.DueDate.BusinessDaysOnly)
	assert.Equal(t, []string{"2025-01-01", "2025-12-25"}, got.DueDate.Holidays)

	gotByName, err := repo.GetTaskByName(ctx, "release-prep")
	require.NoError(t, err)
	assert.Equal(t, "id-1", gotByName.ID)

	task2 := taskFixture("id-2", "another-task")
	task2.DueDate.Holidays = nil
	require.NoError(t, repo.CreateTask(ctx, task2))

	all, err := repo.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Ordered by name.
	assert.Equal(t, "another-task", all[0].Name)
	assert.Nil(t, all[0].DueDate.Holidays)
	assert.Equal(t, "release-prep", all[1].Name)

	task.DueDate.DaysBeforeTarget = 5
	require.NoError(t, repo.UpdateTask(ctx, task))
	got, err = repo.GetTask(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.DueDate.DaysBeforeTarget)

	require.NoError(t, repo.DeleteTask(ctx, "id-1"))
	_, err = repo.GetTask(ctx, "id-1")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestRepositoryTaskErrors(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.CreateTask(ctx, taskFixture("id-1", "dup-name")))

	t.Run("Duplicated name should fail with already exists.", func(t *testing.T) {
		err := repo.CreateTask(ctx, taskFixture("id-2", "dup-name"))
		assert.True(t, errors.Is(err, model.ErrAlreadyExists))
	})

	t.Run("Getting a missing task should fail with not found.", func(t *testing.T) {
		_, err := repo.GetTask(ctx, "missing")
		assert.True(t, errors.Is(err, model.ErrNotFound))

		_, err = repo.GetTaskByName(ctx, "missing")
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("Updating a missing task should fail with not found.", func(t *testing.T) {
		err := repo.UpdateTask(ctx, taskFixture("missing", "missing-name"))
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("Deleting a missing task should fail with not found.", func(t *testing.T) {
		err := repo.DeleteTask(ctx, "missing")
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})
}

func TestRepositoryRunSummaries(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	s1 := summaryFixture("run-1", "id-1")
	s1.FinishedAt = s1.FinishedAt.Add(-time.Hour)
	s2 := summaryFixture("run-2", "id-1")
	s2.State = model.RunStateFailed
	s2.Error = "no items found"

	require.NoError(t, repo.AppendRunSummary(ctx, s1))
	require.NoError(t, repo.AppendRunSummary(ctx, s2))

	got, err := repo.ListRunSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Oldest first.
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, model.RunCounts{Total: 5, Success: 3, Failed: 1, Skipped: 1}, got[0].Counts)
	assert.Equal(t, "run-2", got[1].RunID)
	assert.Equal(t, model.RunStateFailed, got[1].State)
	assert.Equal(t, "no items found", got[1].Error)

	t.Run("A non-terminal summary should be rejected.", func(t *testing.T) {
		bad := summaryFixture("run-3", "id-1")
		bad.State = model.RunStateRunning
		err := repo.AppendRunSummary(ctx, bad)
		assert.True(t, errors.Is(err, model.ErrNotValid))
	})

	t.Run("A duplicated run id should fail with already exists.", func(t *testing.T) {
		err := repo.AppendRunSummary(ctx, summaryFixture("run-1", "id-1"))
		assert.True(t, errors.Is(err, model.ErrAlreadyExists))
	})
}
