package storage

import (
	"context"

	"github.com/slok/fieldbot/internal/model"
)

// Repository is the interface for task and run-history persistence.
type Repository interface {
	CreateTask(ctx context.Context, t model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	GetTaskByName(ctx context.Context, name string) (*model.Task, error)
	ListTasks(ctx context.Context) ([]model.Task, error)
	UpdateTask(ctx context.Context, t model.Task) error
	DeleteTask(ctx context.Context, id string) error

	AppendRunSummary(ctx context.Context, s model.RunSummary) error
	ListRunSummaries(ctx context.Context) ([]model.RunSummary, error)
}
