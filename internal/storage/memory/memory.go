package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/slok/fieldbot/internal/log"
	"github.com/slok/fieldbot/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	tasks     map[string]model.Task
	summaries []model.RunSummary
	mu        sync.RWMutex
	logger    log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		tasks:  make(map[string]model.Task),
		logger: cfg.Logger,
	}, nil
}

// CreateTask creates a new task in the repository.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; ok {
		return fmt.Errorf("task with id %s: %w", t.ID, model.ErrAlreadyExists)
	}

	for _, existing := range r.tasks {
		if existing.Name == t.Name {
			return fmt.Errorf("task with name %s: %w", t.Name, model.ErrAlreadyExists)
		}
	}

	r.tasks[t.ID] = t
	r.logger.Debugf("Created task in repository: %s", t.ID)

	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	// Return a copy
	taskCopy := task
	return &taskCopy, nil
}

// GetTaskByName retrieves a task by name.
func (r *Repository) GetTaskByName(ctx context.Context, name string) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, task := range r.tasks {
		if task.Name == name {
			taskCopy := task
			return &taskCopy, nil
		}
	}

	return nil, fmt.Errorf("task with name %s: %w", name, model.ErrNotFound)
}

// ListTasks returns all tasks.
func (r *Repository) ListTasks(ctx context.Context) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]model.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// UpdateTask updates an existing task.
func (r *Repository) UpdateTask(ctx context.Context, t model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; !ok {
		return fmt.Errorf("task %s: %w", t.ID, model.ErrNotFound)
	}

	r.tasks[t.ID] = t
	r.logger.Debugf("Updated task in repository: %s", t.ID)

	return nil
}

// DeleteTask deletes a task.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	delete(r.tasks, id)
	r.logger.Debugf("Deleted task from repository: %s", id)

	return nil
}

// AppendRunSummary appends a finished-run summary to the history.
func (r *Repository) AppendRunSummary(ctx context.Context, s model.RunSummary) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid run summary: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.summaries = append(r.summaries, s)
	r.logger.Debugf("Appended run summary to repository: %s", s.RunID)

	return nil
}

// ListRunSummaries returns all run summaries in append order.
func (r *Repository) ListRunSummaries(ctx context.Context) ([]model.RunSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]model.RunSummary, len(r.summaries))
	copy(summaries, r.summaries)

	return summaries, nil
}
