package commands

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/ulid/v2"

	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/printer"
	storageio "github.com/slok/fieldbot/internal/storage/io"
	"github.com/slok/fieldbot/internal/storage/sqlite"
)

type TaskApplyCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	file string
}

// NewTaskApplyCommand returns the task apply command.
func NewTaskApplyCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *TaskApplyCommand {
	c := &TaskApplyCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("apply", "Create or update a task from a YAML definition.")
	c.Cmd.Flag("file", "Path to the task definition file.").Short('f').Required().StringVar(&c.file)

	return c
}

func (c TaskApplyCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskApplyCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Load and validate the definition.
	absFile, err := filepath.Abs(c.file)
	if err != nil {
		return fmt.Errorf("invalid file path: %w", err)
	}
	loader := storageio.NewTaskYAMLRepository(os.DirFS(filepath.Dir(absFile)))
	task, err := loader.GetTask(ctx, filepath.Base(absFile))
	if err != nil {
		return fmt.Errorf("could not load task definition: %w", err)
	}

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	p := printer.NewTablePrinter(c.rootCmd.Stdout)
	now := time.Now().UTC()

	// Update in place when a task with the same name already exists.
	existing, err := repo.GetTaskByName(ctx, task.Name)
	switch {
	case err == nil:
		task.ID = existing.ID
		task.CreatedAt = existing.CreatedAt
		task.UpdatedAt = now
		if err := repo.UpdateTask(ctx, task); err != nil {
			return fmt.Errorf("could not update task: %w", err)
		}
		return p.PrintMessage(fmt.Sprintf("Task %q updated", task.Name))

	case errors.Is(err, model.ErrNotFound):
		task.ID = ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
		task.CreatedAt = now
		task.UpdatedAt = now
		if err := repo.CreateTask(ctx, task); err != nil {
			return fmt.Errorf("could not create task: %w", err)
		}
		return p.PrintMessage(fmt.Sprintf("Task %q created (%s)", task.Name, task.ID))

	default:
		return fmt.Errorf("could not get task %q: %w", task.Name, err)
	}
}
