package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/fieldbot/internal/printer"
	"github.com/slok/fieldbot/internal/storage/sqlite"
)

type TaskRmCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskName string
}

// NewTaskRmCommand returns the task rm command.
func NewTaskRmCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *TaskRmCommand {
	c := &TaskRmCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("rm", "Remove a task.")
	c.Cmd.Arg("task", "Task name.").Required().StringVar(&c.taskName)

	return c
}

func (c TaskRmCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskRmCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	task, err := repo.GetTaskByName(ctx, c.taskName)
	if err != nil {
		return fmt.Errorf("could not get task %q: %w", c.taskName, err)
	}

	if err := repo.DeleteTask(ctx, task.ID); err != nil {
		return fmt.Errorf("could not delete task %q: %w", c.taskName, err)
	}

	p := printer.NewTablePrinter(c.rootCmd.Stdout)
	return p.PrintMessage(fmt.Sprintf("Task %q removed", c.taskName))
}
