package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/fieldbot/internal/printer"
	"github.com/slok/fieldbot/internal/storage/sqlite"
)

type TaskGetCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskName string
	format   string
}

// NewTaskGetCommand returns the task get command.
func NewTaskGetCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *TaskGetCommand {
	c := &TaskGetCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("get", "Show a task in detail.")
	c.Cmd.Arg("task", "Task name.").Required().StringVar(&c.taskName)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c TaskGetCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskGetCommand) Run(ctx context.Context) error {
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

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintTask(*task); err != nil {
		return fmt.Errorf("could not print task: %w", err)
	}

	return nil
}
