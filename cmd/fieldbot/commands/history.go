package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/printer"
	"github.com/slok/fieldbot/internal/storage/sqlite"
)

type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskFilter string
	format     string
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "Show finished runs.")
	c.Cmd.Flag("task", "Filter by task name.").StringVar(&c.taskFilter)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
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

	summaries, err := repo.ListRunSummaries(ctx)
	if err != nil {
		return fmt.Errorf("could not list run history: %w", err)
	}

	if c.taskFilter != "" {
		filtered := make([]model.RunSummary, 0, len(summaries))
		for _, s := range summaries {
			if s.TaskName == c.taskFilter {
				filtered = append(filtered, s)
			}
		}
		summaries = filtered
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintRunHistory(summaries); err != nil {
		return fmt.Errorf("could not print run history: %w", err)
	}

	return nil
}
