package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/fieldbot/internal/app/runtask"
	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/printer"
	"github.com/slok/fieldbot/internal/storage/sqlite"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskName string
	browser  *browserFlags
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a task once and wait for it to finish.")
	c.Cmd.Arg("task", "Task name.").Required().StringVar(&c.taskName)
	c.browser = registerBrowserFlags(c.Cmd)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	if c.rootCmd.BaseURL == "" {
		return fmt.Errorf("base URL is required (set --base-url or FIELDBOT_BASE_URL)")
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

	task, err := repo.GetTaskByName(ctx, c.taskName)
	if err != nil {
		return fmt.Errorf("could not get task %q: %w", c.taskName, err)
	}

	// Start the browser and open a session on it.
	session, cleanup, err := c.browser.newBrowserSession(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanup(context.Background())

	svc, err := runtask.NewService(runtask.ServiceConfig{
		Session:    session,
		BaseURL:    c.rootCmd.BaseURL,
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create run service: %w", err)
	}

	// Execute the run and block until it reaches a terminal state.
	result, err := svc.Run(ctx, *task)
	if err != nil {
		return fmt.Errorf("could not run task: %w", err)
	}

	p := printer.NewTablePrinter(c.rootCmd.Stdout)
	if err := p.PrintMessage(formatRunResult(c.taskName, result)); err != nil {
		return fmt.Errorf("could not print result: %w", err)
	}

	if result.State == model.RunStateFailed {
		return fmt.Errorf("run failed: %s", result.Error)
	}

	return nil
}

// formatRunResult renders the one-line outcome of a finished run.
func formatRunResult(taskName string, result runtask.Result) string {
	msg := fmt.Sprintf("Task %q %s: %d items (%d updated, %d failed, %d skipped)",
		taskName, result.State, result.Counts.Total, result.Counts.Success, result.Counts.Failed, result.Counts.Skipped)
	if result.State == model.RunStateFailed && result.Error != "" {
		msg = fmt.Sprintf("%s: %s", msg, result.Error)
	}
	return msg
}
