package lib

import (
	"context"
	"fmt"

	"github.com/slok/fieldbot/internal/app/runtask"
)

// RunTask runs a task by name against the configured browser and blocks until
// the run reaches a terminal state. The finished run is appended to the run
// history.
//
// A failed run is not an error at this level, inspect [RunResult].State.
func (c *Client) RunTask(ctx context.Context, name string) (*RunResult, error) {
	if c.cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required to run tasks: %w", ErrNotValid)
	}

	mt, err := c.repo.GetTaskByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("could not get task %q: %w", name, err)
	}

	session, cleanup, err := c.newWebDriverSession(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup(context.Background())

	svc, err := runtask.NewService(runtask.ServiceConfig{
		Session:    session,
		BaseURL:    c.cfg.BaseURL,
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create run service: %w", err)
	}

	result, err := svc.Run(ctx, *mt)
	if err != nil {
		return nil, fmt.Errorf("could not run task: %w", err)
	}

	return &RunResult{
		State: RunState(result.State),
		Counts: RunCounts{
			Total:   result.Counts.Total,
			Success: result.Counts.Success,
			Failed:  result.Counts.Failed,
			Skipped: result.Counts.Skipped,
		},
		Error: result.Error,
	}, nil
}
