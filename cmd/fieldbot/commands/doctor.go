package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	browserdocker "github.com/slok/fieldbot/internal/browser/docker"
	"github.com/slok/fieldbot/internal/browser/webdriver"
	"github.com/slok/fieldbot/internal/conventions"
	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/storage/sqlite"
)

type DoctorCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	target       string
	webdriverURL string
}

// NewDoctorCommand returns the doctor command.
func NewDoctorCommand(rootCmd *RootCommand, app *kingpin.Application) *DoctorCommand {
	c := &DoctorCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("doctor", "Run preflight checks.")
	c.Cmd.Flag("target", "Browser target to check (webdriver, docker, all).").Default("all").EnumVar(&c.target, browserModeWebDriver, browserModeDocker, "all")
	c.Cmd.Flag("webdriver-url", "WebDriver endpoint to check.").Default(conventions.DefaultWebDriverURL).StringVar(&c.webdriverURL)

	return c
}

func (c DoctorCommand) Name() string { return c.Cmd.FullCommand() }

func (c DoctorCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger
	out := c.rootCmd.Stdout

	var results []model.CheckResult

	// Check 1: base URL configured.
	results = append(results, c.checkBaseURL())

	// Check 2: database reachable and migrated.
	results = append(results, c.checkDatabase(ctx))

	// Check 3: WebDriver endpoint.
	if c.target == browserModeWebDriver || c.target == "all" {
		results = append(results, c.checkWebDriver(ctx))
	}

	// Check 4: Docker daemon for the container browser.
	if c.target == browserModeDocker || c.target == "all" {
		runtime, err := browserdocker.NewRuntime(browserdocker.RuntimeConfig{Logger: logger})
		if err != nil {
			results = append(results, model.CheckResult{
				ID:      "docker_daemon",
				Message: fmt.Sprintf("Cannot create Docker client: %v", err),
				Status:  model.CheckStatusError,
			})
		} else {
			results = append(results, runtime.Check(ctx)...)
		}
	}

	// Print results.
	for _, r := range results {
		fmt.Fprintf(out, "  %s %-20s %s\n", statusIcon(r.Status), r.ID, r.Message)
	}

	// Summary.
	_, warnings, errs := model.CountByStatus(results)
	fmt.Fprintln(out)
	if errs == 0 && warnings == 0 {
		fmt.Fprintln(out, "All checks passed!")
	} else {
		var parts []string
		if errs > 0 {
			parts = append(parts, fmt.Sprintf("%d error(s)", errs))
		}
		if warnings > 0 {
			parts = append(parts, fmt.Sprintf("%d warning(s)", warnings))
		}
		fmt.Fprintln(out, strings.Join(parts, ", "))
	}

	if model.HasErrors(results) {
		return fmt.Errorf("preflight checks failed with %d error(s)", errs)
	}

	return nil
}

func (c DoctorCommand) checkBaseURL() model.CheckResult {
	if c.rootCmd.BaseURL == "" {
		return model.CheckResult{
			ID:      "base_url",
			Message: "Base URL is not configured (set --base-url or FIELDBOT_BASE_URL)",
			Status:  model.CheckStatusWarning,
		}
	}
	return model.CheckResult{
		ID:      "base_url",
		Message: fmt.Sprintf("Base URL configured (%s)", c.rootCmd.BaseURL),
		Status:  model.CheckStatusOK,
	}
}

func (c DoctorCommand) checkDatabase(ctx context.Context) model.CheckResult {
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: c.rootCmd.Logger,
	})
	if err != nil {
		return model.CheckResult{
			ID:      "database",
			Message: fmt.Sprintf("Cannot open database at %s: %v", c.rootCmd.DBPath, err),
			Status:  model.CheckStatusError,
		}
	}
	repo.Close()

	return model.CheckResult{
		ID:      "database",
		Message: fmt.Sprintf("Database ready at %s", c.rootCmd.DBPath),
		Status:  model.CheckStatusOK,
	}
}

func (c DoctorCommand) checkWebDriver(ctx context.Context) model.CheckResult {
	wd, err := webdriver.NewClient(webdriver.ClientConfig{
		URL:    c.webdriverURL,
		Logger: c.rootCmd.Logger,
	})
	if err != nil {
		return model.CheckResult{
			ID:      "webdriver",
			Message: fmt.Sprintf("Cannot create WebDriver client: %v", err),
			Status:  model.CheckStatusError,
		}
	}

	ready, err := wd.Status(ctx)
	if err != nil {
		return model.CheckResult{
			ID:      "webdriver",
			Message: fmt.Sprintf("WebDriver endpoint %s is not reachable: %v", c.webdriverURL, err),
			Status:  model.CheckStatusError,
		}
	}
	if !ready {
		return model.CheckResult{
			ID:      "webdriver",
			Message: fmt.Sprintf("WebDriver endpoint %s is not ready", c.webdriverURL),
			Status:  model.CheckStatusWarning,
		}
	}

	return model.CheckResult{
		ID:      "webdriver",
		Message: fmt.Sprintf("WebDriver endpoint %s is ready", c.webdriverURL),
		Status:  model.CheckStatusOK,
	}
}

func statusIcon(status model.CheckStatus) string {
	switch status {
	case model.CheckStatusOK:
		return "OK"
	case model.CheckStatusWarning:
		return "!!"
	case model.CheckStatusError:
		return "XX"
	default:
		return "??"
	}
}
