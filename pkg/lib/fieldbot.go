package lib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slok/fieldbot/internal/browser"
	"github.com/slok/fieldbot/internal/browser/webdriver"
	"github.com/slok/fieldbot/internal/conventions"
	"github.com/slok/fieldbot/internal/log"
	"github.com/slok/fieldbot/internal/storage/sqlite"
)

// Config configures the SDK client.
//
// All fields except BaseURL are optional and have sensible defaults. An empty
// BaseURL only prevents [Client.RunTask], task management still works.
type Config struct {
	// DBPath is the SQLite database path.
	// Default: ~/.fieldbot/fieldbot.db.
	DBPath string

	// DataDir is the base directory for fieldbot data.
	// Default: ~/.fieldbot.
	DataDir string

	// BaseURL is the address of the issue tracker the runs drive.
	BaseURL string

	// WebDriverURL is the WebDriver endpoint of the browser RunTask drives.
	// Default: http://127.0.0.1:4444.
	WebDriverURL string

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, conventions.DefaultDataDir)
	}

	if c.DBPath == "" {
		c.DBPath = conventions.DBPath(c.DataDir)
	}

	if c.WebDriverURL == "" {
		c.WebDriverURL = conventions.DefaultWebDriverURL
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the fieldbot SDK client.
type Client struct {
	repo   *sqlite.Repository
	cfg    Config
	logger log.Logger
}

// New creates a new SDK client. The SQLite database is created and migrated
// on first use.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	return &Client{
		repo:   repo,
		cfg:    cfg,
		logger: cfg.Logger,
	}, nil
}

// Close releases the client resources. The client must not be used afterwards.
func (c *Client) Close() error {
	return c.repo.Close()
}

func (c *Client) newWebDriverSession(ctx context.Context) (browser.Session, func(context.Context), error) {
	wd, err := webdriver.NewClient(webdriver.ClientConfig{
		URL:    c.cfg.WebDriverURL,
		Logger: c.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("could not create webdriver client: %w", err)
	}

	session, err := wd.NewSession(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open browser session: %w", err)
	}

	cleanup := func(ctx context.Context) {
		if err := session.Close(ctx); err != nil {
			c.logger.Errorf("Could not close browser session: %v", err)
		}
	}

	return session, cleanup, nil
}
