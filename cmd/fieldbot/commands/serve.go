package commands

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/slok/fieldbot/internal/automation"
	"github.com/slok/fieldbot/internal/bridge"
	"github.com/slok/fieldbot/internal/conventions"
	"github.com/slok/fieldbot/internal/extract"
	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/storage/sqlite"
	"github.com/slok/fieldbot/internal/throttle"
	"github.com/slok/fieldbot/internal/update"
)

type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddr string
	browser    *browserFlags
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Serve the dashboard bridge and wait for run commands.")
	c.Cmd.Flag("listen", "Bridge listen address.").Default(fmt.Sprintf(":%d", conventions.DefaultBridgePort)).StringVar(&c.listenAddr)
	c.browser = registerBrowserFlags(c.Cmd)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
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

	// Start the browser and open a session on it.
	session, cleanup, err := c.browser.newBrowserSession(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanup(context.Background())

	throttler, err := throttle.NewThrottler(throttle.DefaultConfig())
	if err != nil {
		return fmt.Errorf("could not create throttler: %w", err)
	}

	extractor, err := extract.NewService(extract.ServiceConfig{
		Session:   session,
		BaseURL:   c.rootCmd.BaseURL,
		Throttler: throttler,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("could not create extractor: %w", err)
	}

	updater, err := update.NewService(update.ServiceConfig{
		Session:   session,
		Throttler: throttler,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("could not create updater: %w", err)
	}

	// The bridge server and the orchestrator reference each other: the server
	// dispatches commands to the orchestrator and the orchestrator emits run
	// events through the server. The forwarder breaks the construction cycle.
	notifier := &forwardingNotifier{}

	orchestrator, err := automation.NewOrchestrator(automation.OrchestratorConfig{
		Extractor:  extractor,
		Updater:    updater,
		Throttler:  throttler,
		Notifier:   notifier,
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create orchestrator: %w", err)
	}

	bridgeServer, err := bridge.NewServer(bridge.ServerConfig{
		Engine:         orchestrator,
		Throttler:      throttler,
		SetRetryPolicy: updater.SetRetryPolicy,
		RunContext:     ctx,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("could not create bridge server: %w", err)
	}
	notifier.set(bridgeServer)

	mux := http.NewServeMux()
	mux.Handle("/ws", bridgeServer.Handler())
	server := &http.Server{Addr: c.listenAddr, Handler: mux}

	var g run.Group

	// Bridge HTTP server.
	{
		g.Add(
			func() error {
				logger.Infof("Bridge listening on %s", c.listenAddr)
				err := server.ListenAndServe()
				if err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			},
			func(_ error) {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = bridgeServer.Close()
				_ = server.Shutdown(shutdownCtx)
			},
		)
	}

	// Context cancellation (from parent signal handling).
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				<-ctx.Done()
				return ctx.Err()
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// forwardingNotifier forwards run events to a target set after construction,
// dropping events until then.
type forwardingNotifier struct {
	mu     sync.Mutex
	target automation.Notifier
}

func (n *forwardingNotifier) set(target automation.Notifier) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.target = target
}

func (n *forwardingNotifier) get() automation.Notifier {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.target == nil {
		return automation.NoopNotifier
	}
	return n.target
}

func (n *forwardingNotifier) NotifyProgress(ctx context.Context, progress model.RunProgress) {
	n.get().NotifyProgress(ctx, progress)
}

func (n *forwardingNotifier) NotifyCompleted(ctx context.Context, taskID string, counts model.RunCounts) {
	n.get().NotifyCompleted(ctx, taskID, counts)
}

func (n *forwardingNotifier) NotifyError(ctx context.Context, taskID string, err error) {
	n.get().NotifyError(ctx, taskID, err)
}
