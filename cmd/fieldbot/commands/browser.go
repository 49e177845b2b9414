package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/fieldbot/internal/browser"
	browserdocker "github.com/slok/fieldbot/internal/browser/docker"
	"github.com/slok/fieldbot/internal/browser/webdriver"
	"github.com/slok/fieldbot/internal/conventions"
	"github.com/slok/fieldbot/internal/log"
)

const (
	browserModeWebDriver = "webdriver"
	browserModeDocker    = "docker"
)

// browserFlags groups the browser selection flags shared by the commands that
// drive a live browser session.
type browserFlags struct {
	mode         string
	webdriverURL string
	dockerImage  string
	dockerPort   int
}

func registerBrowserFlags(cmd *kingpin.CmdClause) *browserFlags {
	f := &browserFlags{}

	cmd.Flag("browser", "Browser to drive (webdriver, docker).").Default(browserModeWebDriver).EnumVar(&f.mode, browserModeWebDriver, browserModeDocker)
	cmd.Flag("webdriver-url", "WebDriver endpoint of an already running browser.").Default(conventions.DefaultWebDriverURL).StringVar(&f.webdriverURL)
	cmd.Flag("docker-image", "Browser container image (docker mode).").Default(browserdocker.DefaultImage).StringVar(&f.dockerImage)
	cmd.Flag("docker-port", "Host port bound to the browser container (docker mode).").Default(fmt.Sprintf("%d", browserdocker.DefaultPort)).IntVar(&f.dockerPort)

	return f
}

// newBrowserSession opens a session on the selected browser, starting a
// disposable container first in docker mode. The returned cleanup closes the
// session and stops anything that was started.
func (f *browserFlags) newBrowserSession(ctx context.Context, logger log.Logger) (browser.Session, func(context.Context), error) {
	wdURL := f.webdriverURL
	stopBrowser := func(context.Context) {}

	if f.mode == browserModeDocker {
		runtime, err := browserdocker.NewRuntime(browserdocker.RuntimeConfig{
			Image:  f.dockerImage,
			Port:   f.dockerPort,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create browser runtime: %w", err)
		}

		b, err := runtime.Start(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("could not start browser container: %w", err)
		}
		wdURL = b.URL
		stopBrowser = func(ctx context.Context) {
			if err := b.Stop(ctx); err != nil {
				logger.Errorf("Could not stop browser container: %v", err)
			}
		}
	}

	wd, err := webdriver.NewClient(webdriver.ClientConfig{
		URL:    wdURL,
		Logger: logger,
	})
	if err != nil {
		stopBrowser(ctx)
		return nil, nil, fmt.Errorf("could not create webdriver client: %w", err)
	}

	session, err := wd.NewSession(ctx)
	if err != nil {
		stopBrowser(ctx)
		return nil, nil, fmt.Errorf("could not open browser session: %w", err)
	}

	cleanup := func(ctx context.Context) {
		if err := session.Close(ctx); err != nil {
			logger.Errorf("Could not close browser session: %v", err)
		}
		stopBrowser(ctx)
	}

	return session, cleanup, nil
}
