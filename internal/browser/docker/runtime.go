// Package docker runs a disposable WebDriver-capable browser inside a
// container, so the automation does not depend on a locally installed
// browser.
package docker

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/oklog/ulid/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/slok/fieldbot/internal/browser/webdriver"
	"github.com/slok/fieldbot/internal/log"
	"github.com/slok/fieldbot/internal/model"
)

const (
	// DefaultImage is the default WebDriver-capable browser image.
	DefaultImage = "selenium/standalone-chromium:latest"
	// DefaultPort is the host port the WebDriver endpoint is bound to.
	DefaultPort = 4444

	containerPort    = "4444"
	readyPollEvery   = 500 * time.Millisecond
	shmSize          = 2 * 1024 * 1024 * 1024 // Chromium needs a big /dev/shm.
	stopGraceSeconds = 10
)

// DockerClient is the interface for Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// RuntimeConfig is the configuration for the browser container runtime.
type RuntimeConfig struct {
	Client DockerClient
	// Image is the browser container image.
	Image string
	// Port is the host port bound to the container's WebDriver endpoint.
	Port int
	// ReadyTimeout bounds the wait for the WebDriver endpoint to become
	// ready after the container starts.
	ReadyTimeout time.Duration
	// ReadyCheck probes the WebDriver endpoint. Defaults to a protocol
	// status request.
	ReadyCheck func(ctx context.Context, url string) (bool, error)
	Logger     log.Logger
}

func (c *RuntimeConfig) defaults() error {
	if c.Client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = 60 * time.Second
	}
	if c.ReadyCheck == nil {
		c.ReadyCheck = webdriverReady
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "browser.DockerRuntime"})
	return nil
}

func webdriverReady(ctx context.Context, url string) (bool, error) {
	wd, err := webdriver.NewClient(webdriver.ClientConfig{URL: url})
	if err != nil {
		return false, err
	}
	return wd.Status(ctx)
}

// Runtime starts and stops disposable browser containers.
type Runtime struct {
	client       DockerClient
	image        string
	port         int
	readyTimeout time.Duration
	readyCheck   func(ctx context.Context, url string) (bool, error)
	logger       log.Logger
}

// NewRuntime creates a new browser container runtime.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runtime{
		client:       cfg.Client,
		image:        cfg.Image,
		port:         cfg.Port,
		readyTimeout: cfg.ReadyTimeout,
		readyCheck:   cfg.ReadyCheck,
		logger:       cfg.Logger,
	}, nil
}

// Check performs preflight checks for the browser container runtime.
func (r *Runtime) Check(ctx context.Context) []model.CheckResult {
	var results []model.CheckResult

	// Check 1: Docker daemon reachable.
	results = append(results, r.checkDaemon(ctx))

	return results
}

func (r *Runtime) checkDaemon(ctx context.Context) model.CheckResult {
	ping, err := r.client.Ping(ctx)
	if err != nil {
		return model.CheckResult{
			ID:      "docker_daemon",
			Message: fmt.Sprintf("Cannot reach Docker daemon: %v", err),
			Status:  model.CheckStatusError,
		}
	}

	return model.CheckResult{
		ID:      "docker_daemon",
		Message: fmt.Sprintf("Docker daemon reachable (API %s)", ping.APIVersion),
		Status:  model.CheckStatusOK,
	}
}

// Browser is a running disposable browser container.
type Browser struct {
	// URL is the WebDriver endpoint of the running browser.
	URL         string
	containerID string
	runtime     *Runtime
}

// Start pulls the browser image, creates and starts the container, and waits
// for its WebDriver endpoint to become ready.
func (r *Runtime) Start(ctx context.Context) (*Browser, error) {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	containerName := fmt.Sprintf("fieldbot-browser-%s", strings.ToLower(id))

	r.logger.Infof("[1/3] Pulling image: %s", r.image)
	pullResp, err := r.client.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", r.image, err)
	}
	// Consume the pull response to ensure it completes.
	_, _ = io.Copy(io.Discard, pullResp)
	pullResp.Close()

	r.logger.Infof("[2/3] Creating container: %s", containerName)
	wdPort, err := nat.NewPort("tcp", containerPort)
	if err != nil {
		return nil, fmt.Errorf("invalid container port: %w", err)
	}

	containerConfig := &container.Config{
		Image:        r.image,
		ExposedPorts: nat.PortSet{wdPort: struct{}{}},
	}
	hostConfig := &container.HostConfig{
		ShmSize: shmSize,
		PortBindings: nat.PortMap{
			wdPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(r.port)}},
		},
	}

	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := resp.ID

	r.logger.Infof("[3/3] Starting container: %s", containerID)
	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		r.removeQuietly(ctx, containerID)
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	browser := &Browser{
		URL:         fmt.Sprintf("http://127.0.0.1:%d", r.port),
		containerID: containerID,
		runtime:     r,
	}

	if err := r.waitReady(ctx, browser.URL); err != nil {
		_ = browser.Stop(ctx)
		return nil, err
	}

	r.logger.Infof("Browser container ready at %s", browser.URL)
	return browser, nil
}

// waitReady polls the WebDriver endpoint until it reports ready.
func (r *Runtime) waitReady(ctx context.Context, url string) error {
	deadline := time.Now().Add(r.readyTimeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		ready, err := r.readyCheck(ctx, url)
		if err == nil && ready {
			return nil
		}
		r.logger.Debugf("browser endpoint not ready yet")

		time.Sleep(readyPollEvery)
	}

	return fmt.Errorf("browser endpoint %s did not become ready in %s", url, r.readyTimeout)
}

func (r *Runtime) removeQuietly(ctx context.Context, containerID string) {
	err := r.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !strings.Contains(err.Error(), "No such container") {
		r.logger.Errorf("Failed to remove container %s: %v", containerID, err)
	}
}

// Stop stops and removes the browser container. It is idempotent.
func (b *Browser) Stop(ctx context.Context) error {
	r := b.runtime
	r.logger.Infof("Stopping browser container: %s", b.containerID)

	timeout := stopGraceSeconds
	err := r.client.ContainerStop(ctx, b.containerID, container.StopOptions{Timeout: &timeout})
	if err != nil && !strings.Contains(err.Error(), "is already stopped") && !strings.Contains(err.Error(), "is not running") && !strings.Contains(err.Error(), "No such container") {
		return fmt.Errorf("failed to stop container %s: %w", b.containerID, err)
	}

	err = r.client.ContainerRemove(ctx, b.containerID, container.RemoveOptions{Force: true})
	if err != nil && !strings.Contains(err.Error(), "No such container") {
		return fmt.Errorf("failed to remove container %s: %w", b.containerID, err)
	}

	return nil
}
