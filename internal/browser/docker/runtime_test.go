package docker_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	browserdocker "github.com/slok/fieldbot/internal/browser/docker"
	"github.com/slok/fieldbot/internal/model"
)

// fakeDockerClient records the Docker operations the runtime performs.
type fakeDockerClient struct {
	pulled   []string
	created  []string
	started  []string
	stopped  []string
	removed  []string
	startErr error
	pingErr  error
}

func (c *fakeDockerClient) Ping(ctx context.Context) (types.Ping, error) {
	if c.pingErr != nil {
		return types.Ping{}, c.pingErr
	}
	return types.Ping{APIVersion: "1.47"}, nil
}

func (c *fakeDockerClient) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	c.pulled = append(c.pulled, refStr)
	return io.NopCloser(strings.NewReader("{}")), nil
}

func (c *fakeDockerClient) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	c.created = append(c.created, containerName)
	return container.CreateResponse{ID: "ctr-1"}, nil
}

func (c *fakeDockerClient) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	c.started = append(c.started, containerID)
	return c.startErr
}

func (c *fakeDockerClient) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	c.stopped = append(c.stopped, containerID)
	return nil
}

func (c *fakeDockerClient) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	c.removed = append(c.removed, containerID)
	return nil
}

func (c *fakeDockerClient) ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error) {
	return container.InspectResponse{}, nil
}

func TestRuntimeStartStop(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	client := &fakeDockerClient{}
	runtime, err := browserdocker.NewRuntime(browserdocker.RuntimeConfig{
		Client: client,
		Port:   14444,
		ReadyCheck: func(ctx context.Context, url string) (bool, error) {
			return true, nil
		},
	})
	require.NoError(err)

	ctx := context.Background()
	browser, err := runtime.Start(ctx)
	require.NoError(err)

	assert.Equal("http://127.0.0.1:14444", browser.URL)
	assert.Equal([]string{browserdocker.DefaultImage}, client.pulled)
	require.Len(client.created, 1)
	assert.True(strings.HasPrefix(client.created[0], "fieldbot-browser-"))
	assert.Equal([]string{"ctr-1"}, client.started)

	require.NoError(browser.Stop(ctx))
	assert.Equal([]string{"ctr-1"}, client.stopped)
	assert.Equal([]string{"ctr-1"}, client.removed)
}

func TestRuntimeStartFailureCleansUp(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	client := &fakeDockerClient{startErr: errors.New("whatever")}
	runtime, err := browserdocker.NewRuntime(browserdocker.RuntimeConfig{
		Client: client,
		ReadyCheck: func(ctx context.Context, url string) (bool, error) {
			return true, nil
		},
	})
	require.NoError(err)

	_, err = runtime.Start(context.Background())

	assert.Error(err)
	assert.Equal([]string{"ctr-1"}, client.removed)
}

func TestRuntimeCheck(t *testing.T) {
	tests := map[string]struct {
		client      *fakeDockerClient
		expStatuses []browserdockerStatus
	}{
		"A reachable daemon reports OK.": {
			client:      &fakeDockerClient{},
			expStatuses: []browserdockerStatus{{"docker_daemon", false}},
		},

		"An unreachable daemon reports an error.": {
			client:      &fakeDockerClient{pingErr: errors.New("whatever")},
			expStatuses: []browserdockerStatus{{"docker_daemon", true}},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			runtime, err := browserdocker.NewRuntime(browserdocker.RuntimeConfig{Client: test.client})
			require.NoError(err)

			results := runtime.Check(context.Background())

			require.Len(results, len(test.expStatuses))
			for i, exp := range test.expStatuses {
				assert.Equal(exp.id, results[i].ID)
				assert.Equal(exp.isError, results[i].Status == model.CheckStatusError)
			}
		})
	}
}

type browserdockerStatus struct {
	id      string
	isError bool
}

func TestRuntimeReadyTimeout(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	client := &fakeDockerClient{}
	runtime, err := browserdocker.NewRuntime(browserdocker.RuntimeConfig{
		Client:       client,
		ReadyTimeout: 20 * time.Millisecond,
		ReadyCheck: func(ctx context.Context, url string) (bool, error) {
			return false, nil
		},
	})
	require.NoError(err)

	_, err = runtime.Start(context.Background())

	assert.Error(err)
	// The container is cleaned up when readiness never arrives.
	assert.Equal([]string{"ctr-1"}, client.stopped)
	assert.Equal([]string{"ctr-1"}, client.removed)
}
