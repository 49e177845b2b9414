package throttle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/fieldbot/internal/throttle"
)

func TestNewThrottler(t *testing.T) {
	tests := map[string]struct {
		config throttle.Config
		expErr bool
	}{
		"The default configuration should be valid.": {
			config: throttle.DefaultConfig(),
		},

		"A zero configuration should be valid.": {
			config: throttle.Config{},
		},

		"Min delay greater than max delay should fail.": {
			config: throttle.Config{
				MinDelay: 2 * time.Second,
				MaxDelay: 1 * time.Second,
			},
			expErr: true,
		},

		"A negative delay should fail.": {
			config: throttle.Config{
				AfterNavigation: -1 * time.Second,
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			_, err := throttle.NewThrottler(test.config)

			if test.expErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
			}
		})
	}
}

func TestThrottlerWaits(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	th, err := throttle.NewThrottler(throttle.Config{
		InitialDelay:     5 * time.Millisecond,
		MinDelay:         time.Millisecond,
		MaxDelay:         3 * time.Millisecond,
		AfterInteraction: time.Millisecond,
		AfterNavigation:  time.Millisecond,
	})
	require.NoError(err)

	ctx := context.Background()

	start := time.Now()
	assert.NoError(th.WaitInitial(ctx))
	assert.GreaterOrEqual(time.Since(start), 5*time.Millisecond)

	start = time.Now()
	assert.NoError(th.Wait(ctx))
	assert.GreaterOrEqual(time.Since(start), time.Millisecond)

	assert.NoError(th.WaitAfterInteraction(ctx))
	assert.NoError(th.WaitAfterNavigation(ctx))
}

func TestThrottlerWaitCanceled(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	th, err := throttle.NewThrottler(throttle.Config{
		MinDelay: time.Hour,
		MaxDelay: time.Hour,
	})
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err = th.Wait(ctx)

	assert.ErrorIs(err, context.Canceled)
	assert.Less(time.Since(start), time.Hour)
}

func TestThrottlerSetConfig(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	th, err := throttle.NewThrottler(throttle.Config{
		MinDelay: time.Hour,
		MaxDelay: time.Hour,
	})
	require.NoError(err)

	// Invalid swaps are rejected and leave the current policy untouched.
	err = th.SetConfig(throttle.Config{MinDelay: 2 * time.Second, MaxDelay: time.Second})
	assert.Error(err)
	assert.Equal(time.Hour, th.Config().MinDelay)

	// Valid swaps affect subsequent waits.
	err = th.SetConfig(throttle.Config{})
	require.NoError(err)

	start := time.Now()
	assert.NoError(th.Wait(context.Background()))
	assert.Less(time.Since(start), time.Second)
}

func TestThrottlerZeroDelaysDoNotBlock(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	th, err := throttle.NewThrottler(throttle.Config{})
	require.NoError(err)

	ctx := context.Background()

	start := time.Now()
	assert.NoError(th.WaitInitial(ctx))
	assert.NoError(th.Wait(ctx))
	assert.NoError(th.WaitAfterInteraction(ctx))
	assert.NoError(th.WaitAfterNavigation(ctx))
	assert.Less(time.Since(start), time.Second)
}
