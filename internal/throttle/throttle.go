// Package throttle paces browser interactions with human-plausible pauses so
// the automation never produces fixed-interval request patterns.
package throttle

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/slok/fieldbot/internal/model"
)

// Config is the delay policy applied between automation actions. All delays
// must be non-negative and MinDelay must not exceed MaxDelay.
type Config struct {
	// InitialDelay is the fixed pause before the first action of a run.
	InitialDelay time.Duration
	// MinDelay and MaxDelay bound the uniformly random pause between items.
	MinDelay time.Duration
	MaxDelay time.Duration
	// AfterInteraction is the fixed pause after a state-changing element
	// interaction, giving the page UI time to settle.
	AfterInteraction time.Duration
	// AfterNavigation is the fixed pause after a full page load.
	AfterNavigation time.Duration
}

func (c Config) validate() error {
	if c.InitialDelay < 0 || c.MinDelay < 0 || c.MaxDelay < 0 || c.AfterInteraction < 0 || c.AfterNavigation < 0 {
		return fmt.Errorf("delays cannot be negative: %w", model.ErrNotValid)
	}

	if c.MinDelay > c.MaxDelay {
		return fmt.Errorf("min delay cannot be greater than max delay: %w", model.ErrNotValid)
	}

	return nil
}

// DefaultConfig returns a delay preset resembling an unhurried human
// operator.
func DefaultConfig() Config {
	return Config{
		InitialDelay:     2 * time.Second,
		MinDelay:         500 * time.Millisecond,
		MaxDelay:         2 * time.Second,
		AfterInteraction: 300 * time.Millisecond,
		AfterNavigation:  1500 * time.Millisecond,
	}
}

// Throttler produces the configured pauses. It is safe for concurrent use,
// configuration swaps affect only waits started afterwards.
type Throttler struct {
	mu  sync.Mutex
	cfg Config
	rng *rand.Rand
}

// NewThrottler returns a throttler for the given delay policy.
func NewThrottler(cfg Config) (*Throttler, error) {
	err := cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("invalid throttle configuration: %w", err)
	}

	return &Throttler{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// SetConfig swaps the delay policy. Waits already in progress keep their
// original duration.
func (t *Throttler) SetConfig(cfg Config) error {
	err := cfg.validate()
	if err != nil {
		return fmt.Errorf("invalid throttle configuration: %w", err)
	}

	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()

	return nil
}

// Config returns a snapshot of the current delay policy.
func (t *Throttler) Config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// WaitInitial pauses for the pre-run delay.
func (t *Throttler) WaitInitial(ctx context.Context) error {
	return sleep(ctx, t.Config().InitialDelay)
}

// Wait pauses for a random duration within the configured [min, max] range.
// Each call draws independently, delays are never memoized.
func (t *Throttler) Wait(ctx context.Context) error {
	return sleep(ctx, t.betweenDelay())
}

// WaitAfterInteraction pauses for the post-interaction settle delay.
func (t *Throttler) WaitAfterInteraction(ctx context.Context) error {
	return sleep(ctx, t.Config().AfterInteraction)
}

// WaitAfterNavigation pauses for the post-navigation settle delay.
func (t *Throttler) WaitAfterNavigation(ctx context.Context) error {
	return sleep(ctx, t.Config().AfterNavigation)
}

func (t *Throttler) betweenDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	span := t.cfg.MaxDelay - t.cfg.MinDelay
	if span <= 0 {
		return t.cfg.MinDelay
	}

	return t.cfg.MinDelay + time.Duration(t.rng.Int63n(int64(span)+1))
}

// sleep waits for the duration or until the context is canceled, whichever
// happens first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
