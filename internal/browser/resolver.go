package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/fieldbot/internal/log"
)

const defaultPollInterval = 250 * time.Millisecond

// ResolverConfig is the configuration of the element resolver.
type ResolverConfig struct {
	Session Session
	Logger  log.Logger
}

func (c *ResolverConfig) defaults() error {
	if c.Session == nil {
		return fmt.Errorf("session is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "browser.Resolver"})

	return nil
}

// Resolver looks up elements through a prioritized locator fallback chain.
// The target UI's structure varies across versions and deployments, so
// resilience comes from the chain rather than from a single selector.
type Resolver struct {
	session Session
	logger  log.Logger
}

// NewResolver returns a resolver over the given session.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	err := config.defaults()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Resolver{
		session: config.Session,
		logger:  config.Logger,
	}, nil
}

// Resolve tries the locators strictly in order and returns the first match.
// List order encodes "most current, most specific first", so the first
// successful match wins. Session failures other than a locator miss
// propagate immediately.
func (r *Resolver) Resolve(ctx context.Context, locators []Locator) (Element, error) {
	if len(locators) == 0 {
		return nil, fmt.Errorf("at least one locator is required")
	}

	for _, loc := range locators {
		element, err := r.session.Find(ctx, loc)
		if err == nil {
			return element, nil
		}
		if !errors.Is(err, ErrElementNotFound) {
			return nil, fmt.Errorf("could not resolve %s: %w", loc, err)
		}

		r.logger.Debugf("locator %s did not match, trying next", loc)
	}

	return nil, fmt.Errorf("none of the %d locators matched: %w", len(locators), ErrElementNotFound)
}

// WaitFor re-tries the full locator chain until a match appears or the
// timeout elapses. Absence is reported as (nil, false), never as an error,
// callers decide whether absence is a failure.
func (r *Resolver) WaitFor(ctx context.Context, locators []Locator, timeout, interval time.Duration) (Element, bool) {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	deadline := time.Now().Add(timeout)
	for {
		element, err := r.Resolve(ctx, locators)
		if err == nil {
			return element, true
		}

		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return nil, false
		}
		err = sleep(ctx, interval)
		if err != nil {
			return nil, false
		}
	}
}

// WaitGone polls until no locator matches a visible element, reporting
// whether it observed the disappearance before the timeout. An element that
// is present but hidden counts as gone.
func (r *Resolver) WaitGone(ctx context.Context, locators []Locator, timeout, interval time.Duration) bool {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	deadline := time.Now().Add(timeout)
	for {
		if !r.anyVisible(ctx, locators) {
			return true
		}

		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return false
		}
		err := sleep(ctx, interval)
		if err != nil {
			return false
		}
	}
}

func (r *Resolver) anyVisible(ctx context.Context, locators []Locator) bool {
	for _, loc := range locators {
		element, err := r.session.Find(ctx, loc)
		if err != nil {
			continue
		}

		shown, err := element.Displayed(ctx)
		if err != nil {
			continue
		}
		if shown {
			return true
		}
	}

	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
