// Package retry is the single backoff mechanism wrapping every fallible
// browser interaction, so retry tuning stays centralized instead of being
// duplicated per operation.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/fieldbot/internal/model"
)

const (
	defaultMaxAttempts       = 3
	defaultInitialDelay      = 250 * time.Millisecond
	defaultBackoffMultiplier = 2.0
	defaultMaxDelay          = 5 * time.Second
)

// Policy describes a bounded exponential backoff schedule. Zero fields take
// defaults, explicit values are validated.
type Policy struct {
	// MaxAttempts is the total number of tries, the first one included.
	MaxAttempts int
	// InitialDelay is the pause before the second attempt. Each further
	// pause multiplies the previous one by BackoffMultiplier, capped at
	// MaxDelay.
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
	// Retryable decides whether a failure is worth another attempt. Nil
	// means every failure is retryable.
	Retryable func(error) bool
	// OnRetry is invoked before each backoff pause with the 1-based number
	// of the upcoming attempt and the failure that triggered it. It is for
	// observability only and never affects control flow.
	OnRetry func(attempt int, cause error)
}

func (p *Policy) defaults() error {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialDelay == 0 {
		p.InitialDelay = defaultInitialDelay
	}
	if p.BackoffMultiplier == 0 {
		p.BackoffMultiplier = defaultBackoffMultiplier
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = defaultMaxDelay
		if p.MaxDelay < p.InitialDelay {
			p.MaxDelay = p.InitialDelay
		}
	}

	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1: %w", model.ErrNotValid)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("initial delay cannot be negative: %w", model.ErrNotValid)
	}
	if p.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1: %w", model.ErrNotValid)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("max delay cannot be less than initial delay: %w", model.ErrNotValid)
	}

	return nil
}

// Validate applies the policy defaults and reports whether the resulting
// schedule honors the invariants.
func (p Policy) Validate() error {
	return p.defaults()
}

// Do executes op up to the policy's attempt budget. A failure the policy
// considers non-retryable propagates immediately, exhausting all attempts
// propagates the last failure, and a canceled context propagates its error.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	err := policy.defaults()
	if err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}

	var lastErr error
	delay := policy.InitialDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if policy.OnRetry != nil {
				policy.OnRetry(attempt, lastErr)
			}
			err := sleep(ctx, delay)
			if err != nil {
				return err
			}
			delay = nextDelay(delay, policy)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if policy.Retryable != nil && !policy.Retryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// Until evaluates pred with the policy's backoff schedule until it reports
// true. It returns false when attempts are exhausted, the context is
// canceled, or the policy is invalid. Predicate failures degrade to a false
// evaluation and are never propagated, so "gave up" stays distinguishable
// from "errored" only through the OnRetry observer.
func Until(ctx context.Context, policy Policy, pred func(ctx context.Context) (bool, error)) bool {
	err := policy.defaults()
	if err != nil {
		return false
	}

	var lastErr error
	delay := policy.InitialDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if policy.OnRetry != nil {
				policy.OnRetry(attempt, lastErr)
			}
			err := sleep(ctx, delay)
			if err != nil {
				return false
			}
			delay = nextDelay(delay, policy)
		}

		ok, err := pred(ctx)
		if err == nil && ok {
			return true
		}
		lastErr = err
	}

	return false
}

func nextDelay(current time.Duration, p Policy) time.Duration {
	next := time.Duration(float64(current) * p.BackoffMultiplier)
	if next > p.MaxDelay {
		return p.MaxDelay
	}
	return next
}

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
