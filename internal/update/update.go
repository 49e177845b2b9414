// Package update drives a single field edit on the tracker UI: open the
// editor, replace the value, save, and watch the edit surface close. Every
// interaction goes through the resolver's locator chains so the flow keeps
// working across tracker versions.
package update

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/slok/fieldbot/internal/browser"
	"github.com/slok/fieldbot/internal/log"
	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/retry"
	"github.com/slok/fieldbot/internal/throttle"
)

const (
	defaultDialogCloseTimeout = 5 * time.Second
	dialogPollInterval        = 100 * time.Millisecond
)

// dispatchChangeScript fires the input/change events SendKeys alone does not
// trigger on every tracker, so reactive pages notice the new value. The
// field id arrives as the script argument.
const dispatchChangeScript = `var el = document.getElementById(arguments[0]) || document.querySelector('[name="' + arguments[0] + '"]');
if (el) {
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
}`

func editLocators(fieldID string) []browser.Locator {
	return []browser.Locator{
		browser.CSS("#" + fieldID + "-edit"),
		browser.CSS("[data-edit-field=" + fieldID + "]"),
	}
}

func fieldLocators(fieldID string) []browser.Locator {
	return []browser.Locator{
		browser.CSS("#" + fieldID),
		browser.CSS("[name=" + fieldID + "]"),
		browser.CSS("[data-field-input=" + fieldID + "]"),
	}
}

func saveLocators() []browser.Locator {
	return []browser.Locator{
		browser.CSS("[data-testid=save-button]"),
		browser.CSS("#save-button"),
		browser.CSS("button.save"),
	}
}

func editSurfaceLocators() []browser.Locator {
	return []browser.Locator{
		browser.CSS(".edit-dialog"),
		browser.CSS("[role=dialog]"),
		browser.CSS("form.inline-edit"),
	}
}

// Request asks for one field of one work item to be set to a new value.
type Request struct {
	Item     model.WorkItem
	FieldID  string
	NewValue string
}

func (r Request) validate() error {
	if r.Item.Key == "" {
		return fmt.Errorf("item key is required: %w", model.ErrNotValid)
	}
	if r.FieldID == "" {
		return fmt.Errorf("field id is required: %w", model.ErrNotValid)
	}
	return nil
}

// ServiceConfig is the configuration of the field update service.
type ServiceConfig struct {
	Session browser.Session
	// Throttler paces the interactions. Defaults to the standard pacing.
	Throttler *throttle.Throttler
	// RetryPolicy is applied to each interaction step independently. The
	// zero value uses the retry package defaults.
	RetryPolicy retry.Policy
	// DialogCloseTimeout bounds the wait for the edit surface to close after
	// saving.
	DialogCloseTimeout time.Duration
	Logger             log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Session == nil {
		return fmt.Errorf("session is required")
	}

	if c.Throttler == nil {
		throttler, err := throttle.NewThrottler(throttle.DefaultConfig())
		if err != nil {
			return fmt.Errorf("could not create default throttler: %w", err)
		}
		c.Throttler = throttler
	}

	if c.DialogCloseTimeout == 0 {
		c.DialogCloseTimeout = defaultDialogCloseTimeout
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "update.Service"})

	return nil
}

// Service performs field updates against the live page.
type Service struct {
	session            browser.Session
	resolver           *browser.Resolver
	throttler          *throttle.Throttler
	dialogCloseTimeout time.Duration
	logger             log.Logger

	mu          sync.Mutex
	retryPolicy retry.Policy
}

// NewService returns a field update service.
func NewService(config ServiceConfig) (*Service, error) {
	err := config.defaults()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	resolver, err := browser.NewResolver(browser.ResolverConfig{
		Session: config.Session,
		Logger:  config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create resolver: %w", err)
	}

	return &Service{
		session:            config.Session,
		resolver:           resolver,
		throttler:          config.Throttler,
		retryPolicy:        config.RetryPolicy,
		dialogCloseTimeout: config.DialogCloseTimeout,
		logger:             config.Logger,
	}, nil
}

// UpdateField runs the full edit flow for one field of one item and reports
// the outcome. Failures are captured on the outcome instead of returned, a
// failed item must not abort the caller's run.
func (s *Service) UpdateField(ctx context.Context, req Request) model.FieldUpdateOutcome {
	outcome := model.FieldUpdateOutcome{
		ItemKey:   req.Item.Key,
		FieldName: req.FieldID,
		NewValue:  req.NewValue,
	}

	logger := s.logger.WithValues(log.Kv{"item": req.Item.Key, "field": req.FieldID})

	if err := req.validate(); err != nil {
		return s.failure(logger, outcome, fmt.Errorf("invalid request: %w", err))
	}

	// 1. Make sure the browser is on the item's page.
	if err := s.ensureOnItemPage(ctx, req.Item); err != nil {
		return s.failure(logger, outcome, err)
	}

	// 2. Open the edit surface for the field.
	logger.Debugf("opening editor")
	if err := s.openEditor(ctx, req.FieldID); err != nil {
		return s.failure(logger, outcome, err)
	}

	// 3. Grab the field, remembering its current value when it exposes one.
	field, prior, err := s.resolveField(ctx, req.FieldID)
	if err != nil {
		return s.failure(logger, outcome, err)
	}
	outcome.PriorValue = prior

	// 4. Replace the value and let the page know it changed.
	if err := s.writeValue(ctx, field, req.FieldID, req.NewValue); err != nil {
		return s.failure(logger, outcome, err)
	}

	// 5. Save.
	if err := s.clickSave(ctx); err != nil {
		return s.failure(logger, outcome, err)
	}

	// 6. Wait for the edit surface to close. Not seeing it close does not
	// undo the save, so the outcome stays successful but unconfirmed.
	outcome.SaveConfirmed = s.resolver.WaitGone(ctx, editSurfaceLocators(), s.dialogCloseTimeout, dialogPollInterval)
	if !outcome.SaveConfirmed {
		logger.Warningf("edit surface still open after %s, save not confirmed", s.dialogCloseTimeout)
	}

	outcome.Succeeded = true
	logger.Infof("field updated: %q -> %q (save confirmed: %t)", outcome.PriorValue, outcome.NewValue, outcome.SaveConfirmed)

	return outcome
}

func (s *Service) failure(logger log.Logger, outcome model.FieldUpdateOutcome, err error) model.FieldUpdateOutcome {
	logger.Errorf("field update failed: %v", err)
	outcome.Succeeded = false
	outcome.FailureReason = err.Error()
	return outcome
}

func (s *Service) ensureOnItemPage(ctx context.Context, item model.WorkItem) error {
	if item.URL == "" {
		return errors.New("item has no page URL")
	}

	current, err := s.session.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("could not read current URL: %w", err)
	}
	if current == item.URL {
		return nil
	}

	err = retry.Do(ctx, s.stepPolicy("navigation"), func(ctx context.Context) error {
		return s.session.Navigate(ctx, item.URL)
	})
	if err != nil {
		return fmt.Errorf("could not open item page: %w", err)
	}

	return s.throttler.WaitAfterNavigation(ctx)
}

func (s *Service) openEditor(ctx context.Context, fieldID string) error {
	err := retry.Do(ctx, s.stepPolicy("edit control"), func(ctx context.Context) error {
		el, err := s.resolver.Resolve(ctx, editLocators(fieldID))
		if err != nil {
			return err
		}
		return el.Click(ctx)
	})
	if err != nil {
		return fmt.Errorf("could not open editor: %w", err)
	}

	return s.throttler.WaitAfterInteraction(ctx)
}

func (s *Service) resolveField(ctx context.Context, fieldID string) (browser.Element, string, error) {
	var field browser.Element
	err := retry.Do(ctx, s.stepPolicy("field lookup"), func(ctx context.Context) error {
		el, err := s.resolver.Resolve(ctx, fieldLocators(fieldID))
		if err != nil {
			return err
		}
		field = el
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("could not find field: %w", err)
	}

	// Best effort, a field without a readable value still gets updated.
	prior, err := field.Attribute(ctx, "value")
	if err != nil {
		s.logger.Debugf("could not read prior value of %s: %v", fieldID, err)
		prior = ""
	}

	return field, prior, nil
}

func (s *Service) writeValue(ctx context.Context, field browser.Element, fieldID, value string) error {
	err := retry.Do(ctx, s.stepPolicy("value entry"), func(ctx context.Context) error {
		if err := field.Clear(ctx); err != nil {
			return err
		}
		return field.SendKeys(ctx, value)
	})
	if err != nil {
		return fmt.Errorf("could not enter value: %w", err)
	}

	if _, err := s.session.ExecuteScript(ctx, dispatchChangeScript, fieldID); err != nil {
		s.logger.Debugf("change event dispatch failed for %s: %v", fieldID, err)
	}

	return s.throttler.WaitAfterInteraction(ctx)
}

func (s *Service) clickSave(ctx context.Context) error {
	err := retry.Do(ctx, s.stepPolicy("save"), func(ctx context.Context) error {
		el, err := s.resolver.Resolve(ctx, saveLocators())
		if err != nil {
			return err
		}
		return el.Click(ctx)
	})
	if err != nil {
		return fmt.Errorf("could not save: %w", err)
	}

	return s.throttler.WaitAfterInteraction(ctx)
}

// SetRetryPolicy swaps the per-step retry policy. Updates already in progress
// keep the policy they started with on their current step.
func (s *Service) SetRetryPolicy(policy retry.Policy) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}

	s.mu.Lock()
	s.retryPolicy = policy
	s.mu.Unlock()

	return nil
}

func (s *Service) stepPolicy(step string) retry.Policy {
	s.mu.Lock()
	policy := s.retryPolicy
	s.mu.Unlock()
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, cause error) {
			s.logger.Debugf("retrying %s (attempt %d): %v", step, attempt, cause)
		}
	}
	return policy
}
