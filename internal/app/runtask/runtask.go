// Package runtask composes the automation engine for a one-shot CLI run:
// wire a browser session to the extractor, updater and orchestrator, execute
// one task to its terminal state and report the result.
package runtask

import (
	"context"
	"fmt"
	"sync"

	"github.com/slok/fieldbot/internal/automation"
	"github.com/slok/fieldbot/internal/browser"
	"github.com/slok/fieldbot/internal/extract"
	"github.com/slok/fieldbot/internal/log"
	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/retry"
	"github.com/slok/fieldbot/internal/storage"
	"github.com/slok/fieldbot/internal/throttle"
	"github.com/slok/fieldbot/internal/update"
)

// ServiceConfig is the configuration for the run-task service.
type ServiceConfig struct {
	Session browser.Session
	// BaseURL is the address of the issue tracker, used to resolve relative
	// item links.
	BaseURL string
	// ListURL is the page listing the work items. Defaults to BaseURL.
	ListURL string
	// Throttler paces the run. Defaults to the standard pacing.
	Throttler *throttle.Throttler
	// RetryPolicy is applied to each UI interaction step. The zero value
	// uses the retry package defaults.
	RetryPolicy retry.Policy
	// Repository stores finished-run summaries. Optional, nil disables
	// persistence.
	Repository storage.Repository
	// Notifier receives the run events. Optional.
	Notifier automation.Notifier
	Logger   log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Session == nil {
		return fmt.Errorf("session is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if c.ListURL == "" {
		c.ListURL = c.BaseURL
	}

	if c.Throttler == nil {
		throttler, err := throttle.NewThrottler(throttle.DefaultConfig())
		if err != nil {
			return fmt.Errorf("could not create default throttler: %w", err)
		}
		c.Throttler = throttler
	}

	if c.Notifier == nil {
		c.Notifier = automation.NoopNotifier
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Result is the outcome of a one-shot run.
type Result struct {
	State    model.RunState
	Counts   model.RunCounts
	Progress model.RunProgress
	// Error is the run-level failure when State is failed.
	Error string
}

// Service executes one task against a live browser session and blocks until
// the run finishes.
type Service struct {
	orchestrator *automation.Orchestrator
	recorder     *errorRecorder
	logger       log.Logger
}

// NewService creates a new run-task service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// 1. Extraction over the live list page, paced like the rest of the run.
	extractor, err := extract.NewService(extract.ServiceConfig{
		Session:   cfg.Session,
		BaseURL:   cfg.BaseURL,
		ListURL:   cfg.ListURL,
		Throttler: cfg.Throttler,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create extractor: %w", err)
	}

	// 2. Field updates sharing the run's pacing.
	updater, err := update.NewService(update.ServiceConfig{
		Session:     cfg.Session,
		Throttler:   cfg.Throttler,
		RetryPolicy: cfg.RetryPolicy,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create updater: %w", err)
	}

	// 3. The orchestrator drives the run; the recorder keeps the run-level
	// error so the CLI can report it after the blocking wait.
	recorder := &errorRecorder{next: cfg.Notifier}
	orchestrator, err := automation.NewOrchestrator(automation.OrchestratorConfig{
		Extractor:  extractor,
		Updater:    updater,
		Throttler:  cfg.Throttler,
		Notifier:   recorder,
		Repository: cfg.Repository,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create orchestrator: %w", err)
	}

	return &Service{
		orchestrator: orchestrator,
		recorder:     recorder,
		logger:       cfg.Logger,
	}, nil
}

// Run executes the task and blocks until the run reaches a terminal state.
// A failed run returns the result, not an error: the caller decides how to
// surface it.
func (s *Service) Run(ctx context.Context, task model.Task) (Result, error) {
	if err := s.orchestrator.Start(ctx, task); err != nil {
		return Result{}, fmt.Errorf("could not start run: %w", err)
	}

	if err := s.orchestrator.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("run interrupted: %w", err)
	}

	progress := s.orchestrator.Progress()
	result := Result{
		State:    s.orchestrator.State(),
		Counts:   progress.Counts(),
		Progress: progress,
		Error:    s.recorder.lastError(),
	}

	// One-shot runs have no separate caller to acknowledge, fold the
	// terminal state back to idle here.
	if err := s.orchestrator.Acknowledge(); err != nil {
		s.logger.Warningf("could not acknowledge run: %v", err)
	}

	return result, nil
}

// Stop requests a cooperative stop of the active run.
func (s *Service) Stop(ctx context.Context, taskID string) error {
	return s.orchestrator.Stop(ctx, taskID)
}

// errorRecorder keeps the last run-level error while forwarding every event.
type errorRecorder struct {
	next automation.Notifier

	mu   sync.Mutex
	last string
}

func (r *errorRecorder) NotifyProgress(ctx context.Context, progress model.RunProgress) {
	r.next.NotifyProgress(ctx, progress)
}

func (r *errorRecorder) NotifyCompleted(ctx context.Context, taskID string, counts model.RunCounts) {
	r.next.NotifyCompleted(ctx, taskID, counts)
}

func (r *errorRecorder) NotifyError(ctx context.Context, taskID string, err error) {
	r.mu.Lock()
	r.last = err.Error()
	r.mu.Unlock()
	r.next.NotifyError(ctx, taskID, err)
}

func (r *errorRecorder) lastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
