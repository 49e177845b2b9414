// Package automation implements the run orchestrator: the state machine that
// takes a task, extracts the work items and drives one field update per item,
// aggregating progress and reporting completion.
package automation

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/fieldbot/internal/log"
	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/storage"
	"github.com/slok/fieldbot/internal/throttle"
	"github.com/slok/fieldbot/internal/update"
)

// Extractor enumerates the work items currently visible in the tracker UI.
type Extractor interface {
	Extract(ctx context.Context) ([]model.WorkItem, error)
}

// Updater applies one field change to one work item.
type Updater interface {
	UpdateField(ctx context.Context, req update.Request) model.FieldUpdateOutcome
}

// Notifier receives run lifecycle events. Progress snapshots are replaceable
// state, not an event log. Implementations must not block the run.
type Notifier interface {
	NotifyProgress(ctx context.Context, progress model.RunProgress)
	NotifyCompleted(ctx context.Context, taskID string, counts model.RunCounts)
	NotifyError(ctx context.Context, taskID string, err error)
}

// NoopNotifier discards every event.
var NoopNotifier Notifier = noopNotifier(0)

type noopNotifier int

func (noopNotifier) NotifyProgress(ctx context.Context, progress model.RunProgress)             {}
func (noopNotifier) NotifyCompleted(ctx context.Context, taskID string, counts model.RunCounts) {}
func (noopNotifier) NotifyError(ctx context.Context, taskID string, err error)                  {}

// OrchestratorConfig is the configuration of the orchestrator.
type OrchestratorConfig struct {
	Extractor Extractor
	Updater   Updater
	// Throttler paces the run. Defaults to the standard pacing.
	Throttler *throttle.Throttler
	// Notifier receives the run events. Defaults to NoopNotifier.
	Notifier Notifier
	// Repository stores finished-run summaries, best effort. Optional, nil
	// disables persistence.
	Repository storage.Repository
	// Routines maps task types to their routine factories. Defaults to the
	// built-in registry.
	Routines map[model.TaskType]RoutineFactory
	Logger   log.Logger
}

func (c *OrchestratorConfig) defaults() error {
	if c.Extractor == nil {
		return fmt.Errorf("extractor is required")
	}
	if c.Updater == nil {
		return fmt.Errorf("updater is required")
	}

	if c.Throttler == nil {
		throttler, err := throttle.NewThrottler(throttle.DefaultConfig())
		if err != nil {
			return fmt.Errorf("could not create default throttler: %w", err)
		}
		c.Throttler = throttler
	}

	if c.Notifier == nil {
		c.Notifier = NoopNotifier
	}

	if c.Routines == nil {
		c.Routines = defaultRoutines()
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "automation.Orchestrator"})

	return nil
}

// Orchestrator owns the run state machine. States move idle -> running ->
// {completed, failed, stopped_by_user}; a terminal state goes back to idle
// only through Acknowledge. At most one run is active at a time, a second
// start is rejected, never queued.
type Orchestrator struct {
	extractor Extractor
	updater   Updater
	throttler *throttle.Throttler
	notifier  Notifier
	repo      storage.Repository
	routines  map[model.TaskType]RoutineFactory
	logger    log.Logger

	mu        sync.Mutex
	state     model.RunState
	task      model.Task
	runID     string
	startedAt time.Time
	progress  model.RunProgress
	stopFlag  bool
	runDone   chan struct{}
}

// NewOrchestrator returns an idle orchestrator.
func NewOrchestrator(config OrchestratorConfig) (*Orchestrator, error) {
	err := config.defaults()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Orchestrator{
		extractor: config.Extractor,
		updater:   config.Updater,
		throttler: config.Throttler,
		notifier:  config.Notifier,
		repo:      config.Repository,
		routines:  config.Routines,
		logger:    config.Logger,
		state:     model.RunStateIdle,
	}, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() model.RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Progress returns a snapshot of the current run progress.
func (o *Orchestrator) Progress() model.RunProgress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress.Clone()
}

// Start validates the task, selects its routine and launches the run on its
// own goroutine, inheriting ctx: canceling it aborts the run's waits. Start
// returns once the run is accepted. A start while another run is active, or
// while a finished one has not been acknowledged, is rejected.
func (o *Orchestrator) Start(ctx context.Context, task model.Task) error {
	if err := task.Validate(); err != nil {
		err = fmt.Errorf("invalid task: %w", err)
		o.notifier.NotifyError(ctx, task.ID, err)
		return err
	}

	factory, ok := o.routines[task.Type]
	if !ok {
		err := fmt.Errorf("no routine registered for task type %q: %w", task.Type, model.ErrNotImplemented)
		o.notifier.NotifyError(ctx, task.ID, err)
		return err
	}
	routine, err := factory(task)
	if err != nil {
		err = fmt.Errorf("could not prepare routine: %w", err)
		o.notifier.NotifyError(ctx, task.ID, err)
		return err
	}

	o.mu.Lock()
	switch {
	case o.state == model.RunStateRunning:
		current := o.task.ID
		o.mu.Unlock()
		err := fmt.Errorf("task %s: %w", current, model.ErrRunActive)
		o.logger.Warningf("start of task %s rejected: %v", task.ID, err)
		o.notifier.NotifyError(ctx, task.ID, err)
		return err
	case o.state.IsTerminal():
		o.mu.Unlock()
		err := fmt.Errorf("previous run not acknowledged: %w", model.ErrRunActive)
		o.logger.Warningf("start of task %s rejected: %v", task.ID, err)
		o.notifier.NotifyError(ctx, task.ID, err)
		return err
	}

	o.state = model.RunStateRunning
	o.task = task
	o.runID = ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	o.startedAt = time.Now().UTC()
	o.progress = model.RunProgress{TaskID: task.ID}
	o.stopFlag = false
	o.runDone = make(chan struct{})
	runID := o.runID
	o.mu.Unlock()

	o.logger.Infof("run %s started for task %s (%s)", runID, task.ID, task.Name)
	go o.run(ctx, task, routine)

	return nil
}

// Stop requests a cooperative stop of the active run. The flag is honored at
// the next item boundary, an in-flight item always finishes first.
func (o *Orchestrator) Stop(ctx context.Context, taskID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != model.RunStateRunning {
		return fmt.Errorf("no active run: %w", model.ErrNotFound)
	}
	if taskID != "" && taskID != o.task.ID {
		return fmt.Errorf("task %s is not the active run: %w", taskID, model.ErrNotFound)
	}

	o.stopFlag = true
	o.logger.Infof("stop requested for task %s", o.task.ID)

	return nil
}

// Acknowledge moves a finished run back to idle, clearing its progress.
func (o *Orchestrator) Acknowledge() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.IsTerminal() {
		return fmt.Errorf("no finished run to acknowledge in state %q: %w", o.state, model.ErrNotValid)
	}

	o.logger.Debugf("run %s acknowledged", o.runID)
	o.state = model.RunStateIdle
	o.task = model.Task{}
	o.runID = ""
	o.progress = model.RunProgress{}
	o.stopFlag = false
	o.runDone = nil

	return nil
}

// Wait blocks until the in-flight run reaches a terminal state. It returns
// immediately when no run was started.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.runDone
	o.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (o *Orchestrator) run(ctx context.Context, task model.Task, routine Routine) {
	logger := o.logger.WithValues(log.Kv{"task": task.ID, "run": o.runID})

	// 1. Pace before the first page interaction.
	if err := o.throttler.WaitInitial(ctx); err != nil {
		o.finish(ctx, model.RunStateFailed, fmt.Errorf("run canceled: %w", err))
		return
	}

	// 2. Enumerate the items to process.
	items, err := o.extractor.Extract(ctx)
	if err != nil {
		o.finish(ctx, model.RunStateFailed, fmt.Errorf("could not extract items: %w", err))
		return
	}
	if len(items) == 0 {
		o.finish(ctx, model.RunStateFailed, errors.New("no items found"))
		return
	}

	o.mu.Lock()
	o.progress.TotalItems = len(items)
	o.mu.Unlock()
	o.notifyProgress(ctx)
	logger.Infof("extracted %d items", len(items))

	// 3. Process strictly in extraction order, one item at a time.
	for i, item := range items {
		if o.stopRequested() {
			logger.Infof("stop observed, halting before item %d of %d", i+1, len(items))
			o.finish(ctx, model.RunStateStopped, nil)
			return
		}
		if ctx.Err() != nil {
			o.finish(ctx, model.RunStateFailed, fmt.Errorf("run canceled: %w", ctx.Err()))
			return
		}

		o.processItem(ctx, item, routine, logger)

		if i < len(items)-1 {
			if err := o.throttler.Wait(ctx); err != nil {
				o.finish(ctx, model.RunStateFailed, fmt.Errorf("run canceled: %w", err))
				return
			}
		}
	}

	o.finish(ctx, model.RunStateCompleted, nil)
}

func (o *Orchestrator) processItem(ctx context.Context, item model.WorkItem, routine Routine, logger log.Logger) {
	result := model.ItemProgress{Key: item.Key, Title: item.Title}

	// Skips are decided before the item ever starts, a skipped item never
	// reaches in_progress.
	req, skipReason, err := routine.Plan(item)
	switch {
	case skipReason != "":
		logger.Infof("skipping %s: %s", item.Key, skipReason)
		result.Status = model.ItemStatusSkipped
		result.Reason = skipReason
		o.recordResult(ctx, result)
		return
	case err != nil:
		logger.Warningf("could not plan update for %s: %v", item.Key, err)
		result.Status = model.ItemStatusFailed
		result.Reason = err.Error()
		o.recordResult(ctx, result)
		return
	}

	current := result
	current.Status = model.ItemStatusInProgress
	o.setCurrentItem(ctx, current)

	outcome := o.updater.UpdateField(ctx, req)
	if outcome.Succeeded {
		result.Status = model.ItemStatusSuccess
	} else {
		result.Status = model.ItemStatusFailed
		result.Reason = outcome.FailureReason
	}

	o.recordResult(ctx, result)
}

func (o *Orchestrator) stopRequested() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopFlag
}

func (o *Orchestrator) setCurrentItem(ctx context.Context, item model.ItemProgress) {
	o.mu.Lock()
	o.progress.CurrentItem = &item
	o.mu.Unlock()
	o.notifyProgress(ctx)
}

func (o *Orchestrator) recordResult(ctx context.Context, item model.ItemProgress) {
	o.mu.Lock()
	o.progress.CurrentItem = nil
	o.progress.History = append(o.progress.History, item)
	o.progress.ProcessedItems++
	o.mu.Unlock()
	o.notifyProgress(ctx)
}

func (o *Orchestrator) notifyProgress(ctx context.Context) {
	o.mu.Lock()
	progress := o.progress.Clone()
	o.mu.Unlock()
	o.notifier.NotifyProgress(ctx, progress)
}

// finish moves the run to its terminal state, emits the final events and
// stores the run summary.
func (o *Orchestrator) finish(ctx context.Context, state model.RunState, runErr error) {
	o.mu.Lock()
	o.state = state
	o.progress.CurrentItem = nil
	progress := o.progress.Clone()
	task := o.task
	runID := o.runID
	startedAt := o.startedAt
	done := o.runDone
	o.mu.Unlock()

	counts := progress.Counts()
	o.notifier.NotifyProgress(ctx, progress)

	if state == model.RunStateFailed {
		o.logger.Errorf("run %s failed: %v", runID, runErr)
		o.notifier.NotifyError(ctx, task.ID, runErr)
	} else {
		o.logger.Infof("run %s finished %s: %d success, %d failed, %d skipped of %d", runID, state, counts.Success, counts.Failed, counts.Skipped, counts.Total)
		o.notifier.NotifyCompleted(ctx, task.ID, counts)
	}

	summary := model.RunSummary{
		RunID:      runID,
		TaskID:     task.ID,
		TaskName:   task.Name,
		State:      state,
		Counts:     counts,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}
	if runErr != nil {
		summary.Error = runErr.Error()
	}
	if o.repo != nil {
		if err := o.repo.AppendRunSummary(ctx, summary); err != nil {
			o.logger.Warningf("could not store run summary %s: %v", runID, err)
		}
	}

	close(done)
}
