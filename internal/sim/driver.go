// Package sim replays gesture scenarios against an InteractionManager.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-interaction-manager/core"
)

// Scenario is a sequence of non-overlapping gestures. Each gesture holds an
// interaction handle for Hold and queues TasksPerGesture deferred tasks when
// it starts. Gesture i starts at i*(Hold+Gap).
type Scenario struct {
	Gestures        int
	TasksPerGesture int
	Hold            time.Duration
	Gap             time.Duration
	FailEvery       int
}

// StepKind labels a Step.
type StepKind string

const (
	StepGestureStart StepKind = "gesture-start"
	StepGestureEnd   StepKind = "gesture-end"
	StepTransition   StepKind = "transition"
	StepTask         StepKind = "task"
)

// Step is one observed occurrence, timed from the start of Run.
type Step struct {
	At     time.Duration
	Kind   StepKind
	Detail string
}

// Report summarizes a run.
type Report struct {
	Steps       []Step
	Starts      int
	Completes   int
	TasksRun    int
	TasksFailed int
	// Violations counts tasks that ran while an interaction was committed active.
	Violations int
	Elapsed    time.Duration
}

// Driver runs a Scenario on a manager whose host is runner.
type Driver struct {
	manager  *core.InteractionManager
	runner   core.DelayedTaskRunner
	logger   core.Logger
	scenario Scenario

	mu    sync.Mutex
	start time.Time
	steps []Step
}

// NewDriver creates a driver. runner must be the manager's host.
func NewDriver(manager *core.InteractionManager, runner core.DelayedTaskRunner, scenario Scenario, logger core.Logger) *Driver {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	return &Driver{
		manager:  manager,
		runner:   runner,
		logger:   logger,
		scenario: scenario,
	}
}

var errInjected = errors.New("injected task failure")

// Run replays the scenario and waits until every queued task has run and the
// manager is idle, or ctx is done.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	s := d.scenario
	if s.Gestures < 0 || s.TasksPerGesture < 0 || s.Hold < 0 || s.Gap < 0 {
		return Report{}, fmt.Errorf("scenario %+v: %w", s, core.ErrInvalidArgument)
	}

	d.mu.Lock()
	d.start = time.Now()
	d.steps = nil
	d.mu.Unlock()

	var starts, completes atomic.Int32
	tokens := make([]core.SubscriptionToken, 0, 2)
	for _, ev := range []core.Event{core.EventInteractionStart, core.EventInteractionComplete} {
		token, err := d.manager.Subscribe(ev, func(ctx context.Context, event core.Event) {
			if event == core.EventInteractionStart {
				starts.Add(1)
			} else {
				completes.Add(1)
			}
			d.record(StepTransition, event.String())
		})
		if err != nil {
			return Report{}, err
		}
		tokens = append(tokens, token)
	}
	defer func() {
		for _, token := range tokens {
			d.manager.Unsubscribe(token)
		}
	}()

	total := s.Gestures * s.TasksPerGesture
	var (
		wg         sync.WaitGroup
		seq        atomic.Int32
		failed     atomic.Int32
		violations atomic.Int32
	)
	wg.Add(total)

	task := func(gesture int) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			defer wg.Done()
			n := int(seq.Add(1))
			if d.manager.Stats().Active != 0 {
				violations.Add(1)
			}
			d.record(StepTask, fmt.Sprintf("task %d (gesture %d)", n, gesture))
			if s.FailEvery > 0 && n%s.FailEvery == 0 {
				failed.Add(1)
				return fmt.Errorf("task %d: %w", n, errInjected)
			}
			return nil
		}
	}

	period := s.Hold + s.Gap
	for i := 0; i < s.Gestures; i++ {
		gesture := i
		d.runner.PostDelayedTask(func(ctx context.Context) {
			h := d.manager.CreateInteractionHandle()
			d.record(StepGestureStart, h.String())
			for j := 0; j < s.TasksPerGesture; j++ {
				if err := d.manager.RunAfterInteractionsE(task(gesture)); err != nil {
					d.logger.Warn("task rejected", core.F("gesture", gesture), core.F("error", err))
					wg.Done()
				}
			}
			d.runner.PostDelayedTask(func(ctx context.Context) {
				if err := d.manager.ClearInteractionHandle(h); err != nil {
					d.logger.Warn("clear handle failed", core.F("handle", h), core.F("error", err))
				}
				d.record(StepGestureEnd, h.String())
			}, s.Hold)
		}, time.Duration(i)*period)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return d.report(&starts, &completes, &failed, &violations), ctx.Err()
	}

	// let the pass that ran the last task finish before reporting
	if err := d.manager.WaitForIdle(ctx); err != nil {
		return d.report(&starts, &completes, &failed, &violations), err
	}

	report := d.report(&starts, &completes, &failed, &violations)
	d.logger.Info("scenario finished",
		core.F("gestures", s.Gestures),
		core.F("tasks", report.TasksRun),
		core.F("failed", report.TasksFailed),
		core.F("starts", report.Starts),
		core.F("completes", report.Completes),
		core.F("elapsed", report.Elapsed))
	return report, nil
}

func (d *Driver) record(kind StepKind, detail string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	step := Step{At: time.Since(d.start), Kind: kind, Detail: detail}
	d.steps = append(d.steps, step)
	d.logger.Debug("sim step", core.F("kind", string(kind)), core.F("detail", detail), core.F("at", step.At))
}

func (d *Driver) report(starts, completes, failed, violations *atomic.Int32) Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	tasksRun := 0
	for _, step := range d.steps {
		if step.Kind == StepTask {
			tasksRun++
		}
	}

	return Report{
		Steps:       append([]Step(nil), d.steps...),
		Starts:      int(starts.Load()),
		Completes:   int(completes.Load()),
		TasksRun:    tasksRun,
		TasksFailed: int(failed.Load()),
		Violations:  int(violations.Load()),
		Elapsed:     time.Since(d.start),
	}
}
