package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// SingleThreadTaskRunner binds a dedicated goroutine to execute tasks sequentially.
// Every posted task runs on the same goroutine, one per loop iteration, so it
// serves as the "next tick" host of an InteractionManager: a task posted from
// inside another task always runs after the current one returns.
//
// The queue is unbounded; PostTask never blocks, which lets a running task post
// to its own runner.
type SingleThreadTaskRunner struct {
	mu     sync.Mutex
	queue  *FIFOQueue[Task]
	signal chan struct{}

	// Lifecycle control
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
	closed  atomic.Bool

	name    string
	invoker *GuardedInvoker
}

// NewSingleThreadTaskRunner creates and starts a new SingleThreadTaskRunner.
// Task panics are reported through a LoggingErrorReporter.
func NewSingleThreadTaskRunner() *SingleThreadTaskRunner {
	return NewSingleThreadTaskRunnerWithReporter(nil)
}

// NewSingleThreadTaskRunnerWithReporter creates and starts a runner whose task
// panics go to reporter.
func NewSingleThreadTaskRunnerWithReporter(reporter ErrorReporter) *SingleThreadTaskRunner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &SingleThreadTaskRunner{
		queue:   NewFIFOQueue[Task](),
		signal:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
		invoker: NewGuardedInvoker(reporter),
	}

	// Start the dedicated message loop
	go r.runLoop()

	return r
}

// Name returns the name of the task runner
func (r *SingleThreadTaskRunner) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

// SetName sets the name of the task runner
func (r *SingleThreadTaskRunner) SetName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
}

// PostTask queues task for a future iteration. Tasks posted after Stop are dropped.
func (r *SingleThreadTaskRunner) PostTask(task Task) {
	if task == nil || r.closed.Load() {
		return
	}

	r.mu.Lock()
	r.queue.Push(task)
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
		// a wakeup is already pending
	}
}

// PostDelayedTask posts task once delay has elapsed.
// Uses time.AfterFunc, the timer goroutine only re-enters through PostTask.
func (r *SingleThreadTaskRunner) PostDelayedTask(task Task, delay time.Duration) {
	if r.closed.Load() {
		return
	}
	if delay <= 0 {
		r.PostTask(task)
		return
	}
	time.AfterFunc(delay, func() {
		r.PostTask(task)
	})
}

// Pending returns the number of queued tasks.
func (r *SingleThreadTaskRunner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Len()
}

// IsClosed returns true if the runner has been stopped
func (r *SingleThreadTaskRunner) IsClosed() bool {
	return r.closed.Load()
}

// Stop stops the runner and waits for the running task, if any, to return.
// Queued tasks are dropped.
func (r *SingleThreadTaskRunner) Stop() {
	r.once.Do(func() {
		r.closed.Store(true)
		r.cancel()
		<-r.stopped

		r.mu.Lock()
		r.queue.Clear()
		r.mu.Unlock()
	})
}

// runLoop is the core of this runner, it occupies a dedicated goroutine
func (r *SingleThreadTaskRunner) runLoop() {
	defer close(r.stopped)

	runCtx := context.WithValue(r.ctx, taskRunnerKey, r)

	for {
		for {
			if r.ctx.Err() != nil {
				return
			}
			r.mu.Lock()
			task, ok := r.queue.Pop()
			r.mu.Unlock()
			if !ok {
				break
			}
			r.invoker.InvokeTask(runCtx, SourceHost, r.Name(), task)
		}

		select {
		case <-r.signal:
		case <-r.ctx.Done():
			return
		}
	}
}

// WaitIdle blocks until all currently queued tasks have completed execution.
// This is implemented by posting a barrier task and waiting for it to execute.
//
// Tasks posted after WaitIdle is called, including tasks posted by the queued
// tasks themselves, are not waited for.
func (r *SingleThreadTaskRunner) WaitIdle(ctx context.Context) error {
	if r.IsClosed() {
		return errors.New("runner is closed")
	}

	done := make(chan struct{})
	r.PostTask(func(context.Context) {
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return errors.New("runner is closed")
	}
}
