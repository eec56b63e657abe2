package core

import (
	"context"
	"sync"
)

// ManualTaskRunner is a TaskRunner driven by its owner. Nothing runs until
// RunPending or RunUntilIdle is called, which makes tick boundaries explicit:
// tests use it to observe state between ticks, and applications with their
// own frame loop can call RunPending once per frame.
type ManualTaskRunner struct {
	mu    sync.Mutex
	queue *FIFOQueue[Task]
}

func NewManualTaskRunner() *ManualTaskRunner {
	return &ManualTaskRunner{queue: NewFIFOQueue[Task]()}
}

func (r *ManualTaskRunner) PostTask(task Task) {
	if task == nil {
		return
	}
	r.mu.Lock()
	r.queue.Push(task)
	r.mu.Unlock()
}

// Pending returns the number of tasks waiting for a tick.
func (r *ManualTaskRunner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Len()
}

// RunPending runs one tick: the tasks queued when it is called. Tasks they
// post wait for the next tick. Panics propagate to the caller.
func (r *ManualTaskRunner) RunPending(ctx context.Context) int {
	r.mu.Lock()
	batch := r.queue.TakeAll()
	r.mu.Unlock()

	runCtx := context.WithValue(ctx, taskRunnerKey, r)
	for _, task := range batch {
		task(runCtx)
	}
	return len(batch)
}

// RunUntilIdle runs ticks until no task is pending, or maxTicks ticks have
// run when maxTicks > 0. It returns the number of tasks run.
func (r *ManualTaskRunner) RunUntilIdle(ctx context.Context, maxTicks int) int {
	total := 0
	for tick := 0; maxTicks <= 0 || tick < maxTicks; tick++ {
		n := r.RunPending(ctx)
		if n == 0 {
			break
		}
		total += n
	}
	return total
}
