package core

import (
	"context"
	"time"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// =============================================================================
// TaskRunner: the host scheduling primitive
// =============================================================================

// TaskRunner runs posted tasks once, on a future tick, one at a time.
// The InteractionManager only needs PostTask; it never assumes a task posted
// from inside another task runs inline.
type TaskRunner interface {
	PostTask(task Task)
}

// DelayedTaskRunner is a TaskRunner that can also post after a delay.
type DelayedTaskRunner interface {
	TaskRunner
	PostDelayedTask(task Task, delay time.Duration)
}

// =============================================================================
// Context Helper
// =============================================================================
type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

// GetCurrentTaskRunner returns the runner executing the task that owns ctx,
// or nil outside a runner.
func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}

type managerKeyType struct{}

var managerKey managerKeyType

// GetCurrentInteractionManager returns the manager whose pass is invoking the
// current listener or deferred callback, or nil.
func GetCurrentInteractionManager(ctx context.Context) *InteractionManager {
	if v := ctx.Value(managerKey); v != nil {
		return v.(*InteractionManager)
	}
	return nil
}
