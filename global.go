package interactionmanager

import (
	"context"
	"sync"

	"github.com/Swind/go-interaction-manager/core"
)

// =============================================================================
// Global Interaction Manager Helper (Singleton)
// =============================================================================

var (
	globalManager *core.InteractionManager
	globalRunner  *core.SingleThreadTaskRunner
	globalMu      sync.Mutex
)

// InitGlobalManager creates the process-wide manager hosted on a dedicated
// "main" SingleThreadTaskRunner. A nil config uses the defaults. Calling it
// again before ShutdownGlobalManager is a no-op.
func InitGlobalManager(config *ManagerConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager != nil {
		return // Already initialized
	}

	var reporter core.ErrorReporter
	if config != nil {
		reporter = config.ErrorReporter
	}
	globalRunner = core.NewSingleThreadTaskRunnerWithReporter(reporter)
	globalRunner.SetName("main")
	globalManager = core.NewInteractionManagerWithConfig(globalRunner, config)
}

// GetGlobalManager returns the global manager instance.
// It panics if InitGlobalManager has not been called.
func GetGlobalManager() *InteractionManager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("GlobalManager not initialized. Call InitGlobalManager() first.")
	}
	return globalManager
}

// GetGlobalRunner returns the runner hosting the global manager.
// It panics if InitGlobalManager has not been called.
func GetGlobalRunner() *SingleThreadTaskRunner {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRunner == nil {
		panic("GlobalManager not initialized. Call InitGlobalManager() first.")
	}
	return globalRunner
}

// ShutdownGlobalManager shuts down the global manager and stops its runner.
// Queued deferred callbacks are dropped.
func ShutdownGlobalManager() {
	globalMu.Lock()
	manager, runner := globalManager, globalRunner
	globalManager = nil
	globalRunner = nil
	globalMu.Unlock()

	// Stop waits for the running task, so globalMu is not held across it
	if manager != nil {
		manager.Shutdown()
		runner.Stop()
	}
}

// CreateInteractionHandle begins an interaction on the global manager.
func CreateInteractionHandle() Handle {
	return GetGlobalManager().CreateInteractionHandle()
}

// ClearInteractionHandle ends an interaction on the global manager.
func ClearInteractionHandle(h Handle) error {
	return GetGlobalManager().ClearInteractionHandle(h)
}

// RunAfterInteractions queues task on the global manager.
func RunAfterInteractions(task Task) error {
	return GetGlobalManager().RunAfterInteractions(task)
}

// Subscribe registers l for event on the global manager.
func Subscribe(event Event, l Listener) (SubscriptionToken, error) {
	return GetGlobalManager().Subscribe(event, l)
}

// Unsubscribe removes a subscription from the global manager.
func Unsubscribe(token SubscriptionToken) bool {
	return GetGlobalManager().Unsubscribe(token)
}

// WaitForIdle blocks until the global manager has run every callback queued
// before the call.
func WaitForIdle(ctx context.Context) error {
	return GetGlobalManager().WaitForIdle(ctx)
}
