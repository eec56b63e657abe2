package interactionmanager

import "github.com/Swind/go-interaction-manager/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the interactionmanager package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// TaskRunner is the interface passes are posted to
type TaskRunner = core.TaskRunner

// SingleThreadTaskRunner ensures all tasks execute on the same dedicated goroutine
type SingleThreadTaskRunner = core.SingleThreadTaskRunner

// ManualTaskRunner runs posted tasks only when its owner ticks it
type ManualTaskRunner = core.ManualTaskRunner

// InteractionManager defers work until no interaction is active
type InteractionManager = core.InteractionManager

// ManagerConfig configures an InteractionManager
type ManagerConfig = core.ManagerConfig

type (
	Handle            = core.Handle
	Event             = core.Event
	Listener          = core.Listener
	SubscriptionToken = core.SubscriptionToken
	CallbackError     = core.CallbackError
	ErrorReporter     = core.ErrorReporter
)

// Transition events
const (
	EventInteractionStart    = core.EventInteractionStart
	EventInteractionComplete = core.EventInteractionComplete
)

// Sentinel errors
var (
	ErrInvalidArgument = core.ErrInvalidArgument
	ErrCallbackFailure = core.ErrCallbackFailure
	ErrManagerClosed   = core.ErrManagerClosed
)

// NewInteractionManager creates a manager with default configuration on host.
func NewInteractionManager(host TaskRunner) *InteractionManager {
	return core.NewInteractionManager(host)
}

// NewInteractionManagerWithConfig creates a manager on host.
func NewInteractionManagerWithConfig(host TaskRunner, config *ManagerConfig) *InteractionManager {
	return core.NewInteractionManagerWithConfig(host, config)
}

// NewSingleThreadTaskRunner creates a new SingleThreadTaskRunner with a dedicated goroutine.
// Use it as the UI thread hosting an InteractionManager.
func NewSingleThreadTaskRunner() *SingleThreadTaskRunner {
	return core.NewSingleThreadTaskRunner()
}

// NewManualTaskRunner creates a runner that executes tasks only when ticked.
func NewManualTaskRunner() *ManualTaskRunner {
	return core.NewManualTaskRunner()
}

// GetCurrentTaskRunner retrieves the current TaskRunner from context
var GetCurrentTaskRunner = core.GetCurrentTaskRunner

// GetCurrentInteractionManager retrieves the manager running the current pass
var GetCurrentInteractionManager = core.GetCurrentInteractionManager
