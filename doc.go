// Package interactionmanager defers non-urgent work until user interactions
// such as gestures and animations have finished.
//
// Code that starts an interaction takes a handle and clears it when done.
// Work that would cause jank during the interaction is queued with
// RunAfterInteractions and runs, in submission order, on the first pass that
// observes no active interaction. Observers can subscribe to the
// interactionStart and interactionComplete transitions.
//
// # Quick Start
//
// Initialize the global manager at application startup:
//
//	interactionmanager.InitGlobalManager(nil)
//	defer interactionmanager.ShutdownGlobalManager()
//
// Bracket an interaction and defer work behind it:
//
//	h := interactionmanager.CreateInteractionHandle()
//	interactionmanager.RunAfterInteractions(func(ctx context.Context) {
//		// runs after h is cleared
//	})
//	// ... animation ends
//	interactionmanager.ClearInteractionHandle(h)
//
// # Key Concepts
//
// Handle: identifies one interaction. Handle creation and clearing are staged
// and take effect on the next pass, so a handle created and cleared within the
// same tick never produces a transition.
//
// Pass: the commit-and-flush step posted to the host TaskRunner. Any number of
// mutations within a tick coalesce into one pass. A pass commits the staged
// handles, notifies listeners when the active count crosses zero, then drains
// the deferred queue if nothing is active.
//
// Host: the TaskRunner passes run on. Use a SingleThreadTaskRunner as a UI
// thread, or a ManualTaskRunner driven by your own frame loop.
//
// # Error Handling
//
// A panicking deferred callback or listener is reported to the configured
// ErrorReporter and never stops the rest of the pass.
//
// # Example
//
//	import (
//		"context"
//		interactionmanager "github.com/Swind/go-interaction-manager"
//		"github.com/Swind/go-interaction-manager/core"
//	)
//
//	func main() {
//		host := interactionmanager.NewSingleThreadTaskRunner()
//		defer host.Stop()
//
//		m := interactionmanager.NewInteractionManager(host)
//		m.Subscribe(core.EventInteractionComplete, func(ctx context.Context, e core.Event) {
//			println("interaction finished")
//		})
//
//		h := m.CreateInteractionHandle()
//		m.RunAfterInteractions(func(ctx context.Context) {
//			println("deferred work")
//		})
//		m.ClearInteractionHandle(h)
//		m.WaitForIdle(context.Background())
//	}
package interactionmanager
