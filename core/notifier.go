package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Event is a transition of the active interaction count.
type Event int

const (
	// EventInteractionStart fires when the active count goes from 0 to 1+.
	EventInteractionStart Event = iota + 1
	// EventInteractionComplete fires when the active count goes from 1+ to 0.
	EventInteractionComplete
)

func (e Event) String() string {
	switch e {
	case EventInteractionStart:
		return "interactionStart"
	case EventInteractionComplete:
		return "interactionComplete"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Valid reports whether e is one of the two defined events.
func (e Event) Valid() bool {
	return e == EventInteractionStart || e == EventInteractionComplete
}

// ParseEvent maps "interactionStart" and "interactionComplete" to events.
func ParseEvent(name string) (Event, error) {
	switch name {
	case "interactionStart":
		return EventInteractionStart, nil
	case "interactionComplete":
		return EventInteractionComplete, nil
	default:
		return 0, fmt.Errorf("unknown event %q: %w", name, ErrInvalidArgument)
	}
}

// Listener observes transition events.
type Listener func(ctx context.Context, event Event)

// SubscriptionToken identifies one Subscribe call. The zero token matches
// no subscription.
type SubscriptionToken struct {
	Event Event
	ID    uuid.UUID
}

func (t SubscriptionToken) String() string {
	return t.Event.String() + "/" + t.ID.String()
}

type subscription struct {
	id       uuid.UUID
	listener Listener
	name     string
}

// TransitionNotifier is an observer list per Event. Listeners are notified in
// subscription order.
type TransitionNotifier struct {
	mu        sync.Mutex
	listeners map[Event][]subscription
	invoker   *GuardedInvoker
}

// NewTransitionNotifier creates a notifier whose listener panics go through invoker.
func NewTransitionNotifier(invoker *GuardedInvoker) *TransitionNotifier {
	if invoker == nil {
		invoker = NewGuardedInvoker(nil)
	}
	return &TransitionNotifier{
		listeners: make(map[Event][]subscription),
		invoker:   invoker,
	}
}

// Subscribe adds l to the observers of event.
func (n *TransitionNotifier) Subscribe(event Event, l Listener) (SubscriptionToken, error) {
	if !event.Valid() {
		return SubscriptionToken{}, fmt.Errorf("subscribe to %v: %w", event, ErrInvalidArgument)
	}
	if l == nil {
		return SubscriptionToken{}, fmt.Errorf("subscribe to %v: nil listener: %w", event, ErrInvalidArgument)
	}

	sub := subscription{id: uuid.New(), listener: l, name: resolveTaskName(l, "")}

	n.mu.Lock()
	n.listeners[event] = append(n.listeners[event], sub)
	n.mu.Unlock()

	return SubscriptionToken{Event: event, ID: sub.id}, nil
}

// Unsubscribe removes the subscription behind token. It reports whether a
// subscription was removed; unsubscribing twice is harmless.
func (n *TransitionNotifier) Unsubscribe(token SubscriptionToken) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs := n.listeners[token.Event]
	for i, sub := range subs {
		if sub.id != token.ID {
			continue
		}
		// copy so an in-flight Emit snapshot is not disturbed
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(n.listeners, token.Event)
		} else {
			n.listeners[token.Event] = next
		}
		return true
	}
	return false
}

// ListenerCount returns the number of observers of event.
func (n *TransitionNotifier) ListenerCount(event Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners[event])
}

// Emit notifies every current observer of event and returns how many failed.
// Listeners added or removed during Emit take effect on the next Emit.
func (n *TransitionNotifier) Emit(ctx context.Context, event Event) int {
	n.mu.Lock()
	snapshot := n.listeners[event]
	n.mu.Unlock()

	failed := 0
	for _, sub := range snapshot {
		l := sub.listener
		if n.invoker.InvokeTask(ctx, SourceListener, sub.name, func(ctx context.Context) { l(ctx, event) }) != nil {
			failed++
		}
	}
	return failed
}
