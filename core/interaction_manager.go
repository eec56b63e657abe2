package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type deferredTask struct {
	fn   func(ctx context.Context) error
	name string
}

// InteractionManager defers work until no interaction is in progress.
//
// Callers bracket an interaction (a gesture, an animation) with
// CreateInteractionHandle and ClearInteractionHandle, and queue work with
// RunAfterInteractions. Every mutation is staged and coalesced into a single
// pass posted to the host TaskRunner. A pass commits the staged handles,
// emits EventInteractionStart or EventInteractionComplete when the active
// count crosses zero, and drains the deferred queue when no handle remains
// active.
//
// All methods are safe for concurrent use. Passes run on the host runner,
// one at a time. Listeners and deferred callbacks may call back into the
// manager; such calls are staged for a later pass, never applied inline.
type InteractionManager struct {
	host     TaskRunner
	name     string
	logger   Logger
	metrics  Metrics
	invoker  *GuardedInvoker
	notifier *TransitionNotifier
	history  *passHistory

	mu            sync.Mutex
	registry      *handleRegistry
	queue         *FIFOQueue[deferredTask]
	passScheduled bool
	closed        bool

	passes           atomic.Uint64
	callbacksRun     atomic.Uint64
	callbackFailures atomic.Uint64
}

// NewInteractionManager creates a manager with default configuration whose
// passes run on host.
func NewInteractionManager(host TaskRunner) *InteractionManager {
	return NewInteractionManagerWithConfig(host, DefaultManagerConfig())
}

// NewInteractionManagerWithConfig creates a manager whose passes run on host.
// It panics if host is nil.
func NewInteractionManagerWithConfig(host TaskRunner, config *ManagerConfig) *InteractionManager {
	if host == nil {
		panic("core: NewInteractionManager requires a host TaskRunner")
	}
	cfg := config.withDefaults()
	invoker := NewGuardedInvoker(cfg.ErrorReporter)

	return &InteractionManager{
		host:     host,
		name:     cfg.Name,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		invoker:  invoker,
		notifier: NewTransitionNotifier(invoker),
		history:  newPassHistory(cfg.HistoryCapacity),
		registry: newHandleRegistry(),
		queue:    NewFIFOQueue[deferredTask](),
	}
}

// Name returns the configured manager name.
func (m *InteractionManager) Name() string {
	return m.name
}

// =============================================================================
// Public contract
// =============================================================================

// CreateInteractionHandle begins an interaction. The handle becomes active on
// the next pass. After Shutdown the handle is still issued but never committed.
func (m *InteractionManager) CreateInteractionHandle() Handle {
	m.mu.Lock()
	h := m.registry.Acquire()
	post := !m.closed && m.armPassLocked()
	m.mu.Unlock()

	m.postPass(post)
	return h
}

// ClearInteractionHandle ends the interaction identified by h. Clearing a
// handle whose activation is still pending cancels it.
func (m *InteractionManager) ClearInteractionHandle(h Handle) error {
	if h.IsZero() {
		return fmt.Errorf("clear interaction handle %d: %w", uint64(h), ErrInvalidArgument)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.registry.Release(h)
	post := m.armPassLocked()
	m.mu.Unlock()

	m.postPass(post)
	return nil
}

// RunAfterInteractions queues task to run once no interaction is active.
// Tasks run in submission order on the host runner. A panicking task is
// reported to the ErrorReporter and does not affect the others.
func (m *InteractionManager) RunAfterInteractions(task Task) error {
	if task == nil {
		return fmt.Errorf("run after interactions: nil task: %w", ErrInvalidArgument)
	}
	return m.enqueue(deferredTask{
		name: resolveTaskName(task, ""),
		fn: func(ctx context.Context) error {
			task(ctx)
			return nil
		},
	})
}

// RunAfterInteractionsE is RunAfterInteractions for callbacks that report
// failure by returning an error.
func (m *InteractionManager) RunAfterInteractionsE(fn func(ctx context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("run after interactions: nil callback: %w", ErrInvalidArgument)
	}
	return m.enqueue(deferredTask{name: resolveTaskName(fn, ""), fn: fn})
}

func (m *InteractionManager) enqueue(item deferredTask) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.queue.Push(item)
	depth := m.queue.Len()
	post := m.armPassLocked()
	m.mu.Unlock()

	m.metrics.RecordQueueDepth(m.name, depth)
	m.postPass(post)
	return nil
}

// Subscribe registers l for event. Listeners run on the host runner during
// the pass that observes the transition, before deferred callbacks drain.
func (m *InteractionManager) Subscribe(event Event, l Listener) (SubscriptionToken, error) {
	return m.notifier.Subscribe(event, l)
}

// SubscribeName is Subscribe keyed by "interactionStart" or "interactionComplete".
func (m *InteractionManager) SubscribeName(name string, l Listener) (SubscriptionToken, error) {
	event, err := ParseEvent(name)
	if err != nil {
		return SubscriptionToken{}, err
	}
	return m.notifier.Subscribe(event, l)
}

// Unsubscribe removes the subscription behind token.
func (m *InteractionManager) Unsubscribe(token SubscriptionToken) bool {
	return m.notifier.Unsubscribe(token)
}

// ListenerCount returns the number of listeners subscribed to event.
func (m *InteractionManager) ListenerCount(event Event) int {
	return m.notifier.ListenerCount(event)
}

// WaitForIdle blocks until every callback queued before the call has run,
// which implies a pass observed zero active interactions. It must not be
// called from the host runner goroutine.
func (m *InteractionManager) WaitForIdle(ctx context.Context) error {
	done := make(chan struct{})
	if err := m.RunAfterInteractions(func(context.Context) { close(done) }); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// Update scheduling and the commit-and-flush pass
// =============================================================================

// armPassLocked sets the scheduled flag and reports whether the caller must
// post a pass. Callers post after releasing mu.
func (m *InteractionManager) armPassLocked() bool {
	if m.passScheduled {
		return false
	}
	m.passScheduled = true
	return true
}

func (m *InteractionManager) postPass(post bool) {
	if post {
		m.host.PostTask(m.processUpdate)
	}
}

// processUpdate is the pass. Commit, flag reset and the drain snapshot are
// one critical section; listeners and callbacks run outside it, so anything
// they stage lands in the next pass.
func (m *InteractionManager) processUpdate(ctx context.Context) {
	m.mu.Lock()
	if !m.passScheduled || m.closed {
		m.mu.Unlock()
		return
	}
	m.passScheduled = false

	startedAt := time.Now()
	before, after := m.registry.Commit()
	var batch []deferredTask
	if after == 0 {
		batch = m.queue.TakeAll()
	}
	m.mu.Unlock()

	seq := m.passes.Add(1)
	passCtx := context.WithValue(ctx, managerKey, m)

	var transition Event
	switch {
	case before > 0 && after == 0:
		transition = EventInteractionComplete
	case before == 0 && after > 0:
		transition = EventInteractionStart
	}

	m.metrics.RecordActiveInteractions(m.name, after)
	if transition != 0 {
		m.logger.Debug("interaction transition",
			F("manager", m.name), F("event", transition.String()),
			F("before", before), F("after", after))
		m.metrics.RecordTransition(m.name, transition)
		m.notifier.Emit(passCtx, transition)
	}

	failed := m.drain(passCtx, batch)

	m.mu.Lock()
	depth := m.queue.Len()
	m.mu.Unlock()

	finishedAt := time.Now()
	record := PassRecord{
		Seq:          seq,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
		Duration:     finishedAt.Sub(startedAt),
		ActiveBefore: before,
		ActiveAfter:  after,
		Transition:   transition,
		Drained:      len(batch),
		Failed:       failed,
	}
	m.history.Add(record)
	m.metrics.RecordQueueDepth(m.name, depth)
	m.metrics.RecordPass(m.name, record.Duration)
}

func (m *InteractionManager) drain(ctx context.Context, batch []deferredTask) int {
	if len(batch) == 0 {
		return 0
	}

	failed := 0
	for i := range batch {
		item := batch[i]
		batch[i] = deferredTask{}

		start := time.Now()
		cbErr := m.invoker.Invoke(ctx, SourceDeferred, item.name, item.fn)
		m.metrics.RecordCallback(m.name, time.Since(start), cbErr != nil)
		m.callbacksRun.Add(1)
		if cbErr != nil {
			failed++
			m.callbackFailures.Add(1)
		}
	}

	m.logger.Debug("drained deferred callbacks",
		F("manager", m.name), F("count", len(batch)), F("failed", failed))
	return failed
}

// =============================================================================
// Lifecycle and observability
// =============================================================================

// Shutdown stops the manager: queued callbacks are dropped, an armed pass
// becomes a no-op, and later mutations return ErrManagerClosed.
func (m *InteractionManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.queue.Clear()
	m.logger.Debug("interaction manager shut down", F("manager", m.name))
}

// IsClosed returns true if the manager has been shut down.
func (m *InteractionManager) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// IsActive reports whether h is committed as active.
func (m *InteractionManager) IsActive(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.IsActive(h)
}

// Stats returns a snapshot of the manager state.
func (m *InteractionManager) Stats() ManagerStats {
	m.mu.Lock()
	stats := ManagerStats{
		Name:              m.name,
		Active:            m.registry.ActiveCount(),
		PendingActivate:   m.registry.pendingActivate.Len(),
		PendingDeactivate: m.registry.pendingDeactivate.Len(),
		Queued:            m.queue.Len(),
		PassScheduled:     m.passScheduled,
		HandlesIssued:     m.registry.Issued(),
		Closed:            m.closed,
	}
	m.mu.Unlock()

	stats.Passes = m.passes.Load()
	stats.CallbacksRun = m.callbacksRun.Load()
	stats.CallbackFailures = m.callbackFailures.Load()
	return stats
}

// RecentPasses returns up to limit pass records, newest first.
func (m *InteractionManager) RecentPasses(limit int) []PassRecord {
	return m.history.Recent(limit)
}

// LastPass returns the most recent pass record.
func (m *InteractionManager) LastPass() (PassRecord, bool) {
	return m.history.Last()
}
