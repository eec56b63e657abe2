package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// recordingReporter collects reported errors
type recordingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingReporter) ReportError(ctx context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// eventRecorder subscribes to both events and records them in order
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (e *eventRecorder) listen(ctx context.Context, event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *eventRecorder) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Event(nil), e.events...)
}

func newTestManager(t *testing.T) (*InteractionManager, *ManualTaskRunner, *eventRecorder, *recordingReporter) {
	t.Helper()
	host := NewManualTaskRunner()
	reporter := &recordingReporter{}
	m := NewInteractionManagerWithConfig(host, &ManagerConfig{
		Name:          t.Name(),
		ErrorReporter: reporter,
	})
	rec := &eventRecorder{}
	for _, ev := range []Event{EventInteractionStart, EventInteractionComplete} {
		if _, err := m.Subscribe(ev, rec.listen); err != nil {
			t.Fatalf("Subscribe(%v) failed: %v", ev, err)
		}
	}
	return m, host, rec, reporter
}

func tick(host *ManualTaskRunner) int {
	return host.RunPending(context.Background())
}

// TestInteractionManager_AcquireReleaseSameTick_NoTransition verifies net no-op bursts
// Given: N handles created and cleared before any pass runs
// When: The next pass runs
// Then: No transition fires and nothing is active
func TestInteractionManager_AcquireReleaseSameTick_NoTransition(t *testing.T) {
	for _, n := range []int{0, 1, 2, 5, 32} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			m, host, rec, _ := newTestManager(t)

			handles := make([]Handle, n)
			for i := range handles {
				handles[i] = m.CreateInteractionHandle()
			}
			for _, h := range handles {
				if err := m.ClearInteractionHandle(h); err != nil {
					t.Fatalf("ClearInteractionHandle(%v) = %v", h, err)
				}
			}

			host.RunUntilIdle(context.Background(), 0)

			if got := rec.Events(); len(got) != 0 {
				t.Errorf("events = %v, want none", got)
			}
			if s := m.Stats(); s.Active != 0 || s.PendingActivate != 0 || s.PendingDeactivate != 0 {
				t.Errorf("stats = %+v, want empty active and staging", s)
			}
		})
	}
}

func TestInteractionManager_HandlesAreMonotonic(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	prev := Handle(0)
	for i := 0; i < 10; i++ {
		h := m.CreateInteractionHandle()
		if h != prev+1 {
			t.Fatalf("handle %d = %v, want %v", i, h, prev+1)
		}
		prev = h
	}
	if got := m.Stats().HandlesIssued; got != 10 {
		t.Errorf("HandlesIssued = %d, want 10", got)
	}
}

// TestInteractionManager_StartEventIsDeferred verifies the start event waits for a pass
func TestInteractionManager_StartEventIsDeferred(t *testing.T) {
	m, host, rec, _ := newTestManager(t)

	h := m.CreateInteractionHandle()
	if got := rec.Events(); len(got) != 0 {
		t.Fatalf("events before pass = %v, want none", got)
	}
	if m.IsActive(h) {
		t.Fatal("handle active before pass")
	}

	tick(host)

	got := rec.Events()
	if len(got) != 1 || got[0] != EventInteractionStart {
		t.Fatalf("events = %v, want [interactionStart]", got)
	}
	if !m.IsActive(h) {
		t.Error("handle not active after pass")
	}

	// a second handle while busy does not fire again
	m.CreateInteractionHandle()
	tick(host)
	if got := rec.Events(); len(got) != 1 {
		t.Errorf("events = %v, want exactly one start", got)
	}
}

func TestInteractionManager_CompleteOnLastRelease(t *testing.T) {
	m, host, rec, _ := newTestManager(t)

	h1 := m.CreateInteractionHandle()
	h2 := m.CreateInteractionHandle()
	tick(host)

	if err := m.ClearInteractionHandle(h1); err != nil {
		t.Fatal(err)
	}
	tick(host)
	if got := rec.Events(); len(got) != 1 {
		t.Fatalf("events after first release = %v, want only start", got)
	}

	if err := m.ClearInteractionHandle(h2); err != nil {
		t.Fatal(err)
	}
	tick(host)

	want := []Event{EventInteractionStart, EventInteractionComplete}
	got := rec.Events()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

// TestInteractionManager_DeferredWaitsForRelease verifies gating on active interactions
// Given: An active interaction and a queued callback
// When: Passes run while active, then the handle is released
// Then: The callback runs exactly once, on the pass after the release
func TestInteractionManager_DeferredWaitsForRelease(t *testing.T) {
	m, host, _, _ := newTestManager(t)

	h := m.CreateInteractionHandle()
	runs := 0
	if err := m.RunAfterInteractions(func(ctx context.Context) { runs++ }); err != nil {
		t.Fatal(err)
	}

	host.RunUntilIdle(context.Background(), 0)
	if runs != 0 {
		t.Fatalf("callback ran %d times while interaction active", runs)
	}
	if q := m.Stats().Queued; q != 1 {
		t.Fatalf("Queued = %d, want 1", q)
	}

	if err := m.ClearInteractionHandle(h); err != nil {
		t.Fatal(err)
	}
	if runs != 0 {
		t.Fatal("callback ran synchronously on release")
	}
	tick(host)
	if runs != 1 {
		t.Fatalf("callback ran %d times, want 1", runs)
	}

	host.RunUntilIdle(context.Background(), 0)
	if runs != 1 {
		t.Errorf("callback ran %d times after idle, want 1", runs)
	}
}

func TestInteractionManager_DeferredWhileIdleRunsNextPass(t *testing.T) {
	m, host, rec, _ := newTestManager(t)

	ran := false
	if err := m.RunAfterInteractions(func(ctx context.Context) { ran = true }); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Fatal("callback ran synchronously")
	}

	tick(host)
	if !ran {
		t.Fatal("callback did not run on the next pass")
	}
	if got := rec.Events(); len(got) != 0 {
		t.Errorf("events = %v, want none for an idle drain", got)
	}
}

func TestInteractionManager_FIFOSingleDrain(t *testing.T) {
	m, host, _, _ := newTestManager(t)

	var order []int
	for i := 0; i < 8; i++ {
		id := i
		if err := m.RunAfterInteractions(func(ctx context.Context) { order = append(order, id) }); err != nil {
			t.Fatal(err)
		}
	}

	if posted := host.Pending(); posted != 1 {
		t.Fatalf("posted passes = %d, want 1", posted)
	}
	tick(host)

	if len(order) != 8 {
		t.Fatalf("ran %d callbacks, want 8", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Errorf("order[%d] = %d, want %d", i, v, i)
		}
	}
	if last, ok := m.LastPass(); !ok || last.Drained != 8 {
		t.Errorf("LastPass = %+v, want Drained=8", last)
	}
}

// TestInteractionManager_CoalescesMutations verifies one pass per tick
func TestInteractionManager_CoalescesMutations(t *testing.T) {
	m, host, _, _ := newTestManager(t)

	h := m.CreateInteractionHandle()
	m.CreateInteractionHandle()
	_ = m.ClearInteractionHandle(h)
	_ = m.RunAfterInteractions(func(context.Context) {})

	if posted := host.Pending(); posted != 1 {
		t.Fatalf("posted passes = %d, want 1", posted)
	}
	if !m.Stats().PassScheduled {
		t.Error("PassScheduled = false, want true")
	}

	tick(host)
	if m.Stats().PassScheduled {
		t.Error("PassScheduled still set after pass")
	}

	m.CreateInteractionHandle()
	if posted := host.Pending(); posted != 1 {
		t.Errorf("posted passes after new mutation = %d, want 1", posted)
	}
}

func TestInteractionManager_PanickingCallbackIsolated(t *testing.T) {
	m, host, _, reporter := newTestManager(t)

	var ran []string
	_ = m.RunAfterInteractions(func(context.Context) { ran = append(ran, "first") })
	_ = m.RunAfterInteractions(func(context.Context) { panic("boom") })
	_ = m.RunAfterInteractions(func(context.Context) { ran = append(ran, "third") })

	tick(host)

	if len(ran) != 2 || ran[0] != "first" || ran[1] != "third" {
		t.Fatalf("ran = %v, want [first third]", ran)
	}

	errs := reporter.Errors()
	if len(errs) != 1 {
		t.Fatalf("reported %d errors, want 1", len(errs))
	}
	if !errors.Is(errs[0], ErrCallbackFailure) {
		t.Errorf("reported %v, want ErrCallbackFailure", errs[0])
	}
	var cbErr *CallbackError
	if !errors.As(errs[0], &cbErr) || cbErr.Panic != "boom" || cbErr.Source != SourceDeferred {
		t.Errorf("reported %#v, want deferred panic boom", errs[0])
	}

	s := m.Stats()
	if s.Queued != 0 || s.CallbacksRun != 3 || s.CallbackFailures != 1 {
		t.Errorf("stats = %+v, want Queued=0 CallbacksRun=3 CallbackFailures=1", s)
	}
}

func TestInteractionManager_ErrorReturningCallback(t *testing.T) {
	m, host, _, reporter := newTestManager(t)

	sentinel := errors.New("sync failed")
	if err := m.RunAfterInteractionsE(func(context.Context) error { return sentinel }); err != nil {
		t.Fatal(err)
	}
	tick(host)

	errs := reporter.Errors()
	if len(errs) != 1 || !errors.Is(errs[0], sentinel) || !errors.Is(errs[0], ErrCallbackFailure) {
		t.Fatalf("reported %v, want wrapped %v", errs, sentinel)
	}
}

func TestInteractionManager_ClearZeroHandle(t *testing.T) {
	m, host, _, _ := newTestManager(t)

	var unset Handle
	for _, h := range []Handle{0, unset} {
		err := m.ClearInteractionHandle(h)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ClearInteractionHandle(%d) = %v, want ErrInvalidArgument", uint64(h), err)
		}
	}

	if host.Pending() != 0 {
		t.Error("invalid clear requested a pass")
	}
	if s := m.Stats(); s.PendingDeactivate != 0 || s.PassScheduled {
		t.Errorf("stats = %+v, want no mutation", s)
	}
}

func TestInteractionManager_NilCallbacks(t *testing.T) {
	m, host, _, _ := newTestManager(t)
	_ = m.RunAfterInteractions(func(context.Context) {})
	before := m.Stats().Queued

	if err := m.RunAfterInteractions(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("RunAfterInteractions(nil) = %v, want ErrInvalidArgument", err)
	}
	var nilTask Task
	if err := m.RunAfterInteractions(nilTask); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("RunAfterInteractions(nil Task) = %v, want ErrInvalidArgument", err)
	}
	if err := m.RunAfterInteractionsE(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("RunAfterInteractionsE(nil) = %v, want ErrInvalidArgument", err)
	}

	if got := m.Stats().Queued; got != before {
		t.Errorf("Queued = %d, want %d", got, before)
	}
	if host.Pending() != 1 {
		t.Errorf("posted passes = %d, want 1", host.Pending())
	}
}

// TestInteractionManager_ReentrantDeferredRunsNextPass pins the re-entrancy policy
// Given: A callback that queues another callback while draining, k levels deep
// When: Passes run one tick at a time
// Then: Each nested callback runs on its own later pass, never inside the current drain
func TestInteractionManager_ReentrantDeferredRunsNextPass(t *testing.T) {
	for depth := 1; depth <= 5; depth++ {
		t.Run(fmt.Sprintf("depth=%d", depth), func(t *testing.T) {
			m, host, _, _ := newTestManager(t)

			var ranAtPass []uint64
			var nest func(level int) Task
			nest = func(level int) Task {
				return func(ctx context.Context) {
					ranAtPass = append(ranAtPass, m.Stats().Passes)
					if level < depth {
						if err := GetCurrentInteractionManager(ctx).RunAfterInteractions(nest(level + 1)); err != nil {
							t.Errorf("nested RunAfterInteractions: %v", err)
						}
					}
				}
			}
			_ = m.RunAfterInteractions(nest(1))

			for pass := 1; pass <= depth; pass++ {
				if n := tick(host); n != 1 {
					t.Fatalf("tick %d ran %d tasks, want 1", pass, n)
				}
				if len(ranAtPass) != pass {
					t.Fatalf("after tick %d ran %d callbacks, want %d", pass, len(ranAtPass), pass)
				}
			}
			if host.Pending() != 0 {
				t.Errorf("pending = %d after last nested callback, want 0", host.Pending())
			}
			for i, p := range ranAtPass {
				if p != uint64(i+1) {
					t.Errorf("callback %d ran during pass %d, want %d", i+1, p, i+1)
				}
			}
		})
	}
}

func TestInteractionManager_ListenerStartsInteractionDuringComplete(t *testing.T) {
	m, host, rec, _ := newTestManager(t)

	h := m.CreateInteractionHandle()
	tick(host)

	var restarted Handle
	token, err := m.Subscribe(EventInteractionComplete, func(ctx context.Context, _ Event) {
		restarted = GetCurrentInteractionManager(ctx).CreateInteractionHandle()
	})
	if err != nil {
		t.Fatal(err)
	}

	ran := false
	_ = m.RunAfterInteractions(func(context.Context) { ran = true })
	_ = m.ClearInteractionHandle(h)
	tick(host)

	// the drain was decided by this pass' commit, the new handle lands next pass
	if !ran {
		t.Fatal("deferred callback did not run on the completing pass")
	}
	if restarted.IsZero() || m.IsActive(restarted) {
		t.Fatalf("restarted handle %v should be staged, not active", restarted)
	}

	m.Unsubscribe(token)
	tick(host)
	want := []Event{EventInteractionStart, EventInteractionComplete, EventInteractionStart}
	got := rec.Events()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestInteractionManager_ListenerPanicReported(t *testing.T) {
	m, host, rec, reporter := newTestManager(t)
	if _, err := m.Subscribe(EventInteractionStart, func(context.Context, Event) { panic("listener") }); err != nil {
		t.Fatal(err)
	}

	m.CreateInteractionHandle()
	tick(host)

	if len(rec.Events()) != 1 {
		t.Error("other listeners were skipped after a panic")
	}
	errs := reporter.Errors()
	var cbErr *CallbackError
	if len(errs) != 1 || !errors.As(errs[0], &cbErr) || cbErr.Source != SourceListener {
		t.Fatalf("reported %v, want one listener failure", errs)
	}
}

func TestInteractionManager_SubscribeValidation(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	if _, err := m.Subscribe(Event(0), func(context.Context, Event) {}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Subscribe(0) = %v, want ErrInvalidArgument", err)
	}
	if _, err := m.Subscribe(EventInteractionStart, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Subscribe(nil) = %v, want ErrInvalidArgument", err)
	}
	if _, err := m.SubscribeName("interactionPaused", func(context.Context, Event) {}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SubscribeName(unknown) = %v, want ErrInvalidArgument", err)
	}
	token, err := m.SubscribeName("interactionComplete", func(context.Context, Event) {})
	if err != nil || token.Event != EventInteractionComplete {
		t.Fatalf("SubscribeName = %v, %v", token, err)
	}
	if !m.Unsubscribe(token) {
		t.Error("Unsubscribe returned false for a live token")
	}
	if m.Unsubscribe(token) {
		t.Error("second Unsubscribe returned true")
	}
	if m.Unsubscribe(SubscriptionToken{}) {
		t.Error("Unsubscribe(zero token) returned true")
	}
}

// TestInteractionManager_StalePassIsNoop verifies a pass armed twice runs once
func TestInteractionManager_StalePassIsNoop(t *testing.T) {
	m, host, _, _ := newTestManager(t)

	runs := 0
	_ = m.RunAfterInteractions(func(context.Context) { runs++ })
	tick(host)

	m.processUpdate(context.Background())
	m.processUpdate(context.Background())

	if runs != 1 {
		t.Errorf("callback ran %d times, want 1", runs)
	}
	if got := m.Stats().Passes; got != 1 {
		t.Errorf("Passes = %d, want 1", got)
	}
}

func TestInteractionManager_Shutdown(t *testing.T) {
	m, host, _, _ := newTestManager(t)

	h := m.CreateInteractionHandle()
	ran := false
	_ = m.RunAfterInteractions(func(context.Context) { ran = true })
	m.Shutdown()
	m.Shutdown()

	host.RunUntilIdle(context.Background(), 0)
	if ran {
		t.Error("queued callback ran after Shutdown")
	}
	if !m.IsClosed() {
		t.Error("IsClosed = false after Shutdown")
	}
	if err := m.ClearInteractionHandle(h); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("ClearInteractionHandle after Shutdown = %v, want ErrManagerClosed", err)
	}
	if err := m.RunAfterInteractions(func(context.Context) {}); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("RunAfterInteractions after Shutdown = %v, want ErrManagerClosed", err)
	}
}

func TestInteractionManager_PassHistory(t *testing.T) {
	host := NewManualTaskRunner()
	m := NewInteractionManagerWithConfig(host, &ManagerConfig{HistoryCapacity: 2, ErrorReporter: &recordingReporter{}})

	h := m.CreateInteractionHandle()
	tick(host)
	_ = m.ClearInteractionHandle(h)
	_ = m.RunAfterInteractions(func(context.Context) { panic("x") })
	tick(host)
	_ = m.RunAfterInteractions(func(context.Context) {})
	tick(host)

	recent := m.RecentPasses(0)
	if len(recent) != 2 {
		t.Fatalf("RecentPasses = %d records, want 2", len(recent))
	}
	if recent[0].Seq != 3 || recent[1].Seq != 2 {
		t.Errorf("seqs = %d,%d, want 3,2", recent[0].Seq, recent[1].Seq)
	}
	if r := recent[1]; r.Transition != EventInteractionComplete || r.ActiveBefore != 1 || r.ActiveAfter != 0 || r.Drained != 1 || r.Failed != 1 {
		t.Errorf("completing pass = %+v", r)
	}
	if r := recent[0]; r.Transition != 0 || r.Drained != 1 || r.Failed != 0 {
		t.Errorf("idle pass = %+v", r)
	}
}

func TestInteractionManager_WaitForIdle(t *testing.T) {
	host := NewSingleThreadTaskRunner()
	defer host.Stop()
	m := NewInteractionManager(host)

	h := m.CreateInteractionHandle()
	var ran bool
	_ = m.RunAfterInteractions(func(context.Context) { ran = true })

	host.PostTask(func(context.Context) { _ = m.ClearInteractionHandle(h) })

	if err := m.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle = %v", err)
	}
	if !ran {
		t.Error("earlier callback had not run when WaitForIdle returned")
	}
}

func TestNewInteractionManager_NilHostPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil host")
		}
	}()
	NewInteractionManager(nil)
}
