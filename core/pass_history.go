package core

import (
	"sync"
	"time"
)

const defaultPassHistoryCapacity = 100

// passHistory is a fixed-size ring of the most recent PassRecords.
type passHistory struct {
	mu    sync.Mutex
	items []PassRecord
	head  int
	count int
}

func newPassHistory(capacity int) *passHistory {
	if capacity < 1 {
		capacity = defaultPassHistoryCapacity
	}
	return &passHistory{items: make([]PassRecord, capacity)}
}

func (h *passHistory) Add(record PassRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// Recent returns up to limit records, newest first. limit <= 0 means all.
func (h *passHistory) Recent(limit int) []PassRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]PassRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

func (h *passHistory) Last() (PassRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return PassRecord{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}

// PassRecord captures one commit-and-flush pass.
type PassRecord struct {
	Seq          uint64
	StartedAt    time.Time
	FinishedAt   time.Time
	Duration     time.Duration
	ActiveBefore int
	ActiveAfter  int
	// Transition is the emitted event, or 0 when none fired.
	Transition Event
	Drained    int
	Failed     int
}

// ManagerStats is a point-in-time snapshot of an InteractionManager.
type ManagerStats struct {
	Name              string
	Active            int
	PendingActivate   int
	PendingDeactivate int
	Queued            int
	PassScheduled     bool
	HandlesIssued     uint64
	Passes            uint64
	CallbacksRun      uint64
	CallbackFailures  uint64
	Closed            bool
}
