package core

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// FIFOQueue is an unsynchronized first-in first-out buffer. Owners guard it
// with their own mutex.
type FIFOQueue[T any] struct {
	items []T
}

func NewFIFOQueue[T any]() *FIFOQueue[T] {
	return &FIFOQueue[T]{
		items: make([]T, 0, defaultQueueCap),
	}
}

func (q *FIFOQueue[T]) Push(item T) {
	q.items = append(q.items, item)
}

func (q *FIFOQueue[T]) Pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.items[0] = zero
	q.items = q.items[1:]
	q.maybeCompact()

	return item, true
}

// TakeAll removes and returns every queued item in insertion order.
func (q *FIFOQueue[T]) TakeAll() []T {
	if len(q.items) == 0 {
		return nil
	}
	batch := q.items
	q.items = make([]T, 0, defaultQueueCap)
	return batch
}

func (q *FIFOQueue[T]) maybeCompact() {
	n := len(q.items)
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]T, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]T, n, newCap)
	copy(newSlice, q.items)
	q.items = newSlice
}

func (q *FIFOQueue[T]) Len() int {
	return len(q.items)
}

func (q *FIFOQueue[T]) IsEmpty() bool {
	return len(q.items) == 0
}

// Clear removes all items and releases references
func (q *FIFOQueue[T]) Clear() {
	q.items = make([]T, 0, defaultQueueCap)
}
