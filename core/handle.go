package core

import "strconv"

// Handle identifies one interaction. Handles are issued from 1 upward and
// never reused; the zero Handle is invalid.
type Handle uint64

// IsZero reports whether h is the invalid zero handle.
func (h Handle) IsZero() bool { return h == 0 }

func (h Handle) String() string {
	return "interaction#" + strconv.FormatUint(uint64(h), 10)
}

// handleSet is an insertion-ordered set of handles.
type handleSet struct {
	order []Handle
	index map[Handle]struct{}
}

func newHandleSet() handleSet {
	return handleSet{index: make(map[Handle]struct{})}
}

func (s *handleSet) Add(h Handle) {
	if _, ok := s.index[h]; ok {
		return
	}
	s.index[h] = struct{}{}
	s.order = append(s.order, h)
}

func (s *handleSet) Remove(h Handle) bool {
	if _, ok := s.index[h]; !ok {
		return false
	}
	delete(s.index, h)
	for i, v := range s.order {
		if v == h {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *handleSet) Contains(h Handle) bool {
	_, ok := s.index[h]
	return ok
}

func (s *handleSet) Len() int { return len(s.order) }

// Handles returns the members in insertion order. The slice is owned by the set.
func (s *handleSet) Handles() []Handle { return s.order }

func (s *handleSet) Clear() {
	s.order = nil
	clear(s.index)
}

// handleRegistry owns the handle counter, the committed active set and the
// two staging sets. It is not synchronized; InteractionManager guards it.
type handleRegistry struct {
	next              Handle
	active            map[Handle]struct{}
	pendingActivate   handleSet
	pendingDeactivate handleSet
}

func newHandleRegistry() *handleRegistry {
	return &handleRegistry{
		active:            make(map[Handle]struct{}),
		pendingActivate:   newHandleSet(),
		pendingDeactivate: newHandleSet(),
	}
}

// Acquire issues the next handle and stages its activation.
func (r *handleRegistry) Acquire() Handle {
	r.next++
	h := r.next
	r.pendingActivate.Add(h)
	return h
}

// Release stages the deactivation of h, cancelling a still-pending activation.
func (r *handleRegistry) Release(h Handle) {
	r.pendingActivate.Remove(h)
	r.pendingDeactivate.Add(h)
}

// Commit applies every staged activation, then every staged deactivation,
// clears staging and returns the active count before and after.
func (r *handleRegistry) Commit() (before, after int) {
	before = len(r.active)
	for _, h := range r.pendingActivate.Handles() {
		r.active[h] = struct{}{}
	}
	for _, h := range r.pendingDeactivate.Handles() {
		delete(r.active, h)
	}
	after = len(r.active)

	r.pendingActivate.Clear()
	r.pendingDeactivate.Clear()
	return before, after
}

func (r *handleRegistry) IsActive(h Handle) bool {
	_, ok := r.active[h]
	return ok
}

func (r *handleRegistry) ActiveCount() int { return len(r.active) }

// Issued returns how many handles have been handed out.
func (r *handleRegistry) Issued() uint64 { return uint64(r.next) }
