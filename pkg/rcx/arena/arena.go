// Package arena is a slab allocator handing out generation-checked handles
// instead of pointers. A slot that is freed and reused gets a new
// generation, so stale handles are detected rather than aliasing new data.
package arena

// Handle refers to a slot. The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

type slot[T any] struct {
	val  T
	gen  uint32 // odd while live, even while free
	next int32  // free list link
}

// Arena holds fixed-size records of type T
type Arena[T any] struct {
	slots []slot[T]
	free  int32
	live  int
	peak  int
}

// New creates an arena with room for capacity records before growing.
func New[T any](capacity int) *Arena[T] {
	return &Arena[T]{
		slots: make([]slot[T], 0, capacity),
		free:  -1,
	}
}

// Alloc stores v and returns its handle.
func (a *Arena[T]) Alloc(v T) Handle {
	var idx int32
	if a.free >= 0 {
		idx = a.free
		a.free = a.slots[idx].next
	} else {
		idx = int32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}
	s := &a.slots[idx]
	s.val = v
	s.gen++
	s.next = -1
	a.live++
	a.peak = max(a.peak, a.live)
	return Handle{index: uint32(idx), gen: s.gen}
}

// Get returns the record for h, or false if h is stale.
func (a *Arena[T]) Get(h Handle) (*T, bool) {
	if h.gen == 0 || int(h.index) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[h.index]
	if s.gen != h.gen {
		return nil, false
	}
	return &s.val, true
}

// Free releases h. It returns false if h was already stale.
func (a *Arena[T]) Free(h Handle) bool {
	if _, ok := a.Get(h); !ok {
		return false
	}
	a.release(int32(h.index))
	return true
}

func (a *Arena[T]) release(idx int32) {
	s := &a.slots[idx]
	var zero T
	s.val = zero
	s.gen++
	s.next = a.free
	a.free = idx
	a.live--
}

// Sweep frees every live record for which drop returns true and returns
// how many were freed. Handles to freed records go stale, so holders can
// drop them lazily.
func (a *Arena[T]) Sweep(drop func(*T) bool) int {
	n := 0
	for i := range a.slots {
		s := &a.slots[i]
		if s.gen%2 == 1 && drop(&s.val) {
			a.release(int32(i))
			n++
		}
	}
	return n
}

// Live returns the number of allocated records.
func (a *Arena[T]) Live() int { return a.live }

// Peak returns the highest Live count seen.
func (a *Arena[T]) Peak() int { return a.peak }

// Reset frees everything. Outstanding handles become stale.
func (a *Arena[T]) Reset() {
	a.Sweep(func(*T) bool { return true })
}
