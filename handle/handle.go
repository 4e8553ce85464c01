// Package handle implements a small generational handle table. Objects owned by
// a context (GPU buffers, shader programs) live in a Table and callers hold an
// opaque ID instead of a pointer, so a stale ID is detected rather than
// dereferenced.
package handle

import (
	"fmt"
	"sync"
)

// ID identifies a slot in a Table. The low 32 bits hold the slot index and
// the high 32 bits hold the generation the slot had when the ID was issued.
// The zero ID is never issued.
type ID uint64

// Nil is the zero ID.
const Nil ID = 0

func makeID(index, generation uint32) ID {
	return ID(uint64(generation)<<32 | uint64(index))
}

// Index returns the slot index of the ID.
func (id ID) Index() uint32 {
	return uint32(id)
}

// Generation returns the slot generation encoded in the ID.
func (id ID) Generation() uint32 {
	return uint32(id >> 32)
}

// IsNil reports whether id is the zero ID.
func (id ID) IsNil() bool {
	return id == Nil
}

func (id ID) String() string {
	if id.IsNil() {
		return "handle(nil)"
	}
	return fmt.Sprintf("handle(%d:%d)", id.Index(), id.Generation())
}

type entry[T any] struct {
	value      T
	generation uint32
	live       bool
}

// Table is an arena of T addressed by ID. It is safe for concurrent use.
type Table[T any] struct {
	mu      sync.RWMutex
	entries []entry[T]
	free    []uint32
	count   int
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{}
}

// Insert stores v and returns its ID.
func (t *Table[T]) Insert(v T) ID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var index uint32
	if n := len(t.free); n > 0 {
		index = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.entries = append(t.entries, entry[T]{})
		index = uint32(len(t.entries) - 1)
	}

	e := &t.entries[index]
	// generations start at 1 so that index 0 never produces the Nil ID
	e.generation++
	e.value = v
	e.live = true
	t.count++

	return makeID(index, e.generation)
}

func (t *Table[T]) lookup(id ID) (*entry[T], bool) {
	if id.IsNil() {
		return nil, false
	}
	index := id.Index()
	if int(index) >= len(t.entries) {
		return nil, false
	}
	e := &t.entries[index]
	if !e.live || e.generation != id.Generation() {
		return nil, false
	}
	return e, true
}

// Get returns the value stored under id.
func (t *Table[T]) Get(id ID) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookup(id)
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Contains reports whether id refers to a live value.
func (t *Table[T]) Contains(id ID) bool {
	_, ok := t.Get(id)
	return ok
}

// Remove deletes the value stored under id and returns it. Removing a stale
// or unknown ID returns false and leaves the table unchanged.
func (t *Table[T]) Remove(id ID) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	e, ok := t.lookup(id)
	if !ok {
		return zero, false
	}
	v := e.value
	e.value = zero
	e.live = false
	t.free = append(t.free, id.Index())
	t.count--
	return v, true
}

// Len returns the number of live values.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Each calls fn for every live value in slot order. fn must not modify the
// table.
func (t *Table[T]) Each(fn func(id ID, v T)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := range t.entries {
		e := &t.entries[i]
		if e.live {
			fn(makeID(uint32(i), e.generation), e.value)
		}
	}
}

// Drain removes every live value, calling fn for each one. It is used to tear
// down everything a context still owns.
func (t *Table[T]) Drain(fn func(id ID, v T)) {
	t.mu.Lock()
	type item struct {
		id ID
		v  T
	}
	items := make([]item, 0, t.count)
	var zero T
	for i := range t.entries {
		e := &t.entries[i]
		if e.live {
			items = append(items, item{makeID(uint32(i), e.generation), e.value})
			e.value = zero
			e.live = false
			t.free = append(t.free, uint32(i))
		}
	}
	t.count = 0
	t.mu.Unlock()

	for _, it := range items {
		fn(it.id, it.v)
	}
}
