// Package slotmap provides a generational slot table: a growable array of
// occupied or free entries with O(1) insert, remove and lookup, where every
// entry is addressed by an (index, generation) Handle.
//
// A handle stays valid until its slot is removed. Removal bumps the slot's
// generation, so an old handle never matches a later occupant of the same slot.
// Stale or out-of-range handles are reported as a plain miss, never as a panic.
//
// Table is not safe for concurrent use; callers guard it externally.
package slotmap

import (
	"errors"
	"fmt"
	"iter"
	"math"
)

// ErrCapacityExhausted is returned by Insert and Reserve when the table cannot
// grow any further.
var ErrCapacityExhausted = errors.New("slotmap: capacity exhausted")

// tail terminates the freelist. It is never a valid slot index.
const tail = math.MaxUint32

// MaxCapacity is the largest number of slots a table can address.
const MaxCapacity = math.MaxUint32

const minGrowth = 8

// Handle identifies an entry of a Table.
// The zero Handle never refers to a live entry.
type Handle struct {
	Index      uint32
	Generation uint32
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool {
	return h.Index == 0 && h.Generation == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.Index, h.Generation)
}

type entry[V any] struct {
	value      V
	generation uint32
	next       uint32
	occupied   bool
}

// Table is a generational slot table holding values of type V.
type Table[V any] struct {
	entries  []entry[V]
	freeHead uint32
	freeTail uint32
	live     int
	limit    uint32
}

// Option configures a Table.
type Option func(*options)

type options struct {
	capacity int
	limit    uint32
}

// WithCapacity pre-allocates n slots.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithMaxCapacity caps the number of slots the table may ever hold.
func WithMaxCapacity(n uint32) Option {
	return func(o *options) { o.limit = n }
}

// New creates an empty table.
func New[V any](opts ...Option) *Table[V] {
	o := options{limit: MaxCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if o.limit == 0 {
		o.limit = MaxCapacity
	}

	t := &Table[V]{freeHead: tail, freeTail: tail, limit: o.limit}
	if o.capacity > 0 {
		// A capacity above the limit is clamped; the error only matters for Insert.
		_ = t.Reserve(o.capacity)
	}
	return t
}

// Len returns the number of live entries.
func (t *Table[V]) Len() int {
	return t.live
}

// Cap returns the number of slots, free or occupied.
func (t *Table[V]) Cap() int {
	return len(t.entries)
}

// Insert stores v in a free slot and returns its handle.
func (t *Table[V]) Insert(v V) (Handle, error) {
	if t.freeHead == tail {
		if err := t.grow(t.growTarget()); err != nil {
			return Handle{}, err
		}
	}

	idx := t.freeHead
	e := &t.entries[idx]
	t.freeHead = e.next
	if t.freeHead == tail {
		t.freeTail = tail
	}

	e.value = v
	e.next = tail
	e.occupied = true
	t.live++

	return Handle{Index: idx, Generation: e.generation}, nil
}

// Remove deletes the entry addressed by h and returns its value.
// It reports false when h is stale or out of range.
func (t *Table[V]) Remove(h Handle) (V, bool) {
	var zero V
	if !t.Contains(h) {
		return zero, false
	}

	e := &t.entries[h.Index]
	v := e.value
	e.value = zero
	e.occupied = false
	e.generation = nextGeneration(e.generation)
	t.release(h.Index)
	t.live--

	return v, true
}

// Get returns a copy of the value addressed by h.
func (t *Table[V]) Get(h Handle) (V, bool) {
	if !t.Contains(h) {
		var zero V
		return zero, false
	}
	return t.entries[h.Index].value, true
}

// Ref returns a pointer to the value addressed by h, or nil when h is stale.
// The pointer is valid until the table grows.
func (t *Table[V]) Ref(h Handle) *V {
	if !t.Contains(h) {
		return nil
	}
	return &t.entries[h.Index].value
}

// Contains reports whether h addresses a live entry.
func (t *Table[V]) Contains(h Handle) bool {
	if int64(h.Index) >= int64(len(t.entries)) {
		return false
	}
	e := &t.entries[h.Index]
	return e.occupied && e.generation == h.Generation
}

// At returns the value stored at index without a generation check.
// Callers must already know the slot is live; an out-of-range index panics.
func (t *Table[V]) At(index uint32) *V {
	return &t.entries[index].value
}

// HandleAt returns the live handle for the slot at index.
func (t *Table[V]) HandleAt(index uint32) (Handle, bool) {
	if int64(index) >= int64(len(t.entries)) || !t.entries[index].occupied {
		return Handle{}, false
	}
	return Handle{Index: index, Generation: t.entries[index].generation}, true
}

// Reserve grows the table so it holds at least n slots.
func (t *Table[V]) Reserve(n int) error {
	if n <= len(t.entries) {
		return nil
	}
	return t.grow(n)
}

// All yields every live entry in slot order. Each call starts a new pass.
// A pass costs O(Cap), not O(Len).
func (t *Table[V]) All() iter.Seq2[Handle, *V] {
	return t.scan(0, -1)
}

// Range yields the live entries whose slot index lies in [lo, hi).
func (t *Table[V]) Range(lo, hi int) iter.Seq2[Handle, *V] {
	return t.scan(lo, hi)
}

func (t *Table[V]) scan(lo, hi int) iter.Seq2[Handle, *V] {
	return func(yield func(Handle, *V) bool) {
		end := len(t.entries)
		if hi >= 0 && hi < end {
			end = hi
		}
		for i := max(lo, 0); i < end; i++ {
			e := &t.entries[i]
			if !e.occupied {
				continue
			}
			if !yield(Handle{Index: uint32(i), Generation: e.generation}, &e.value) {
				return
			}
		}
	}
}

// Clear removes every entry. Previously issued handles become stale.
func (t *Table[V]) Clear() {
	var zero V
	for i := range t.entries {
		e := &t.entries[i]
		if e.occupied {
			e.generation = nextGeneration(e.generation)
		}
		e.value = zero
		e.occupied = false
	}
	t.freeHead, t.freeTail = tail, tail
	t.link(0, uint32(len(t.entries)))
	t.live = 0
}

func (t *Table[V]) growTarget() int {
	n := len(t.entries) * 2
	if n < len(t.entries)+minGrowth {
		n = len(t.entries) + minGrowth
	}
	return n
}

// grow moves the entries into a larger array and links the new region
// behind the existing free slots.
func (t *Table[V]) grow(n int) error {
	old := len(t.entries)
	if uint64(old) >= uint64(t.limit) {
		return ErrCapacityExhausted
	}
	if uint64(n) > uint64(t.limit) {
		n = int(t.limit)
	}

	entries := make([]entry[V], n)
	copy(entries, t.entries)
	for i := old; i < n; i++ {
		entries[i].generation = 1
	}
	t.entries = entries
	t.link(uint32(old), uint32(n))
	return nil
}

// link threads slots [lo, hi) onto the end of the freelist.
func (t *Table[V]) link(lo, hi uint32) {
	if lo >= hi {
		return
	}
	for i := lo; i < hi-1; i++ {
		t.entries[i].next = i + 1
	}
	t.entries[hi-1].next = tail

	if t.freeTail == tail {
		t.freeHead = lo
	} else {
		t.entries[t.freeTail].next = lo
	}
	t.freeTail = hi - 1
}

// release puts a freed slot where the next Insert will find it first.
func (t *Table[V]) release(idx uint32) {
	t.entries[idx].next = t.freeHead
	t.freeHead = idx
	if t.freeTail == tail {
		t.freeTail = idx
	}
}

func nextGeneration(g uint32) uint32 {
	g++
	if g == 0 {
		g = 1
	}
	return g
}
