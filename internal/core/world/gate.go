package world

import (
	"context"
	"sync"
)

type holdMode uint8

const (
	holdRead holdMode = iota + 1
	holdWrite
)

// hold records that a context owns a gate, and in which mode.
type hold struct {
	mode     holdMode
	parent   *hold
	mu       sync.Mutex
	deferred []func()
}

type holdKey struct{ gate *Gate }

// Gate is the reader/writer lock around a whole world: any number of readers
// or exactly one writer. Ownership travels in a context.Context, which makes
// the gate re-entrant for the same logical owner: nested calls that pass the
// derived context do not lock again.
type Gate struct {
	mu sync.RWMutex
}

func (g *Gate) held(ctx context.Context) *hold {
	h, _ := ctx.Value(holdKey{g}).(*hold)
	return h
}

// Lock acquires the gate for writing and returns the owning context together
// with its release function. If ctx already owns the gate for writing the call
// is a no-op. Requesting write access while holding read access panics, since
// it could never be granted.
func (g *Gate) Lock(ctx context.Context) (context.Context, func()) {
	if h := g.held(ctx); h != nil {
		if h.mode == holdWrite {
			return ctx, func() {}
		}
		panic("world: write access requested while holding read access")
	}

	g.mu.Lock()
	h := &hold{mode: holdWrite}
	return context.WithValue(ctx, holdKey{g}, h), func() {
		g.mu.Unlock()
		h.flush()
	}
}

// RLock acquires the gate for reading. Any existing hold on ctx satisfies it.
func (g *Gate) RLock(ctx context.Context) (context.Context, func()) {
	if g.held(ctx) != nil {
		return ctx, func() {}
	}

	g.mu.RLock()
	h := &hold{mode: holdRead}
	return context.WithValue(ctx, holdKey{g}, h), func() {
		g.mu.RUnlock()
		h.flush()
	}
}

// ReadOnly derives a read-tier context from a write holder. It is handed to
// worker goroutines that may read the world concurrently while the writer
// waits for them; a structural write attempted through it panics.
func (g *Gate) ReadOnly(ctx context.Context) context.Context {
	h := g.held(ctx)
	if h == nil || h.mode != holdWrite {
		panic("world: ReadOnly requires write access")
	}
	return context.WithValue(ctx, holdKey{g}, &hold{mode: holdRead, parent: h})
}

// Writable reports whether ctx holds the gate for writing.
func (g *Gate) Writable(ctx context.Context) bool {
	h := g.held(ctx)
	return h != nil && h.mode == holdWrite
}

// Defer schedules fn to run once the outermost hold on ctx is released.
// Without a hold fn runs immediately.
func (g *Gate) Defer(ctx context.Context, fn func()) {
	h := g.held(ctx)
	if h == nil {
		fn()
		return
	}
	for h.parent != nil {
		h = h.parent
	}
	h.mu.Lock()
	h.deferred = append(h.deferred, fn)
	h.mu.Unlock()
}

func (h *hold) flush() {
	h.mu.Lock()
	fns := h.deferred
	h.deferred = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
