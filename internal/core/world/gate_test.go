package world

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateReentrantWrite(t *testing.T) {
	var g Gate
	ctx, release := g.Lock(context.Background())
	defer release()

	done := make(chan struct{})
	go func() {
		inner, innerRelease := g.Lock(ctx)
		assert.True(t, g.Writable(inner))
		_, readRelease := g.RLock(inner)
		readRelease()
		innerRelease()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested lock deadlocked")
	}
	assert.True(t, g.Writable(ctx))
}

func TestGateWriteUnderReadPanics(t *testing.T) {
	var g Gate
	ctx, release := g.RLock(context.Background())
	defer release()

	assert.False(t, g.Writable(ctx))
	assert.Panics(t, func() { g.Lock(ctx) })
}

func TestGateReadOnlyDerivesReadTier(t *testing.T) {
	var g Gate
	assert.Panics(t, func() { g.ReadOnly(context.Background()) })

	ctx, release := g.Lock(context.Background())
	defer release()

	ro := g.ReadOnly(ctx)
	assert.False(t, g.Writable(ro))
	assert.Panics(t, func() { g.Lock(ro) })

	_, readRelease := g.RLock(ro)
	readRelease()
}

func TestGateExcludesWriters(t *testing.T) {
	var g Gate
	ctx, release := g.RLock(context.Background())

	acquired := make(chan struct{})
	go func() {
		_, wr := g.Lock(context.Background())
		close(acquired)
		wr()
	}()

	select {
	case <-acquired:
		t.Fatal("writer entered while a reader held the gate")
	case <-time.After(50 * time.Millisecond):
	}

	_, second := g.RLock(ctx)
	second()
	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired the gate")
	}
}

func TestGateDeferRunsAfterOutermostRelease(t *testing.T) {
	var g Gate
	var ran []string

	g.Defer(context.Background(), func() { ran = append(ran, "unheld") })
	require.Equal(t, []string{"unheld"}, ran)

	ctx, release := g.Lock(context.Background())
	inner, innerRelease := g.Lock(ctx)
	g.Defer(inner, func() { ran = append(ran, "inner") })

	var wg sync.WaitGroup
	ro := g.ReadOnly(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.Defer(ro, func() { ran = append(ran, "worker") })
	}()
	wg.Wait()

	innerRelease()
	assert.Equal(t, []string{"unheld"}, ran)

	release()
	assert.Equal(t, []string{"unheld", "inner", "worker"}, ran)

	// deferred work runs with the gate free
	_, again := g.Lock(context.Background())
	again()
}
