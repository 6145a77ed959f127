package concurrent

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunks(t *testing.T) {
	assert.Nil(t, Chunks(0, 4))
	assert.Equal(t, []Range{{0, 3}}, Chunks(3, 0))
	assert.Equal(t, []Range{{0, 3}}, Chunks(3, 8))
	assert.Equal(t, []Range{{0, 4}, {4, 8}, {8, 10}}, Chunks(10, 4))

	total := 0
	for _, r := range Chunks(1000, 7) {
		assert.LessOrEqual(t, r.Len(), 7)
		total += r.Len()
	}
	assert.Equal(t, 1000, total)
}

func tasks(fns ...Task) iter.Seq[Task] {
	return slices.Values(fns)
}

func TestRunBoundsWorkers(t *testing.T) {
	var running, peak atomic.Int32
	var fns []Task
	for range 32 {
		fns = append(fns, func(context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			running.Add(-1)
			return nil
		})
	}
	require.NoError(t, Run(context.Background(), 3, tasks(fns...)))
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRunStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var after atomic.Int32

	err := Run(context.Background(), 1, tasks(
		func(context.Context) error { return boom },
		func(context.Context) error { after.Add(1); return nil },
		func(context.Context) error { after.Add(1); return nil },
	))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, after.Load())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := Run(ctx, 2, tasks(func(context.Context) error { called = true; return nil }))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestBatchCoversEveryItem(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}
	var mu sync.Mutex
	var seen []int
	err := Batch(context.Background(), items, 4, 3, func(_ context.Context, chunk []int) error {
		assert.LessOrEqual(t, len(chunk), 4)
		mu.Lock()
		seen = append(seen, chunk...)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	slices.Sort(seen)
	assert.Equal(t, items, seen)
}
