// Package concurrent splits index ranges into chunks and runs them on a
// bounded set of goroutines.
package concurrent

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

// Range is the half-open index interval [Lo, Hi).
type Range struct {
	Lo, Hi int
}

func (r Range) Len() int {
	return r.Hi - r.Lo
}

// Chunks splits [0, n) into consecutive ranges of at most size indices.
// A non-positive size yields a single range.
func Chunks(n, size int) []Range {
	if n <= 0 {
		return nil
	}
	if size <= 0 || size >= n {
		return []Range{{Lo: 0, Hi: n}}
	}
	out := make([]Range, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		out = append(out, Range{Lo: lo, Hi: min(lo+size, n)})
	}
	return out
}

// Task is one unit of work submitted to Run.
type Task func(ctx context.Context) error

// Run submits every task in order to at most workers goroutines and waits for
// all of them. The first error cancels the context handed to the remaining
// tasks; tasks that have not started by then are skipped. Run returns the
// first task error, or ctx.Err() if ctx was cancelled before all tasks started.
func Run(ctx context.Context, workers int, tasks iter.Seq[Task]) error {
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for task := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return task(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Batch runs action over consecutive chunks of items with at most workers
// goroutines.
func Batch[T any](ctx context.Context, items []T, size, workers int, action func(ctx context.Context, chunk []T) error) error {
	chunks := Chunks(len(items), size)
	return Run(ctx, workers, func(yield func(Task) bool) {
		for _, r := range chunks {
			chunk := items[r.Lo:r.Hi]
			if !yield(func(ctx context.Context) error { return action(ctx, chunk) }) {
				return
			}
		}
	})
}
