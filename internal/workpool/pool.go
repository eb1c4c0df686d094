// Package workpool runs per-item work with bounded concurrency and returns
// results in input order.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// MaxConcurrency caps every caller-supplied concurrency hint.
const MaxConcurrency = 100

// Clamp resolves a caller hint against n items: min(100, max(1, min(hint, n))).
func Clamp(hint, n int) int {
	v := hint
	if n < v {
		v = n
	}
	if v < 1 {
		v = 1
	}
	if v > MaxConcurrency {
		v = MaxConcurrency
	}
	return v
}

// Map applies fn to every item using at most Clamp(hint, len(items))
// goroutines. out[i] always corresponds to items[i], whatever order the
// calls complete in. The first error cancels the shared context and is
// returned once all started calls finish.
func Map[T, R any](ctx context.Context, items []T, hint int, fn func(ctx context.Context, index int, item T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	if len(items) == 0 {
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Clamp(hint, len(items)))
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, i, item)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
