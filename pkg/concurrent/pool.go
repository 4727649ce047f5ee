// Package concurrent provides small concurrency helpers shared by the bridge
// components.
package concurrent

import (
	"context"
	"sync"
)

// WorkerPool bounds the number of operations running at once.
type WorkerPool struct {
	maxWorkers int
	sem        chan struct{}
}

// NewWorkerPool creates a pool with the specified max workers.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		sem:        make(chan struct{}, maxWorkers),
	}
}

// Do executes fn under the pool's concurrency limit.
func (wp *WorkerPool) Do(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case wp.sem <- struct{}{}:
		defer func() { <-wp.sem }()
		return fn()
	}
}

// ParallelMap runs fn over every item under the pool's concurrency limit and
// collects results into an index-aligned slice: results[i] always corresponds
// to items[i] no matter which call finishes first. Failures are likewise
// collected per index rather than aborting the batch, so the caller sees
// exactly one outcome per item: a join, not a race.
func ParallelMap[T, R any](ctx context.Context, items []T, fn func(T) (R, error), pool *WorkerPool) ([]R, []error) {
	if len(items) == 0 {
		return nil, nil
	}

	if pool == nil {
		pool = NewWorkerPool(0)
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(idx int, val T) {
			defer wg.Done()
			errs[idx] = pool.Do(ctx, func() error {
				var err error
				results[idx], err = fn(val)
				return err
			})
		}(i, item)
	}

	wg.Wait()
	return results, errs
}
