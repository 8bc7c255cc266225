package batch

import (
	"context"
	"sync"
	"time"
)

// Options bounds one batch run.
type Options struct {
	MaxParallel int           // batch.max_parallel within a topological group
	StopOnError bool          // cancel all pending sub-queries on first failure
	Deadline    time.Duration // batch-wide wall time bound, 0 disables
}

// Run schedules reqs by topological group, resolving $ref filter tokens
// against each dependency's materialized result before invoking its Run
// func, and bounding in-group parallelism at opts.MaxParallel.
func Run(ctx context.Context, reqs []SubRequest, opts Options) (Result, error) {
	groups, err := topologicalGroups(reqs)
	if err != nil {
		return Result{}, err
	}

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}

	ctx, cancelOnFailure := context.WithCancel(ctx)
	defer cancelOnFailure()

	var (
		mu        sync.Mutex
		completed = make(map[string]SubResult, len(reqs))
		failed    bool
	)

	for _, group := range groups {
		mu.Lock()
		alreadyFailed := failed
		mu.Unlock()
		if alreadyFailed {
			for _, r := range group {
				mu.Lock()
				completed[r.ID] = SubResult{ID: r.ID, Status: StatusSkipped}
				mu.Unlock()
			}
			continue
		}

		sem := make(chan struct{}, opts.MaxParallel)
		var wg sync.WaitGroup

		for _, r := range group {
			select {
			case <-ctx.Done():
				mu.Lock()
				completed[r.ID] = SubResult{ID: r.ID, Status: StatusSkipped, Err: ctx.Err()}
				mu.Unlock()
				continue
			default:
			}

			wg.Add(1)
			sem <- struct{}{}
			go func(r SubRequest) {
				defer wg.Done()
				defer func() { <-sem }()

				mu.Lock()
				resolvedFilters, resolveErr := resolveFilters(r.Filters, completed)
				mu.Unlock()
				if resolveErr != nil {
					// A $ref that can't resolve means an upstream dependency
					// didn't produce a usable result, not that this
					// sub-query itself failed to execute: skipped, not
					// failed.
					mu.Lock()
					completed[r.ID] = SubResult{ID: r.ID, Status: StatusSkipped, Err: resolveErr}
					if opts.StopOnError {
						failed = true
						cancelOnFailure()
					}
					mu.Unlock()
					return
				}

				res, err := r.Run(ctx, resolvedFilters)

				mu.Lock()
				if err != nil {
					completed[r.ID] = SubResult{ID: r.ID, Status: StatusFailed, Err: err}
					if opts.StopOnError {
						failed = true
						cancelOnFailure()
					}
				} else {
					completed[r.ID] = SubResult{ID: r.ID, Status: StatusSuccess, Result: res}
				}
				mu.Unlock()
			}(r)
		}

		wg.Wait()
	}

	return Result{Results: completed}, nil
}
