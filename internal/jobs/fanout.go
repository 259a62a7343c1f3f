// Package jobs implements the exporter's periodic work: refreshing
// the droplet registry and polling each metric family. Every family
// job shares the same bounded-concurrency fan-out over the current
// droplet list, grounded on the teacher's worker-pool style
// (internal/services previously ran bounded work over a slice of
// servers) generalized here with golang.org/x/sync/errgroup and
// semaphore.Weighted, since the teacher's own pool was CLI-request
// scoped rather than a reusable per-tick primitive.
package jobs

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/droxporter/droxporter/internal/logging"
)

// maxConcurrentDropletCalls bounds the number of simultaneous
// provider requests one job tick can issue.
const maxConcurrentDropletCalls = 8

var fanoutLogger = logging.New("jobs")

// fanout runs work for every item in items with bounded concurrency.
// A single item's failure does not cancel the others — one droplet's
// transient error must not starve the rest of the tick's samples. A
// panic inside work is recovered at this worker boundary (the
// scheduler's own recover only guards the synchronous Run call, not
// goroutines fanned out beneath it) and counted as a failure rather
// than crashing the process. The returned bool reports whether every
// item succeeded.
func fanout[T any](ctx context.Context, items []T, work func(ctx context.Context, item T) error) bool {
	if len(items) == 0 {
		return true
	}

	sem := semaphore.NewWeighted(maxConcurrentDropletCalls)
	var g errgroup.Group
	var failed atomic.Bool

	for _, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			failed.Store(true)
			break
		}
		item := item
		g.Go(func() error {
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					failed.Store(true)
					fanoutLogger.Errorf("worker panicked: %v", r)
				}
			}()
			if err := work(ctx, item); err != nil {
				failed.Store(true)
			}
			return nil
		})
	}
	g.Wait()
	return !failed.Load()
}
