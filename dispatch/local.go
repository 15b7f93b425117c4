package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// LocalBackend runs jobs in-process with at most Concurrency goroutines
// in flight at once, using errgroup.Group.SetLimit -- the multiprocessing
// worker pool model the original used on a single host, generalized to
// goroutines (spec §5).
type LocalBackend struct {
	Concurrency int
}

// Dispatch runs every job, at most b.Concurrency concurrently, and
// collects each one's Outcome. A job that returns an error does not
// cancel its siblings.
func (b *LocalBackend) Dispatch(ctx context.Context, jobs []Job) ([]Outcome, error) {
	outcomes := make([]Outcome, len(jobs))
	var mu sync.Mutex // outcomes writes are index-disjoint; mu only orders them for the race detector

	var g errgroup.Group
	limit := b.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			start := time.Now()
			err := job.Run(ctx)
			mu.Lock()
			outcomes[i] = Outcome{Name: job.Name, Err: err, Duration: time.Since(start)}
			mu.Unlock()
			return nil // never propagate job errors as the group's error
		})
	}
	_ = g.Wait() // always nil: job errors are captured per-outcome, not returned
	return outcomes, nil
}
