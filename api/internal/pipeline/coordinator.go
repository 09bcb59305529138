package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/semaphore"

	"video-auditor/api/internal/audit"
)

// Coordinator fans units out through the pipeline under a weighted
// semaphore. The permit spans the whole A->B->C sequence for a unit, so the
// cap bounds end-to-end in-flight work (media uploads included), not just
// individual model calls.
type Coordinator struct {
	Pipe *Pipeline

	sem *semaphore.Weighted
	cap int64
}

func NewCoordinator(p *Pipeline, maxConcurrent int64) *Coordinator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Coordinator{Pipe: p, sem: semaphore.NewWeighted(maxConcurrent), cap: maxConcurrent}
}

// MaxConcurrent returns the admission cap.
func (c *Coordinator) MaxConcurrent() int64 { return c.cap }

// RunAll launches every unit up front and lets the semaphore throttle
// execution. A unit's failure (error or panic) is captured in its own slot
// and never disturbs sibling units. Results are positioned by dispatch
// index, not completion order.
func (c *Coordinator) RunAll(ctx context.Context, units []audit.Unit) []*audit.Result {
	results := make([]*audit.Result, len(units))

	var wg sync.WaitGroup
	for i, u := range units {
		wg.Add(1)
		go func(i int, u audit.Unit) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = audit.Failed(u, fmt.Errorf("panic: %v", r))
				}
			}()

			if err := c.sem.Acquire(ctx, 1); err != nil {
				results[i] = audit.Failed(u, err)
				return
			}
			defer c.sem.Release(1)

			results[i] = c.Run(ctx, u)
		}(i, u)
	}
	wg.Wait()
	return results
}

// Run executes a single unit without touching the limiter. RunAll and
// RunOne acquire a permit first; everything else should go through them.
func (c *Coordinator) Run(ctx context.Context, u audit.Unit) *audit.Result {
	res := c.Pipe.Run(ctx, u)
	if res.Success {
		log.Printf("unit %d done: accuracy=%.2f logic=%.2f adaptability=%.2f engagement=%.2f",
			u.Index, res.Accuracy.Score, res.Logic.Score, res.Adaptability.Score, res.Engagement.Score)
	} else {
		log.Printf("unit %d failed: %s", u.Index, res.Err)
	}
	return res
}

// RunOne runs a single unit under the same semaphore RunAll uses, so jobs
// submitted over HTTP and batch runs share one admission budget.
func (c *Coordinator) RunOne(ctx context.Context, u audit.Unit) *audit.Result {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return audit.Failed(u, err)
	}
	defer c.sem.Release(1)
	return c.Run(ctx, u)
}
