// Package workers runs indexed batches of tasks on a bounded ants pool.
package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"rating_calculator/pkg/core/logging"
)

// DefaultSize is the pool capacity when none is given.
const DefaultSize = 4

// ErrPoolClosed is returned by Run after Release.
var ErrPoolClosed = errors.New("worker pool is closed")

// Stats counts tasks over the life of a pool.
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Panics    int64
}

// Pool wraps an ants pool.
type Pool struct {
	name   string
	pool   *ants.Pool
	log    *zap.SugaredLogger
	closed atomic.Bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panics    atomic.Int64
}

// NewPool creates a blocking pool with size workers.
func NewPool(name string, size int, log *zap.SugaredLogger) (*Pool, error) {
	if size <= 0 {
		size = DefaultSize
	}
	log = logging.OrNop(log)
	pool, err := ants.NewPool(size,
		ants.WithPreAlloc(false),
		ants.WithPanicHandler(func(p interface{}) {
			log.Errorw("worker panic recovered", "pool", name, "panic", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool %s: %w", name, err)
	}
	log.Debugw("worker pool created", "pool", name, "capacity", size)
	return &Pool{name: name, pool: pool, log: log}, nil
}

// Cap returns the number of workers.
func (p *Pool) Cap() int { return p.pool.Cap() }

// Run calls fn(ctx, i) for i in [0, n) and waits for all of them. The result
// holds one error slot per index. Tasks not yet started when ctx is done get
// ctx.Err(); a panicking task gets an error instead of crashing the process.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	if p.closed.Load() {
		for i := range errs {
			errs[i] = ErrPoolClosed
		}
		return errs
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			for j := i; j < n; j++ {
				errs[j] = err
			}
			break
		}
		idx := i
		wg.Add(1)
		p.submitted.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					p.panics.Add(1)
					p.failed.Add(1)
					p.log.Errorw("task panicked", "pool", p.name, "task", idx, "panic", r)
					errs[idx] = fmt.Errorf("task %d panicked: %v", idx, r)
				}
			}()
			if err := ctx.Err(); err != nil {
				errs[idx] = err
				p.failed.Add(1)
				return
			}
			if err := fn(ctx, idx); err != nil {
				errs[idx] = err
				p.failed.Add(1)
				return
			}
			p.completed.Add(1)
		})
		if err != nil {
			wg.Done()
			p.failed.Add(1)
			errs[idx] = fmt.Errorf("submitting task %d: %w", idx, err)
		}
	}
	wg.Wait()
	return errs
}

// Stats returns the task counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panics.Load(),
	}
}

// Release stops the workers.
func (p *Pool) Release() {
	if p.closed.CompareAndSwap(false, true) {
		p.pool.Release()
	}
}

// FirstError returns the first non-nil error of a Run result.
func FirstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
