package rigsolve

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gogpu/rigsolve/internal/parallel"
)

// ThreadPool is the worker pool shared by parallel linear-algebra routines.
//
// Every parallel routine takes the pool as an explicit argument. A nil
// *ThreadPool is valid and means "run on the calling goroutine". The pool
// outlives any single solve and is safe for concurrent use by unrelated
// solves because all work units write disjoint output ranges.
type ThreadPool struct {
	pool *parallel.WorkerPool
}

// NewThreadPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewThreadPool(workers int) *ThreadPool {
	return &ThreadPool{pool: parallel.NewWorkerPool(workers)}
}

var (
	sharedOnce sync.Once
	shared     *ThreadPool
)

// SharedThreadPool returns a process-wide pool created on first use.
// It is never closed.
func SharedThreadPool() *ThreadPool {
	sharedOnce.Do(func() {
		shared = NewThreadPool(0)
		Logger().Debug("rigsolve: shared thread pool created", "workers", shared.Workers())
	})
	return shared
}

// Workers returns the number of workers, or 1 for a nil pool.
func (p *ThreadPool) Workers() int {
	if p == nil {
		return 1
	}
	return p.pool.Workers()
}

// Close stops the workers. Work submitted afterwards runs inline.
func (p *ThreadPool) Close() {
	if p != nil {
		p.pool.Close()
	}
}

// minRowsPerTask keeps tiny outputs on the calling goroutine.
const minRowsPerTask = 16

// ParallelFor calls fn over disjoint sub-ranges covering [0, n) and blocks
// until all of them have returned.
func (p *ThreadPool) ParallelFor(n int, fn func(start, end int)) {
	p.forRanges(parallel.EvenRanges(n, p.Workers(), minRowsPerTask), fn)
}

// parallelForLower is ParallelFor balanced for lower-triangular outputs.
func (p *ThreadPool) parallelForLower(n int, fn func(start, end int)) {
	p.forRanges(parallel.LowerTriangleRanges(n, p.Workers(), minRowsPerTask), fn)
}

func (p *ThreadPool) forRanges(ranges []parallel.Range, fn func(start, end int)) {
	if len(ranges) == 0 {
		return
	}
	if p == nil || len(ranges) == 1 {
		for _, r := range ranges {
			fn(r.Start, r.End)
		}
		return
	}
	if log := Logger(); log.Enabled(context.Background(), slog.LevelDebug) {
		// backlog counts items queued by other solves sharing the pool.
		log.Debug("rigsolve: parallel ranges",
			"ranges", len(ranges), "workers", p.Workers(), "backlog", p.pool.QueuedWork())
	}
	p.pool.Run(ranges, func(r parallel.Range) { fn(r.Start, r.End) })
}
