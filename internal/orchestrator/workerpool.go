package orchestrator

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/common"
)

// task is one unit of worker-pool work, tagged with the context of the job
// that submitted it so a job's cancellation can be checked independently
// of every other job sharing the pool (Design Note (d): a single global
// pool, not one pool per job).
type task struct {
	ctx context.Context
	run func(ctx context.Context)
}

// workerPool is a fixed-width pool of goroutines shared across all jobs
// (spec §4.6: "bounded concurrency W across all jobs"). A submitted fn always
// runs, even when its context is already cancelled; the fn itself checks
// ctx and returns early.
type workerPool struct {
	tasks  chan task
	logger arbor.ILogger
}

func newWorkerPool(width int, logger arbor.ILogger) *workerPool {
	if width < 1 {
		width = 1
	}
	wp := &workerPool{tasks: make(chan task, width*4), logger: logger}
	for i := 0; i < width; i++ {
		common.SafeGo(logger, "orchestrator.worker", wp.loop)
	}
	return wp
}

// loop always runs a dequeued task's fn, cancelled ctx or not. A task's fn
// (runJob's closure) defers the caller's wg.Done(); skipping the call here
// on a cancelled ctx would leave that WaitGroup blocked forever. Tasks that
// care about cancellation check ctx.Err() themselves once running.
func (wp *workerPool) loop() {
	for t := range wp.tasks {
		t.run(t.ctx)
	}
}

// submit enqueues fn to run under ctx. If ctx is already cancelled by the
// time there's room in the queue, fn runs inline instead of being dropped:
// either way fn (and the wg.Done() it defers) unconditionally executes, so
// a cancelled job's wg.Wait() still unblocks within one enqueue cycle.
func (wp *workerPool) submit(ctx context.Context, fn func(ctx context.Context)) {
	select {
	case wp.tasks <- task{ctx: ctx, run: fn}:
	case <-ctx.Done():
		fn(ctx)
	}
}
