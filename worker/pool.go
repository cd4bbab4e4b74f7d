// Package worker implements the worker pool (C6): for every
// (snapshot, triggered template) pair the dispatcher produces, it spawns
// an independent, deadline-bounded task that clones the snapshot's
// layered cache, runs the optimizer pipeline, and reports at most one
// opportunity.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// DefaultTimeout is the per-worker deadline (§4.C6): 30 seconds.
const DefaultTimeout = 30 * time.Second

// Task is one unit of work: a snapshot/template pairing plus the
// function that performs the optimizer+filter+post-processor pipeline
// for it. Task implementations must not mutate any shared state besides
// the (intentionally unsynchronized) per-target gas filter.
type Task struct {
	TemplateName string
	Run          func(ctx context.Context) (any, error)
}

// Pool runs tasks concurrently, each wrapped in its own deadline. There
// is no shared queue to steal from — every task already owns a private
// cloned LayeredCache, so the only pooling concern is enforcing per-task
// timeouts, not load balancing a deque the way a classic work-stealing
// scheduler would. Concurrency is not bounded: RunAll starts one
// goroutine per task at once.
type Pool struct {
	timeout time.Duration
	log     log.Logger
}

// New creates a Pool with the given per-task timeout. A zero timeout
// uses DefaultTimeout.
func New(timeout time.Duration, logger log.Logger) *Pool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Pool{timeout: timeout, log: logger}
}

// Result pairs a task's template name with its outcome.
type Result struct {
	TemplateName string
	Value        any
	Err          error
	TimedOut     bool
}

// RunAll runs every task concurrently, each under its own deadline
// derived from ctx, and returns once all have finished or timed out.
// Tasks that hit the deadline are cancelled and logged; they contribute
// no opportunity (Value is nil, TimedOut is true).
func (p *Pool) RunAll(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	var wg sync.WaitGroup
	wg.Add(len(tasks))

	for i, task := range tasks {
		go func(i int, task Task) {
			defer wg.Done()
			results[i] = p.runOne(ctx, task)
		}(i, task)
	}

	wg.Wait()
	return results
}

func (p *Pool) runOne(ctx context.Context, task Task) Result {
	taskCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		val, err := task.Run(taskCtx)
		done <- outcome{val, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			p.log.Warn("worker task failed", "template", task.TemplateName, "err", o.err)
		}
		return Result{TemplateName: task.TemplateName, Value: o.val, Err: o.err}
	case <-taskCtx.Done():
		p.log.Warn("worker task timed out", "template", task.TemplateName, "timeout", p.timeout)
		return Result{TemplateName: task.TemplateName, TimedOut: true}
	}
}
