// Package bench is a synthetic-load harness for timing the optimizer
// (C7) against a caller-supplied ChainEvm and StateSource, breaking each
// iteration down into acquiring a StateReader, building an empty
// LayeredCache, and running Optimize. A pipeline worker instead clones
// the executor's cache and does not acquire a reader itself. It has
// no production caller; it exists for the lifecycle-metrics tests and
// for ad hoc local profiling.
package bench

import (
	"context"
	"time"

	"github.com/flashline/searcher/chainstate"
	"github.com/flashline/searcher/evmtypes"
	"github.com/flashline/searcher/optimize"
)

// IterationTiming breaks one iteration's wall-clock cost down by stage.
type IterationTiming struct {
	ReaderAcquire time.Duration
	CacheBuild    time.Duration
	Optimize      time.Duration
	Total         time.Duration
}

// Result aggregates a benchmark run's per-iteration timings.
type Result struct {
	Iterations int
	Timings    []IterationTiming
}

// Mean returns the arithmetic mean total duration across all iterations,
// or zero if none were run.
func (r Result) Mean() time.Duration {
	if len(r.Timings) == 0 {
		return 0
	}
	var sum time.Duration
	for _, t := range r.Timings {
		sum += t.Total
	}
	return sum / time.Duration(len(r.Timings))
}

// Harness runs repeated Optimize calls against a fixed ChainEvm and
// StateSource, re-acquiring a fresh reader and building a new cache each
// iteration, so every Optimize call mutates its own private overlay.
type Harness struct {
	optimizer *optimize.Optimizer
	source    evmtypes.StateSource
}

// New creates a Harness against the given ChainEvm and StateSource.
func New(evm evmtypes.ChainEvm, source evmtypes.StateSource) *Harness {
	return &Harness{optimizer: optimize.New(evm, nil), source: source}
}

// Run executes iterations independent Optimize calls with identical
// parameters and returns the per-iteration timing breakdown.
func (h *Harness) Run(ctx context.Context, blockNumber uint64, env evmtypes.BlockEnv, params optimize.GradientParams, targetHasCode bool, iterations int) (Result, error) {
	result := Result{Iterations: iterations, Timings: make([]IterationTiming, 0, iterations)}

	for i := 0; i < iterations; i++ {
		start := time.Now()

		readerStart := time.Now()
		reader, err := h.source.ReaderAt(ctx, blockNumber)
		if err != nil {
			return result, err
		}
		readerElapsed := time.Since(readerStart)

		cacheStart := time.Now()
		cache := chainstate.NewLayeredCache(reader)
		cacheElapsed := time.Since(cacheStart)

		optimizeStart := time.Now()
		if _, err := h.optimizer.Optimize(ctx, env, params, cache, targetHasCode); err != nil {
			return result, err
		}
		optimizeElapsed := time.Since(optimizeStart)

		result.Timings = append(result.Timings, IterationTiming{
			ReaderAcquire: readerElapsed,
			CacheBuild:    cacheElapsed,
			Optimize:      optimizeElapsed,
			Total:         time.Since(start),
		})
	}

	return result, nil
}
