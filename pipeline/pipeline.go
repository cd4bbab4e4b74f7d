// Package pipeline wires the per-flashblock processing chain end to end:
// C4 execution, C5 dispatch, C6 worker fan-out, C7 optimization, C8 gas
// filtering, C9 post-processing, and handoff to C10 submission. It is
// the integration point an embedding process uses once it supplies a
// concrete ChainEvm and StateSource (§1: both are external to this
// module).
package pipeline

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/flashline/searcher/chainstate"
	"github.com/flashline/searcher/evmtypes"
	"github.com/flashline/searcher/executor"
	"github.com/flashline/searcher/flashblocks"
	"github.com/flashline/searcher/gasfilter"
	"github.com/flashline/searcher/lifecycle"
	"github.com/flashline/searcher/optimize"
	"github.com/flashline/searcher/postprocess"
	"github.com/flashline/searcher/strategy"
	"github.com/flashline/searcher/submit"
	"github.com/flashline/searcher/worker"
)

// Pipeline assembles C4 through C10 behind a single ProcessEvent call.
type Pipeline struct {
	executor    *executor.Executor
	optimizer   *optimize.Optimizer
	postprocess *postprocess.Processor
	gasFilter   *gasfilter.Filter
	workerPool  *worker.Pool
	submitter   *submit.Submitter
	configs     []strategy.ProcessorConfig
	threshold   *uint256.Int
	metrics     *lifecycle.Metrics
	log         log.Logger
}

// New assembles a Pipeline from its constituent components. threshold is
// the minimum expected profit (wei) an opportunity must clear before
// C10 submission; below it, an opportunity is logged but not submitted.
func New(
	evm evmtypes.ChainEvm,
	source evmtypes.StateSource,
	gasFilter *gasfilter.Filter,
	submitter *submit.Submitter,
	configs []strategy.ProcessorConfig,
	threshold *uint256.Int,
	metrics *lifecycle.Metrics,
	workerTimeout time.Duration,
	logger log.Logger,
) *Pipeline {
	if logger == nil {
		logger = log.Root()
	}
	return &Pipeline{
		executor:    executor.New(evm, source, logger),
		optimizer:   optimize.New(evm, logger),
		postprocess: postprocess.New(evm, logger),
		gasFilter:   gasFilter,
		workerPool:  worker.New(workerTimeout, logger),
		submitter:   submitter,
		configs:     configs,
		threshold:   threshold,
		metrics:     metrics,
		log:         logger,
	}
}

// ProcessEvent runs one flashblock through C4 (executor), C5 (dispatch),
// C6 (worker fan-out over C7+C8+C9), and hands any above-threshold
// opportunity to C10.
func (p *Pipeline) ProcessEvent(ctx context.Context, event *flashblocks.FlashblockEvent) error {
	trace := lifecycle.NewScanTrace("", p.log)
	execTimer := p.metrics.StartTimer(lifecycle.StageExecution)
	snapshot, err := p.executor.Process(ctx, event)
	execTimer.Stop()
	if err != nil {
		return err
	}
	trace = lifecycle.NewScanTrace(snapshot.ScanID, p.log)

	if snapshot.Empty() {
		trace.Logger().Debug("clean flashblock, no dispatch")
		return nil
	}

	strategyTimer := p.metrics.StartTimer(lifecycle.StageStrategy)
	triggered := strategy.Dispatch(snapshot, p.configs)
	strategyTimer.Stop()
	if len(triggered) == 0 {
		return nil
	}

	tasks := make([]worker.Task, 0, len(triggered))
	for _, cfg := range p.configs {
		if _, ok := triggered[cfg.Name]; !ok {
			continue
		}
		cfg := cfg
		tasks = append(tasks, worker.Task{
			TemplateName: cfg.Name,
			Run: func(taskCtx context.Context) (any, error) {
				return p.runTemplate(taskCtx, cfg, snapshot)
			},
		})
	}

	workerTimer := p.metrics.StartTimer(lifecycle.StageWorkerTotal)
	results := p.workerPool.RunAll(ctx, tasks)
	workerTimer.Stop()

	for _, result := range results {
		if result.Err != nil || result.TimedOut || result.Value == nil {
			continue
		}
		opp, ok := result.Value.(postprocess.MevOpportunity)
		if !ok {
			continue
		}
		p.metrics.OpportunitiesFound.Inc()
		p.metrics.ObservedProfitWei.Observe(profitToFloat(opp.ExpectedProfit))
		p.handleOpportunity(ctx, opp, trace)
	}
	return nil
}

// runTemplate runs C7 (optimize) through C9 (postprocess) for a single
// triggered template, against a private clone of the executor's
// post-flashblock cache so concurrent workers never share mutable state
// (§5) while still seeing the flashblock's own applied diffs.
func (p *Pipeline) runTemplate(ctx context.Context, cfg strategy.ProcessorConfig, snapshot *chainstate.StateSnapshot) (postprocess.MevOpportunity, error) {
	cache := p.executor.CloneCache()
	env := evmtypes.BlockEnv{Number: snapshot.BlockNumber, BaseFee: snapshot.BaseFee}

	targetCode, err := cache.GetCode(ctx, cfg.Target)
	if err != nil {
		return postprocess.MevOpportunity{}, err
	}

	filteredGas, ok := p.gasFilter.Get(ctx, cfg.Target)
	var gasPtr *uint64
	if ok {
		g := filteredGas.Gas
		gasPtr = &g
	}

	params := optimize.GradientParams{
		InitialQty:  cfg.DefaultQty,
		LowerBound:  cfg.DefaultQty,
		UpperBound:  cfg.DefaultQty,
		Target:      cfg.Target,
		DataFormat:  cfg.DataFormat,
		FilteredGas: gasPtr,
	}

	optimizeTimer := p.metrics.StartTimer(lifecycle.StageOptimizer)
	out, err := p.optimizer.Optimize(ctx, env, params, cache, len(targetCode) > 0)
	optimizeTimer.Stop()
	if err != nil {
		return postprocess.MevOpportunity{}, err
	}
	if out.FilteredGas != nil {
		p.gasFilter.Set(ctx, cfg.Target, *out.FilteredGas, out.EffectiveMultiplier)
	}
	if out.Delta.Sign() <= 0 {
		return postprocess.MevOpportunity{}, errNoProfit
	}

	opp := p.postprocess.Process(ctx, env, cache, cfg, out, snapshot)
	return opp, nil
}

// handleOpportunity gates an opportunity on the configured profit
// threshold and, if it clears, hands it to C10.
func (p *Pipeline) handleOpportunity(ctx context.Context, opp postprocess.MevOpportunity, trace lifecycle.ScanTrace) {
	if opp.ExpectedProfit == nil {
		trace.Logger().Info("opportunity has no expected profit, not submitting")
		return
	}
	if opp.ExpectedProfit.Cmp(p.threshold) < 0 {
		trace.Logger().Info("opportunity below profit threshold, not submitting",
			"expected_profit", opp.ExpectedProfit.String())
		return
	}

	hash, err := p.submitter.Submit(ctx, opp)
	if err != nil {
		trace.Logger().Error("submission failed", "err", err)
		return
	}
	p.metrics.OpportunitiesSubmitted.Inc()
	trace.Logger().Info("opportunity submitted", "tx_hash", hash.Hex())
}

// profitToFloat converts a wei-denominated uint256 profit to a float64
// for histogram observation; precision loss above 2^53 is acceptable
// since the histogram only needs magnitude buckets.
func profitToFloat(profit *uint256.Int) float64 {
	if profit == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(profit.ToBig()).Float64()
	return f
}

var errNoProfit = errNoProfitErr("pipeline: optimizer found no profitable quantity")

type errNoProfitErr string

func (e errNoProfitErr) Error() string { return string(e) }
