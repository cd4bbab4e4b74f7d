// Package executor implements the incremental EVM executor (C4): it
// keeps a running post-state up to the current flashblock and produces a
// StateSnapshot after each one, resetting whenever a new block begins.
package executor

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/flashline/searcher/chainstate"
	"github.com/flashline/searcher/evmtypes"
	"github.com/flashline/searcher/flashblocks"
)

// Executor replays flashblock transactions over a LayeredCache and
// exports a StateSnapshot after each one.
type Executor struct {
	evm    evmtypes.ChainEvm
	source evmtypes.StateSource
	log    log.Logger

	currentBlock   uint64
	currentBaseFee *big.Int
	cache          *chainstate.LayeredCache
	scanCounter    atomic.Uint64
}

// New creates an Executor against the given ChainEvm and StateSource.
func New(evm evmtypes.ChainEvm, source evmtypes.StateSource, logger log.Logger) *Executor {
	if logger == nil {
		logger = log.Root()
	}
	return &Executor{evm: evm, source: source, log: logger}
}

// Process implements the C4 processing contract for one flashblock
// event: re-initializing on a new block, executing every transaction in
// order, committing successful diffs, and exporting a fresh snapshot.
func (e *Executor) Process(ctx context.Context, event *flashblocks.FlashblockEvent) (*chainstate.StateSnapshot, error) {
	if event.BlockNumber != e.currentBlock || e.cache == nil {
		if err := e.resetForBlock(ctx, event); err != nil {
			return nil, fmt.Errorf("reset for block %d: %w", event.BlockNumber, err)
		}
	}

	for i, tx := range event.Transactions {
		if err := e.executeOne(ctx, tx); err != nil {
			e.log.Warn("executor: transaction failed, not committed", "block", event.BlockNumber, "index", event.Index, "tx", i, "err", err)
		}
	}

	scanID := fmt.Sprintf("%d:%d:%d", event.BlockNumber, event.Index, e.scanCounter.Add(1))
	snap := chainstate.NewStateSnapshot(event.BlockNumber, event.Index, e.currentBaseFee, scanID)
	snap.Transactions = event.Transactions
	e.cache.ExportSnapshot(snap)
	return snap, nil
}

// CloneCache returns a private copy-on-write overlay seeded from the
// executor's current post-flashblock state, for a worker to mutate
// without affecting the executor or any sibling worker (§5: "Layered
// cache: never shared — each worker clones").
func (e *Executor) CloneCache() *chainstate.LayeredCache {
	return e.cache.Clone()
}

// resetForBlock re-initializes the executor's state for a new block:
// fresh StateReader from the canonical node, fresh empty LayeredCache.
func (e *Executor) resetForBlock(ctx context.Context, event *flashblocks.FlashblockEvent) error {
	reader, err := e.source.ReaderAt(ctx, event.BlockNumber)
	if err != nil {
		return fmt.Errorf("reader at block %d: %w", event.BlockNumber, err)
	}
	header, err := e.source.HeaderByNumber(ctx, event.BlockNumber)
	if err != nil {
		return fmt.Errorf("header at block %d: %w", event.BlockNumber, err)
	}

	e.currentBlock = event.BlockNumber
	e.currentBaseFee = header.BaseFee
	e.cache = chainstate.NewLayeredCache(reader)
	return nil
}

// executeOne runs a single transaction via ChainEvm and, on success,
// commits its StateDiff into the cache. A revert or halt leaves the
// cache untouched for that transaction while still allowing later
// transactions in the same flashblock to execute and commit.
func (e *Executor) executeOne(ctx context.Context, tx *types.Transaction) error {
	signer := senderOf(tx)
	var to *common.Address
	if tx.To() != nil {
		t := *tx.To()
		to = &t
	}

	env := evmtypes.BlockEnv{
		Number:    e.currentBlock,
		BaseFee:   e.currentBaseFee,
		GasLimit:  tx.Gas(),
	}
	msg := evmtypes.CallMsg{
		From:     signer,
		To:       to,
		Value:    tx.Value(),
		Gas:      tx.Gas(),
		GasPrice: effectiveGasPrice(tx, e.currentBaseFee),
		Data:     tx.Data(),
	}

	outcome, diff, err := e.evm.Execute(ctx, env, msg, currentReader(e), nil)
	if err != nil {
		return err
	}
	if outcome.Reverted || outcome.Err != nil {
		return fmt.Errorf("reverted or halted: %v", outcome.Err)
	}
	e.cache.ApplyDiff(diff)
	return nil
}

func currentReader(e *Executor) evmtypes.StateReader {
	return cacheReader{e.cache}
}

// cacheReader adapts the LayeredCache to the StateReader interface so
// ChainEvm implementations can read through the in-flight overlay
// rather than the raw canonical reader.
type cacheReader struct {
	cache *chainstate.LayeredCache
}

func (r cacheReader) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	info, err := r.cache.GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	return info.Balance, nil
}

func (r cacheReader) GetNonce(ctx context.Context, addr common.Address) (uint64, error) {
	info, err := r.cache.GetAccount(ctx, addr)
	if err != nil {
		return 0, err
	}
	return info.Nonce, nil
}

func (r cacheReader) GetCode(ctx context.Context, addr common.Address) ([]byte, error) {
	return r.cache.GetCode(ctx, addr)
}

func (r cacheReader) GetCodeHash(ctx context.Context, addr common.Address) (common.Hash, error) {
	info, err := r.cache.GetAccount(ctx, addr)
	if err != nil {
		return common.Hash{}, err
	}
	return info.CodeHash, nil
}

func (r cacheReader) GetState(ctx context.Context, addr common.Address, key common.Hash) (common.Hash, error) {
	return r.cache.GetStorage(ctx, addr, key)
}

func senderOf(tx *types.Transaction) common.Address {
	signer := types.LatestSignerForChainID(tx.ChainId())
	addr, err := types.Sender(signer, tx)
	if err != nil {
		return common.Address{}
	}
	return addr
}

func effectiveGasPrice(tx *types.Transaction, baseFee *big.Int) *big.Int {
	if tx.Type() == types.DynamicFeeTxType && baseFee != nil {
		tip := tx.GasTipCap()
		feeCap := tx.GasFeeCap()
		price := new(big.Int).Add(baseFee, tip)
		if price.Cmp(feeCap) > 0 {
			price = feeCap
		}
		return price
	}
	return tx.GasPrice()
}
