// Package postprocess implements the opportunity post-processor (C9):
// given a positive-profit optimizer result, it re-simulates with real
// calldata to get accurate gas usage, optionally checks an on-chain
// token balance, bribe-encodes the transaction value, and builds the
// unsigned EIP-1559 bundle handed to submission.
package postprocess

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/flashline/searcher/chainstate"
	"github.com/flashline/searcher/evmtypes"
	"github.com/flashline/searcher/optimize"
	"github.com/flashline/searcher/strategy"
	"github.com/holiman/uint256"
)

// DefaultSimulatedGas is used when re-simulation fails (§4.C9 step 1).
const DefaultSimulatedGas = 200_000

// DefaultBalanceCheckValue is used when the optional balanceOf check
// fails (§4.C9 step 2).
const DefaultBalanceCheckValue = 500

// GasLimit and gas price offset for the outgoing unsigned bundle
// (§4.C9 step 4).
const (
	BundleGasLimit       = 4_000_000
	BundleGasPriceOffset = 100_000
)

// BundleTx is the unsigned transaction shape built by the
// post-processor; the signer fills in the real nonce (§3 data model).
type BundleTx struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	Input    []byte
	GasLimit uint64
	GasPrice *big.Int
	Nonce    uint64
}

// Bundle is the bundle carried inside a MevOpportunity.
type Bundle struct {
	BlockNumber  uint64
	Transactions []BundleTx
}

// MevOpportunity is the bus record emitted to C10 (§3 data model).
type MevOpportunity struct {
	BlockNumber           uint64
	FlashblockIndex       uint32
	Strategy              string
	Bundle                Bundle
	ExpectedProfit        *uint256.Int
	SimulatedGasUsed      *uint64
	LastFlashblockTxHash  *common.Hash
	PriorityFeeMultiplier uint32
	ScanID                string
}

var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31} // balanceOf(address)

// Processor runs the C9 pipeline.
type Processor struct {
	evm evmtypes.ChainEvm
	log log.Logger
}

// New creates a Processor against the given ChainEvm.
func New(evm evmtypes.ChainEvm, logger log.Logger) *Processor {
	if logger == nil {
		logger = log.Root()
	}
	return &Processor{evm: evm, log: logger}
}

// Process implements §4.C9. It is only ever called when the optimizer
// returned delta > 0; the caller is responsible for the threshold
// decision (log-only below threshold, proceed to C10 above it).
func (p *Processor) Process(ctx context.Context, env evmtypes.BlockEnv, cache *chainstate.LayeredCache, config strategy.ProcessorConfig, out optimize.OptimizeOutput, snapshot *chainstate.StateSnapshot) MevOpportunity {
	gasUsedActual := p.resimulate(ctx, env, cache, config.Target, out.CalldataUsed)
	balanceCheckValue := p.checkBalance(ctx, env, cache, config.CheckBalanceOf)

	value := encodeBribeValue(gasUsedActual, balanceCheckValue)
	baseFee := snapshot.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	gasPrice := new(big.Int).Add(baseFee, big.NewInt(BundleGasPriceOffset))

	bundle := Bundle{
		BlockNumber: snapshot.BlockNumber,
		Transactions: []BundleTx{{
			To:       config.Target,
			Value:    value,
			Input:    out.CalldataUsed,
			GasLimit: BundleGasLimit,
			GasPrice: gasPrice,
			Nonce:    0,
		}},
	}

	expectedProfit := new(uint256.Int)
	if out.Delta.Sign() > 0 {
		expectedProfit.SetFromBig(out.Delta)
	}

	return MevOpportunity{
		BlockNumber:           snapshot.BlockNumber,
		FlashblockIndex:       snapshot.FlashblockIndex,
		Strategy:              "Backrun_" + config.Name,
		Bundle:                bundle,
		ExpectedProfit:        expectedProfit,
		SimulatedGasUsed:      &gasUsedActual,
		PriorityFeeMultiplier: config.PriorityFeeMultiplier,
		ScanID:                snapshot.ScanID,
	}
}

// resimulate re-runs the winning calldata with value=0 against the same
// overlay to obtain accurate gas usage (§4.C9 step 1).
func (p *Processor) resimulate(ctx context.Context, env evmtypes.BlockEnv, cache *chainstate.LayeredCache, target common.Address, calldata []byte) uint64 {
	msg := evmtypes.CallMsg{
		From:     optimize.BotAddress,
		To:       &target,
		Value:    big.NewInt(0),
		Gas:      4_000_000,
		GasPrice: big.NewInt(0),
		Data:     calldata,
	}
	outcome, _, err := p.evm.Execute(ctx, env, msg, adapter{cache}, nil)
	if err != nil || outcome.Err != nil {
		p.log.Warn("postprocess: re-simulation failed, using default gas", "target", target, "err", err)
		return DefaultSimulatedGas
	}
	return outcome.GasUsed
}

// checkBalance performs the optional on-chain balanceOf check
// (§4.C9 step 2), returning the low 16 bits of the result.
func (p *Processor) checkBalance(ctx context.Context, env evmtypes.BlockEnv, cache *chainstate.LayeredCache, check *strategy.BalanceCheck) uint64 {
	if check == nil {
		return 0
	}
	calldata := make([]byte, 0, 36)
	calldata = append(calldata, balanceOfSelector...)
	word := make([]byte, 32)
	copy(word[12:], check.Holder[:])
	calldata = append(calldata, word...)

	msg := evmtypes.CallMsg{
		From:     optimize.BotAddress,
		To:       &check.Token,
		Value:    big.NewInt(0),
		Gas:      200_000,
		GasPrice: big.NewInt(0),
		Data:     calldata,
	}
	outcome, _, err := p.evm.Execute(ctx, env, msg, adapter{cache}, nil)
	if err != nil || outcome.Err != nil || outcome.Reverted || len(outcome.ReturnData) < 32 {
		return DefaultBalanceCheckValue
	}
	result := new(big.Int).SetBytes(outcome.ReturnData[:32])
	return result.Uint64() & 0xffff
}

// encodeBribeValue packs (gas_used_actual/10, balance_check_value) into
// the transaction value field per §4.C9 step 3.
func encodeBribeValue(gasUsedActual uint64, balanceCheckValue uint64) *big.Int {
	high := new(big.Int).SetUint64(gasUsedActual / 10)
	high.Lsh(high, 16)
	return high.Or(high, new(big.Int).SetUint64(balanceCheckValue&0xffff))
}

type adapter struct {
	cache *chainstate.LayeredCache
}

func (a adapter) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	info, err := a.cache.GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	return info.Balance, nil
}

func (a adapter) GetNonce(ctx context.Context, addr common.Address) (uint64, error) {
	info, err := a.cache.GetAccount(ctx, addr)
	if err != nil {
		return 0, err
	}
	return info.Nonce, nil
}

func (a adapter) GetCode(ctx context.Context, addr common.Address) ([]byte, error) {
	return a.cache.GetCode(ctx, addr)
}

func (a adapter) GetCodeHash(ctx context.Context, addr common.Address) (common.Hash, error) {
	info, err := a.cache.GetAccount(ctx, addr)
	if err != nil {
		return common.Hash{}, err
	}
	return info.CodeHash, nil
}

func (a adapter) GetState(ctx context.Context, addr common.Address, key common.Hash) (common.Hash, error) {
	return a.cache.GetStorage(ctx, addr, key)
}
