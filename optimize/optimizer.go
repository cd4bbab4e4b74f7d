package optimize

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/flashline/searcher/chainstate"
	"github.com/flashline/searcher/evmtypes"
	"github.com/flashline/searcher/strategy"
	"github.com/holiman/uint256"
)

// TargetGas is the gas budget the adaptive bound logic tunes against
// (§4.C7 adaptive bounds table).
const TargetGas = 35_000_000

// MaxIterations is the prober's internal iteration budget: tuned so one
// EVM call fits comfortably inside the probing gas ceiling.
const MaxIterations = 40

// ShortFormatMask caps short-format calldata to the low 3 bytes
// (0x00ffffff), per §4.C7.
const ShortFormatMask = 0x00ffffff

// ErrInvariantBroken is returned when the prober's return data cannot be
// decoded — an OptimizerInvariantBroken per §7's error table.
var ErrInvariantBroken = errors.New("optimize: prober return decode failure")

// GradientParams is the per-task input to the optimizer (§3 data model).
type GradientParams struct {
	InitialQty       *uint256.Int
	LowerBound       *uint256.Int
	UpperBound       *uint256.Int
	Seed             *uint256.Int
	Target           common.Address
	CalldataTemplate []byte
	FilteredGas      *uint64
	DataFormat       strategy.DataFormat
}

// OptimizeOutput is the optimizer's output (§3 data model).
type OptimizeOutput struct {
	QtyIn               *uint256.Int
	Delta               *big.Int // signed profit in wei, clamped to [-2^127, 2^127)
	CalldataUsed        []byte
	GasUsed             uint64
	FilteredGas         *uint64
	EffectiveMultiplier uint64 // adaptive upper-bound multiplier applied this call (§4.C7)
}

var binarySearchSelector = crypto.Keccak256([]byte("binarySearch(address,uint256,uint256,uint256,uint256)"))[:4]

// AdjustBoundsForGas applies the adaptive upper-bound table from §4.C7
// before invoking the prober: the multiplier is scaled based on how the
// last observed filtered gas compares to TargetGas, then clamped to
// [10x, 1000x] of the initial quantity. It returns the resulting
// effective multiplier alongside the adjusted params, for the caller to
// persist in the gas filter (§4.C7: "Store {gas, multiplier}").
func AdjustBoundsForGas(params GradientParams) (GradientParams, uint64) {
	if params.InitialQty == nil || params.InitialQty.IsZero() {
		return params, 0
	}
	currentMultiplier := new(uint256.Int).Div(params.UpperBound, params.InitialQty)

	if params.FilteredGas == nil {
		return params, currentMultiplier.Uint64()
	}
	filtered := *params.FilteredGas

	var adjustment float64
	switch {
	case filtered > TargetGas*2:
		adjustment = 0.5
	case filtered > TargetGas:
		adjustment = 0.8
	case filtered < TargetGas/2:
		adjustment = 1.5
	default:
		adjustment = 1.0
	}

	newMultiplier := uint64(float64(currentMultiplier.Uint64()) * adjustment)
	if newMultiplier < 10 {
		newMultiplier = 10
	}
	if newMultiplier > 1000 {
		newMultiplier = 1000
	}

	newUpper := new(uint256.Int).Mul(params.InitialQty, uint256.NewInt(newMultiplier))
	params.UpperBound = newUpper
	return params, newMultiplier
}

// EncodeCalldata encodes a candidate quantity per the config's data
// format (§4.C7 probe semantics): short is a zero selector byte
// followed by the low 3 bytes of q big-endian; long is a zero selector
// byte followed by the full 32-byte word.
func EncodeCalldata(format strategy.DataFormat, q *uint256.Int) []byte {
	if format == strategy.DataFormatLong {
		word := q.Bytes32()
		out := make([]byte, 0, 33)
		out = append(out, 0x00)
		out = append(out, word[:]...)
		return out
	}
	word := q.Bytes32()
	out := make([]byte, 0, 4)
	out = append(out, 0x00)
	out = append(out, word[29:32]...)
	return out
}

// DecodeSignedProfit decodes a 32-byte big-endian two's-complement word
// into a signed big.Int, clamped to the int128 range. Revert data
// shorter than 32 bytes yields a zero profit per §4.C7.
func DecodeSignedProfit(data []byte) *big.Int {
	if len(data) < 32 {
		return big.NewInt(0)
	}
	word := data[:32]
	v := new(big.Int).SetBytes(word)
	if word[0]&0x80 != 0 {
		// Negative: v - 2^256.
		mod := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, mod)
	}
	return clampInt128(v)
}

var (
	int128Min = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	int128Max = new(big.Int).Lsh(big.NewInt(1), 127) // exclusive upper bound per spec range [-2^127, 2^127)
)

func clampInt128(v *big.Int) *big.Int {
	if v.Cmp(int128Min) < 0 {
		return new(big.Int).Set(int128Min)
	}
	if v.Cmp(int128Max) >= 0 {
		return new(big.Int).Sub(int128Max, big.NewInt(1))
	}
	return v
}

// Optimizer drives the single-call batched binary search.
type Optimizer struct {
	evm           evmtypes.ChainEvm
	log           log.Logger
	maxIterations uint64
}

// New creates an Optimizer against the given ChainEvm, with the
// default MaxIterations budget.
func New(evm evmtypes.ChainEvm, logger log.Logger) *Optimizer {
	if logger == nil {
		logger = log.Root()
	}
	return &Optimizer{evm: evm, log: logger, maxIterations: MaxIterations}
}

// SetMaxIterations overrides the prober's iteration budget, letting
// callers exercise the §8 boundary where a zero budget means the
// prober is never invoked.
func (o *Optimizer) SetMaxIterations(n uint64) {
	o.maxIterations = n
}

// noOp builds the fallback output used by every edge case that must not
// invoke the prober: initial quantity, zero delta, the caller-supplied
// calldata template, and the filtered gas value unchanged.
func noOp(params GradientParams, effectiveMultiplier uint64) OptimizeOutput {
	return OptimizeOutput{
		QtyIn:               params.InitialQty,
		Delta:               big.NewInt(0),
		CalldataUsed:        params.CalldataTemplate,
		GasUsed:             0,
		FilteredGas:         params.FilteredGas,
		EffectiveMultiplier: effectiveMultiplier,
	}
}

// Optimize runs the profit-search optimizer for a single template
// against a private cloned overlay. The cache passed in is mutated: the
// prober contract and a funded bot account are injected via code/account
// override, never touching canonical state.
func (o *Optimizer) Optimize(ctx context.Context, env evmtypes.BlockEnv, params GradientParams, cache *chainstate.LayeredCache, targetHasCode bool) (OptimizeOutput, error) {
	params, effectiveMultiplier := AdjustBoundsForGas(params)

	if params.UpperBound.Cmp(params.LowerBound) < 0 {
		return noOp(params, effectiveMultiplier), nil
	}
	if o.maxIterations == 0 {
		return noOp(params, effectiveMultiplier), nil
	}
	if !targetHasCode {
		return noOp(params, effectiveMultiplier), nil
	}

	injectProber(cache)

	calldata, err := encodeBinarySearchCall(params, o.maxIterations)
	if err != nil {
		return noOp(params, effectiveMultiplier), err
	}

	msg := evmtypes.CallMsg{
		From:     BotAddress,
		To:       &ProberAddress,
		Value:    big.NewInt(0),
		Gas:      1_000_000_000,
		GasPrice: big.NewInt(0),
		Data:     calldata,
	}
	proberEnv := env
	proberEnv.GasLimit = 2_000_000_000
	proberEnv.BaseFee = big.NewInt(0)

	outcome, _, err := o.evm.Execute(ctx, proberEnv, msg, cacheReaderAdapter{cache}, nil)
	if err != nil {
		o.log.Warn("optimizer: prober EVM call failed", "target", params.Target, "err", err)
		return noOp(params, effectiveMultiplier), nil
	}

	switch {
	case outcome.Reverted:
		o.log.Warn("optimizer: prober contract reverted", "target", params.Target, "data_hex", hexString(outcome.ReturnData))
		return noOp(params, effectiveMultiplier), nil
	case outcome.Err != nil:
		return noOp(params, effectiveMultiplier), nil
	}

	bestQty, bestProfit, _, err := decodeBinarySearchResult(outcome.ReturnData)
	if err != nil {
		o.log.Error("optimizer: prober return decode failed", "target", params.Target, "err", err)
		return OptimizeOutput{}, ErrInvariantBroken
	}

	newFiltered := applyIIRFilter(outcome.GasUsed, params.FilteredGas)
	calldataUsed := EncodeCalldata(params.DataFormat, bestQty)

	return OptimizeOutput{
		QtyIn:               bestQty,
		Delta:               bestProfit,
		CalldataUsed:        calldataUsed,
		GasUsed:             200_000, // placeholder; refined by the post-processor's re-simulation
		FilteredGas:         &newFiltered,
		EffectiveMultiplier: effectiveMultiplier,
	}, nil
}

// applyIIRFilter is the post-optimization gas filter update from §4.C7:
// filtered_new = alpha*gas_used + (1-alpha)*filtered_old, alpha = 0.05.
const filterAlpha = 0.05

func applyIIRFilter(gasUsed uint64, prior *uint64) uint64 {
	if prior == nil {
		return gasUsed
	}
	return uint64(filterAlpha*float64(gasUsed) + (1-filterAlpha)*float64(*prior))
}

func injectProber(cache *chainstate.LayeredCache) {
	code := ProberRuntimeBytecode()
	codeHash := ProberCodeHash()
	cache.SetCode(ProberAddress, codeHash, code)
	cache.SetAccount(ProberAddress, chainstate.AccountInfo{
		Balance:  big.NewInt(0),
		Nonce:    1,
		CodeHash: codeHash,
		Code:     code,
	})
	cache.SetAccount(BotAddress, chainstate.AccountInfo{
		Balance:  big.NewInt(BotFundingWei),
		Nonce:    0,
		CodeHash: chainstate.EmptyCodeHash,
	})
}

type cacheReaderAdapter struct {
	cache *chainstate.LayeredCache
}

func (r cacheReaderAdapter) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	info, err := r.cache.GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	return info.Balance, nil
}

func (r cacheReaderAdapter) GetNonce(ctx context.Context, addr common.Address) (uint64, error) {
	info, err := r.cache.GetAccount(ctx, addr)
	if err != nil {
		return 0, err
	}
	return info.Nonce, nil
}

func (r cacheReaderAdapter) GetCode(ctx context.Context, addr common.Address) ([]byte, error) {
	return r.cache.GetCode(ctx, addr)
}

func (r cacheReaderAdapter) GetCodeHash(ctx context.Context, addr common.Address) (common.Hash, error) {
	info, err := r.cache.GetAccount(ctx, addr)
	if err != nil {
		return common.Hash{}, err
	}
	return info.CodeHash, nil
}

func (r cacheReaderAdapter) GetState(ctx context.Context, addr common.Address, key common.Hash) (common.Hash, error) {
	return r.cache.GetStorage(ctx, addr, key)
}

// encodeBinarySearchCall ABI-encodes
// binarySearch(address,uint256,uint256,uint256,uint256).
func encodeBinarySearchCall(params GradientParams, maxIterations uint64) ([]byte, error) {
	out := make([]byte, 0, 4+5*32)
	out = append(out, binarySearchSelector...)
	out = append(out, leftPadAddress(params.Target)...)
	out = append(out, params.LowerBound.Bytes32()[:]...)
	out = append(out, params.UpperBound.Bytes32()[:]...)
	out = append(out, uint256.NewInt(maxIterations).Bytes32()[:]...)
	out = append(out, params.InitialQty.Bytes32()[:]...)
	return out, nil
}

func leftPadAddress(addr common.Address) []byte {
	word := make([]byte, 32)
	copy(word[12:], addr[:])
	return word
}

// decodeBinarySearchResult decodes the ABI-encoded
// (uint256 bestQuantity, int256 bestProfit, uint256 testsPerformed)
// tuple the prober returns.
func decodeBinarySearchResult(data []byte) (*uint256.Int, *big.Int, *uint256.Int, error) {
	if len(data) < 96 {
		return nil, nil, nil, ErrInvariantBroken
	}
	bestQty := new(uint256.Int).SetBytes(data[0:32])
	bestProfit := DecodeSignedProfit(data[32:64])
	testsPerformed := new(uint256.Int).SetBytes(data[64:96])
	return bestQty, bestProfit, testsPerformed, nil
}

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+len(b)*2)
	out[0], out[1] = '0', 'x'
	for i, c := range b {
		out[2+i*2] = hextable[c>>4]
		out[3+i*2] = hextable[c&0x0f]
	}
	return string(out)
}

// roundQtyMod24 is used by tests verifying the short-format calldata
// round-trip property from §8: decoding the last 3 bytes of a generated
// calldata as big-endian equals q mod 2^24.
func roundQtyMod24(q *uint256.Int) uint32 {
	word := q.Bytes32()
	return binary.BigEndian.Uint32(append([]byte{0}, word[29:32]...))
}
