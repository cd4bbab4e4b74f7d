package optimize

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/flashline/searcher/chainstate"
	"github.com/flashline/searcher/evmtypes"
	"github.com/flashline/searcher/evmtypes/evmfake"
	"github.com/flashline/searcher/strategy"
)

func TestEncodeCalldataShortRoundTrip(t *testing.T) {
	q := uint256.NewInt(0x00abcdef)
	calldata := EncodeCalldata(strategy.DataFormatShort, q)
	require.Len(t, calldata, 4)
	require.Equal(t, byte(0x00), calldata[0])

	got := roundQtyMod24(q)
	require.Equal(t, uint32(0x00abcdef), got&ShortFormatMask)
	require.Equal(t, calldata[1:], []byte{0xab, 0xcd, 0xef})
}

func TestEncodeCalldataLong(t *testing.T) {
	q := uint256.NewInt(42)
	calldata := EncodeCalldata(strategy.DataFormatLong, q)
	require.Len(t, calldata, 33)
	require.Equal(t, byte(0x00), calldata[0])
	require.Equal(t, byte(42), calldata[32])
}

func TestDecodeSignedProfitPositive(t *testing.T) {
	word := make([]byte, 32)
	word[31] = 100
	got := DecodeSignedProfit(word)
	require.Equal(t, big.NewInt(100), got)
}

func TestDecodeSignedProfitNegative(t *testing.T) {
	// -1 as 256-bit two's complement is all 0xff.
	word := make([]byte, 32)
	for i := range word {
		word[i] = 0xff
	}
	got := DecodeSignedProfit(word)
	require.Equal(t, big.NewInt(-1), got)
}

func TestDecodeSignedProfitShortDataIsZero(t *testing.T) {
	got := DecodeSignedProfit([]byte{0x01, 0x02})
	require.Equal(t, big.NewInt(0), got)
}

func TestTwosComplementRoundTrip(t *testing.T) {
	cases := []*big.Int{
		big.NewInt(0),
		big.NewInt(12345),
		big.NewInt(-12345),
		new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 126)),
	}
	for _, p := range cases {
		word := encodeTwosComplement(p)
		got := DecodeSignedProfit(word)
		require.Equal(t, p, got)
	}
}

// encodeTwosComplement is the test-side inverse of DecodeSignedProfit,
// used only to validate the round-trip property from spec §8.
func encodeTwosComplement(p *big.Int) []byte {
	mod := new(big.Int).Lsh(big.NewInt(1), 256)
	v := new(big.Int).Set(p)
	if v.Sign() < 0 {
		v.Add(v, mod)
	}
	word := make([]byte, 32)
	b := v.Bytes()
	copy(word[32-len(b):], b)
	return word
}

func TestAdjustBoundsForGasHighUsageHalves(t *testing.T) {
	filtered := uint64(TargetGas * 3)
	params := GradientParams{
		InitialQty:  uint256.NewInt(100),
		UpperBound:  uint256.NewInt(100 * 100), // 100x multiplier
		FilteredGas: &filtered,
	}
	adjusted, multiplier := AdjustBoundsForGas(params)
	// 100 * 0.5 = 50x, clamped into [10,1000] -> 50
	expected := new(uint256.Int).Mul(uint256.NewInt(100), uint256.NewInt(50))
	require.Equal(t, expected, adjusted.UpperBound)
	require.Equal(t, uint64(50), multiplier)
}

func TestAdjustBoundsForGasLowUsageClampsTo1000(t *testing.T) {
	filtered := uint64(TargetGas / 10)
	params := GradientParams{
		InitialQty:  uint256.NewInt(1),
		UpperBound:  uint256.NewInt(800),
		FilteredGas: &filtered,
	}
	adjusted, multiplier := AdjustBoundsForGas(params)
	require.Equal(t, uint256.NewInt(1000), adjusted.UpperBound)
	require.Equal(t, uint64(1000), multiplier)
}

func TestAdjustBoundsForGasNoFilterIsNoOp(t *testing.T) {
	params := GradientParams{
		InitialQty: uint256.NewInt(1),
		UpperBound: uint256.NewInt(800),
	}
	adjusted, multiplier := AdjustBoundsForGas(params)
	require.Equal(t, params.UpperBound, adjusted.UpperBound)
	require.Equal(t, uint64(800), multiplier)
}

func TestOptimizeZeroMaxIterationsNeverInvokesProber(t *testing.T) {
	store := evmfake.NewStore()
	target := common.HexToAddress("0xdeadbeef")
	store.Accounts[target] = evmfake.Account{Code: []byte{0x60, 0x80}}

	evm := &evmfake.Evm{ProbeResult: make([]byte, 96)}
	o := New(evm, nil)
	o.SetMaxIterations(0)

	source := evmfake.NewSource(store)
	reader, err := source.ReaderAt(context.Background(), 1)
	require.NoError(t, err)
	cache := chainstate.NewLayeredCache(reader)
	params := GradientParams{
		InitialQty: uint256.NewInt(1),
		LowerBound: uint256.NewInt(1),
		UpperBound: uint256.NewInt(1),
		Target:     target,
		DataFormat: strategy.DataFormatShort,
	}

	out, err := o.Optimize(context.Background(), evmtypes.BlockEnv{Number: 1, BaseFee: big.NewInt(1)}, params, cache, true)
	require.NoError(t, err)
	require.Equal(t, 0, out.Delta.Sign())
	require.Equal(t, params.InitialQty, out.QtyIn)

	code, err := cache.GetCode(context.Background(), ProberAddress)
	require.NoError(t, err)
	require.Empty(t, code, "prober must never be injected when the iteration budget is zero")
}

func TestApplyIIRFilterFirstObservation(t *testing.T) {
	got := applyIIRFilter(1000, nil)
	require.Equal(t, uint64(1000), got)
}

func TestApplyIIRFilterConverges(t *testing.T) {
	var prior *uint64
	val := uint64(1_000_000)
	for i := 0; i < 500; i++ {
		next := applyIIRFilter(val, prior)
		prior = &next
	}
	require.InDelta(t, float64(val), float64(*prior), 1.0)
}

func TestDecodeBinarySearchResultTooShort(t *testing.T) {
	_, _, _, err := decodeBinarySearchResult([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvariantBroken)
}

func TestProberCodeHashMatchesBytecode(t *testing.T) {
	require.NotEqual(t, [32]byte{}, ProberCodeHash())
	require.Greater(t, len(ProberRuntimeBytecode()), 0)
	require.Equal(t, crypto.Keccak256Hash(ProberRuntimeBytecode()), ProberCodeHash())
}
