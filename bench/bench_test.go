package bench

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/flashline/searcher/evmtypes"
	"github.com/flashline/searcher/evmtypes/evmfake"
	"github.com/flashline/searcher/optimize"
	"github.com/flashline/searcher/strategy"
)

func probeResult(qty uint64, profit int64, tests uint64) []byte {
	out := make([]byte, 96)
	qtyWord := uint256.NewInt(qty).Bytes32()
	copy(out[0:32], qtyWord[:])
	profitBytes := big.NewInt(profit).Bytes()
	copy(out[64-len(profitBytes):64], profitBytes)
	testsWord := uint256.NewInt(tests).Bytes32()
	copy(out[64:96], testsWord[:])
	return out
}

func TestHarnessRunTimesEachIteration(t *testing.T) {
	store := evmfake.NewStore()
	target := common.HexToAddress("0xdeadbeef")
	store.Accounts[target] = evmfake.Account{Code: []byte{0x60, 0x80}}
	source := evmfake.NewSource(store)

	evm := &evmfake.Evm{ProbeResult: probeResult(10, 5_000_000_000_000, 3)}

	h := New(evm, source)

	env := evmtypes.BlockEnv{Number: 1, BaseFee: big.NewInt(1)}
	params := optimize.GradientParams{
		InitialQty: uint256.NewInt(1),
		LowerBound: uint256.NewInt(1),
		UpperBound: uint256.NewInt(1),
		Target:     target,
		DataFormat: strategy.DataFormatShort,
	}

	result, err := h.Run(context.Background(), 1, env, params, true, 5)
	require.NoError(t, err)
	require.Equal(t, 5, result.Iterations)
	require.Len(t, result.Timings, 5)
	require.GreaterOrEqual(t, int64(result.Mean()), int64(0))
}

func TestHarnessRunZeroIterationsMeanIsZero(t *testing.T) {
	store := evmfake.NewStore()
	source := evmfake.NewSource(store)
	evm := &evmfake.Evm{}

	h := New(evm, source)
	params := optimize.GradientParams{
		InitialQty: uint256.NewInt(1),
		LowerBound: uint256.NewInt(1),
		UpperBound: uint256.NewInt(1),
		Target:     common.HexToAddress("0x01"),
		DataFormat: strategy.DataFormatShort,
	}

	result, err := h.Run(context.Background(), 1, evmtypes.BlockEnv{Number: 1, BaseFee: big.NewInt(1)}, params, false, 0)
	require.NoError(t, err)
	require.Equal(t, 0, int(result.Mean()))
}
