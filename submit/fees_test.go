package submit

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestComputePriorityFeeFallbackWhenNoGasUsed(t *testing.T) {
	fee := ComputePriorityFee(uint256.NewInt(1_000_000), nil, 0)
	require.Equal(t, big.NewInt(FallbackPriorityFeeWei), fee)
}

func TestComputePriorityFeeZeroGasUsedFallsBack(t *testing.T) {
	zero := uint64(0)
	fee := ComputePriorityFee(uint256.NewInt(1_000_000), &zero, 0)
	require.Equal(t, big.NewInt(FallbackPriorityFeeWei), fee)
}

func TestComputePriorityFeeCapsAtOneGwei(t *testing.T) {
	gasUsed := uint64(1)
	// Huge profit, tiny gas: would exceed 1 gwei before the jitter.
	fee := ComputePriorityFee(uint256.NewInt(1_000_000_000_000_000_000), &gasUsed, 0)
	require.True(t, fee.Cmp(big.NewInt(Gwei)) <= 0)
}

func TestComputePriorityFeeNeverNegative(t *testing.T) {
	gasUsed := uint64(1_000_000_000)
	fee := ComputePriorityFee(uint256.NewInt(1), &gasUsed, 0)
	require.True(t, fee.Sign() >= 0)
}

func TestApplyMultiplierDefaultIsNoOp(t *testing.T) {
	fee := applyMultiplier(big.NewInt(1000), 0)
	require.Equal(t, big.NewInt(1000), fee)
}

func TestApplyMultiplierHalves(t *testing.T) {
	fee := applyMultiplier(big.NewInt(1000), 5000)
	require.Equal(t, big.NewInt(500), fee)
}

func TestComputeMaxFeePerGas(t *testing.T) {
	got := ComputeMaxFeePerGas(big.NewInt(100), big.NewInt(7))
	require.Equal(t, big.NewInt(207), got)
}

func TestResolveGasLimitPrefersBundle(t *testing.T) {
	got := ResolveGasLimit(500_000, nil, 0, 10)
	require.Equal(t, uint64(500_000), got)
}

func TestResolveGasLimitFallsBackToSimulated(t *testing.T) {
	gasUsed := uint64(100_000)
	got := ResolveGasLimit(0, &gasUsed, 0, 10)
	require.Equal(t, uint64(120_000), got)
}

func TestResolveGasLimitFallsBackToConfigDefault(t *testing.T) {
	got := ResolveGasLimit(0, nil, 250_000, 10)
	require.Equal(t, uint64(250_000), got)
}

func TestResolveGasLimitCalldataHeuristic(t *testing.T) {
	require.Equal(t, uint64(21_000), ResolveGasLimit(0, nil, 0, 4))
	require.Equal(t, uint64(100_000), ResolveGasLimit(0, nil, 0, 50))
	require.Equal(t, uint64(200_000), ResolveGasLimit(0, nil, 0, 400))
	require.Equal(t, uint64(300_000), ResolveGasLimit(0, nil, 0, 4000))
}

func TestRecognizedRaceByCode(t *testing.T) {
	require.True(t, recognizedRace(&RPCError{Code: -32000, Message: "boom"}))
}

func TestRecognizedRaceByMessage(t *testing.T) {
	require.True(t, recognizedRace(&RPCError{Code: -1, Message: "already known"}))
	require.True(t, recognizedRace(&RPCError{Code: -1, Message: "nonce too low"}))
	require.True(t, recognizedRace(&RPCError{Code: -1, Message: "replacement transaction underpriced"}))
}

func TestRecognizedRaceRejectsOther(t *testing.T) {
	require.False(t, recognizedRace(&RPCError{Code: -1, Message: "insufficient funds"}))
	require.False(t, recognizedRace(nil))
}
