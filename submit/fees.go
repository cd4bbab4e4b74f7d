package submit

import (
	"crypto/rand"
	"math/big"

	"github.com/holiman/uint256"
)

// Gwei is 10^9 wei.
const Gwei = 1_000_000_000

// FallbackPriorityFeeWei is used when simulated gas usage is missing or
// zero (§4.C10 step 3).
const FallbackPriorityFeeWei = 5_000

// JitterCeilingWei bounds the de-collision jitter subtracted from the
// priority fee.
const JitterCeilingWei = 25_000

// BaseFeeMultiplier scales the base fee when computing max_fee_per_gas;
// the teacher's fee estimator uses the same 2x headroom for its fee cap.
const BaseFeeMultiplier = 2

// PriorityFeePercent is the share of expected profit allocated to fees.
const PriorityFeePercent = 5

// priorityFeeMultiplierBase is the fixed-point base for
// ProcessorConfig.PriorityFeeMultiplier (10000 = 1x).
const priorityFeeMultiplierBase = 10_000

// ComputePriorityFee implements §4.C10 step 3.
func ComputePriorityFee(expectedProfit *uint256.Int, simulatedGasUsed *uint64, multiplier uint32) *big.Int {
	if simulatedGasUsed == nil || *simulatedGasUsed == 0 {
		return applyMultiplier(big.NewInt(FallbackPriorityFeeWei), multiplier)
	}

	feeBudget := new(big.Int).Mul(expectedProfit.ToBig(), big.NewInt(PriorityFeePercent))
	feeBudget.Div(feeBudget, big.NewInt(100))

	perGas := new(big.Int).Div(feeBudget, new(big.Int).SetUint64(*simulatedGasUsed))
	if perGas.Cmp(big.NewInt(Gwei)) > 0 {
		perGas = big.NewInt(Gwei)
	}

	jitter, err := rand.Int(rand.Reader, big.NewInt(JitterCeilingWei+1))
	if err != nil {
		jitter = big.NewInt(0)
	}
	perGas.Sub(perGas, jitter)
	if perGas.Sign() < 0 {
		perGas = big.NewInt(0)
	}

	return applyMultiplier(perGas, multiplier)
}

func applyMultiplier(fee *big.Int, multiplier uint32) *big.Int {
	if multiplier == 0 {
		return fee
	}
	scaled := new(big.Int).Mul(fee, big.NewInt(int64(multiplier)))
	return scaled.Div(scaled, big.NewInt(priorityFeeMultiplierBase))
}

// ComputeMaxFeePerGas implements max_fee_per_gas = base_fee * gas_multiplier + priority_fee.
func ComputeMaxFeePerGas(baseFee, priorityFee *big.Int) *big.Int {
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(BaseFeeMultiplier))
	return feeCap.Add(feeCap, priorityFee)
}

// ResolveGasLimit implements the §4.C10 step 4 fallback chain.
func ResolveGasLimit(bundleGasLimit uint64, simulatedGasUsed *uint64, configDefault uint64, calldataLen int) uint64 {
	if bundleGasLimit != 0 {
		return bundleGasLimit
	}
	if simulatedGasUsed != nil && *simulatedGasUsed != 0 {
		return uint64(float64(*simulatedGasUsed) * 1.2)
	}
	if configDefault != 0 {
		return configDefault
	}
	return gasLimitFromCalldataSize(calldataLen)
}

func gasLimitFromCalldataSize(n int) uint64 {
	switch {
	case n <= 4:
		return 21_000
	case n <= 100:
		return 100_000
	case n <= 500:
		return 200_000
	default:
		return 300_000
	}
}
