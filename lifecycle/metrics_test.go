package lifecycle

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/flashline/searcher/bench"
	"github.com/flashline/searcher/evmtypes"
	"github.com/flashline/searcher/evmtypes/evmfake"
	"github.com/flashline/searcher/optimize"
	"github.com/flashline/searcher/strategy"
)

func TestStartTimerRecordsObservation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	timer := m.StartTimer(StageOptimizer)
	time.Sleep(time.Millisecond)
	d := timer.Stop()
	require.Greater(t, d, time.Duration(0))

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	require.True(t, foundHistogramSample(metricFamilies, "mev_searcher_stage_duration_seconds"))
}

func foundHistogramSample(families []*dto.MetricFamily, name string) bool {
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if metric.GetHistogram().GetSampleCount() > 0 {
				return true
			}
		}
	}
	return false
}

func TestNewScanTraceTagsLogger(t *testing.T) {
	trace := NewScanTrace("1:2:3", nil)
	require.Equal(t, "1:2:3", trace.ScanID)
	require.NotNil(t, trace.Logger())
}

// TestStartTimerRecordsBenchHarnessIterations drives the synthetic-load
// harness for a few iterations and records each one's optimizer timing
// into the StageDuration histogram that StartTimer feeds, confirming the
// histogram accumulates one sample per iteration.
func TestStartTimerRecordsBenchHarnessIterations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	store := evmfake.NewStore()
	target := common.HexToAddress("0xdeadbeef")
	store.Accounts[target] = evmfake.Account{Code: []byte{0x60, 0x80}}
	source := evmfake.NewSource(store)
	evm := &evmfake.Evm{ProbeResult: make([]byte, 96)}

	h := bench.New(evm, source)
	env := evmtypes.BlockEnv{Number: 1, BaseFee: big.NewInt(1)}
	params := optimize.GradientParams{
		InitialQty: uint256.NewInt(1),
		LowerBound: uint256.NewInt(1),
		UpperBound: uint256.NewInt(1),
		Target:     target,
		DataFormat: strategy.DataFormatShort,
	}

	result, err := h.Run(context.Background(), 1, env, params, true, 3)
	require.NoError(t, err)

	for _, timing := range result.Timings {
		m.StageDuration.WithLabelValues(StageOptimizer).Observe(timing.Optimize.Seconds())
	}

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	require.True(t, foundHistogramSample(metricFamilies, "mev_searcher_stage_duration_seconds"))

	var samples uint64
	for _, f := range metricFamilies {
		if f.GetName() != "mev_searcher_stage_duration_seconds" {
			continue
		}
		for _, metric := range f.GetMetric() {
			samples += metric.GetHistogram().GetSampleCount()
		}
	}
	require.Len(t, result.Timings, 3)
	require.Equal(t, uint64(3), samples)
}
