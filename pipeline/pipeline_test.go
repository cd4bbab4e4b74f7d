package pipeline

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/flashline/searcher/evmtypes/evmfake"
	"github.com/flashline/searcher/flashblocks"
	"github.com/flashline/searcher/gasfilter"
	"github.com/flashline/searcher/lifecycle"
	"github.com/flashline/searcher/strategy"
	"github.com/flashline/searcher/submit"
)

// probeResult builds a scripted binarySearch(...) return value: bestQty,
// bestProfit (signed, 32 bytes), testsPerformed.
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

type nilPubSub struct{}

func (nilPubSub) Publish(context.Context, string) error { return nil }

func newTestSubmitter(t *testing.T, source *evmfake.Source) *submit.Submitter {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallets, err := submit.NewWalletSet([][]byte{crypto.FromECDSA(key)})
	require.NoError(t, err)

	cfg := submit.Config{ChainID: big.NewInt(8453), Policy: submit.WalletPolicyDefault, DefaultGas: 300_000, DryRun: true}
	return submit.New(cfg, wallets, nil, nilPubSub{}, source, log.Root())
}

func TestPipelineProcessEventSubmitsAboveThreshold(t *testing.T) {
	store := evmfake.NewStore()
	target := common.HexToAddress("0xdeadbeef00000000000000000000000000000000")
	monitored := common.HexToAddress("0xaa")
	store.Accounts[target] = evmfake.Account{Code: []byte{0x60, 0x80}}
	store.Accounts[monitored] = evmfake.Account{Balance: big.NewInt(1_000_000)}
	source := evmfake.NewSource(store)

	evm := &evmfake.Evm{ProbeResult: probeResult(10, 5_000_000_000_000, 3)}

	reg := prometheus.NewRegistry()
	metrics := lifecycle.New(reg)

	gf := gasfilter.New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), log.Root())

	submitter := newTestSubmitter(t, source)

	configs := []strategy.ProcessorConfig{{
		Name:              "test-template",
		Target:            target,
		DefaultQty:        uint256.NewInt(1),
		DataFormat:        strategy.DataFormatShort,
		MonitoredAccounts: []common.Address{monitored},
	}}

	threshold := uint256.NewInt(1)
	p := New(evm, source, gf, submitter, configs, threshold, metrics, 5*time.Second, log.Root())

	tx := types.NewTx(&types.LegacyTx{To: &monitored, Value: big.NewInt(1), Gas: 21_000})
	event := &flashblocks.FlashblockEvent{
		BlockNumber:  1,
		Index:        0,
		Transactions: []*types.Transaction{tx},
	}

	err := p.ProcessEvent(context.Background(), event)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	submitted := 0.0
	for _, f := range families {
		if f.GetName() == "mev_searcher_opportunities_submitted_total" {
			submitted = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	require.Equal(t, 1.0, submitted)
}

func TestPipelineProcessEventNoOpOnCleanFlashblock(t *testing.T) {
	store := evmfake.NewStore()
	source := evmfake.NewSource(store)
	evm := &evmfake.Evm{}

	reg := prometheus.NewRegistry()
	metrics := lifecycle.New(reg)
	gf := gasfilter.New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), log.Root())
	submitter := newTestSubmitter(t, source)

	p := New(evm, source, gf, submitter, nil, uint256.NewInt(1), metrics, 5*time.Second, log.Root())

	event := &flashblocks.FlashblockEvent{BlockNumber: 1, Index: 0}
	err := p.ProcessEvent(context.Background(), event)
	require.NoError(t, err)
}
