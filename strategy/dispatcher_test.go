package strategy

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/flashline/searcher/chainstate"
	"github.com/stretchr/testify/require"
)

func emptySnapshot() *chainstate.StateSnapshot {
	return chainstate.NewStateSnapshot(100, 0, nil, "100:0:1")
}

func TestDispatchCleanNoOp(t *testing.T) {
	snap := emptySnapshot()
	configs := []ProcessorConfig{{Name: "backrun-a"}}
	triggered := Dispatch(snap, configs)
	require.Empty(t, triggered)
}

func TestDispatchTouchedAccount(t *testing.T) {
	snap := emptySnapshot()
	addr := common.HexToAddress("0xAAAA000000000000000000000000000000AAAA")
	snap.AccountChanges[addr] = chainstate.AccountInfo{}

	configs := []ProcessorConfig{{Name: "backrun-a", MonitoredAccounts: []common.Address{addr}}}
	triggered := Dispatch(snap, configs)
	_, ok := triggered["backrun-a"]
	require.True(t, ok)
}

func TestDispatchOracleTriggerFiresAll(t *testing.T) {
	snap := emptySnapshot()
	tx := types.NewTx(&types.LegacyTx{
		Nonce: 0,
		Data:  []byte{0x9a, 0x6f, 0xc8, 0xf5, 0x00},
	})
	snap.Transactions = append(snap.Transactions, tx)

	configs := []ProcessorConfig{{Name: "a"}, {Name: "b"}}
	triggered := Dispatch(snap, configs)
	require.Len(t, triggered, 2)
}

func TestDispatchCaseInsensitiveAddress(t *testing.T) {
	snap := emptySnapshot()
	lower := common.HexToAddress("0xabc0000000000000000000000000000000abc0")
	snap.AccountChanges[lower] = chainstate.AccountInfo{}

	upper := common.HexToAddress("0xABC0000000000000000000000000000000ABC0")
	configs := []ProcessorConfig{{Name: "a", MonitoredAccounts: []common.Address{upper}}}
	triggered := Dispatch(snap, configs)
	require.Contains(t, triggered, "a")
}
