package evmfake

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flashline/searcher/evmtypes"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTripsBalance(t *testing.T) {
	store := NewStore()
	addr := common.HexToAddress("0x1")
	store.Accounts[addr] = Account{Balance: big.NewInt(42), Nonce: 3}

	source := NewSource(store)
	r, err := source.ReaderAt(context.Background(), 0)
	require.NoError(t, err)

	bal, err := r.GetBalance(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(42), bal)

	nonce, err := r.GetNonce(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, uint64(3), nonce)
}

func TestEvmExecuteValueTransferProducesDiff(t *testing.T) {
	store := NewStore()
	from := common.HexToAddress("0xaa")
	to := common.HexToAddress("0xbb")
	store.Accounts[from] = Account{Balance: big.NewInt(100)}

	source := NewSource(store)
	r, err := source.ReaderAt(context.Background(), 0)
	require.NoError(t, err)

	evm := &Evm{}
	msg := evmtypes.CallMsg{From: from, To: &to, Value: big.NewInt(10)}

	_, diff, err := evm.Execute(context.Background(), evmtypes.BlockEnv{}, msg, r, nil)
	require.NoError(t, err)
	require.Len(t, diff.Accounts, 2)
}

func TestEvmExecuteReturnsProbeResult(t *testing.T) {
	store := NewStore()
	target := common.HexToAddress("0xcc")
	store.Accounts[target] = Account{Code: []byte{0x60, 0x80}}

	source := NewSource(store)
	r, err := source.ReaderAt(context.Background(), 0)
	require.NoError(t, err)

	evm := &Evm{ProbeResult: []byte{0x01}}
	msg := evmtypes.CallMsg{To: &target}

	outcome, _, err := evm.Execute(context.Background(), evmtypes.BlockEnv{}, msg, r, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, outcome.ReturnData)
}
