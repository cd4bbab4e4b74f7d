// Package evmtypes defines the external collaborator interfaces the
// searcher consumes but never implements: a chain EVM capable of running
// a call against a block environment, and a state source capable of
// answering point-in-time account and storage queries. Both are supplied
// by the host process (a full node or an execution client embedding this
// module); this package only describes the contract.
package evmtypes

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// U256 is the 256-bit unsigned integer type used for balances, storage
// slots and quantities throughout the searcher.
type U256 = uint256.Int

// BlockEnv describes the block an EVM call is executed against: the
// fields a flashblock fragment updates incrementally as it streams in.
type BlockEnv struct {
	Number     uint64
	Timestamp  uint64
	BaseFee    *big.Int
	GasLimit   uint64
	Coinbase   common.Address
	Difficulty *big.Int
	Random     common.Hash
}

// CallMsg is a single EVM message call: either a plain call/simulate or
// a call against the profit-search prober contract.
type CallMsg struct {
	From     common.Address
	To       *common.Address
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
	Data     []byte
}

// ExecutionOutcome is the result of running a CallMsg against a BlockEnv.
type ExecutionOutcome struct {
	ReturnData []byte
	GasUsed    uint64
	Reverted   bool
	Err        error
	Logs       []*types.Log
}

// AccountDiff is one account's observed post-call delta, used to build
// the layered cache overlay described in chainstate.
type AccountDiff struct {
	Address      common.Address
	Balance      *big.Int
	Nonce        uint64
	CodeHash     common.Hash
	Storage      map[common.Hash]common.Hash
	SelfDestruct bool
}

// StateDiff is the full set of account changes an execution produced.
type StateDiff struct {
	Accounts []AccountDiff
}

// StateReader answers point-in-time reads against a committed block.
// Implementations are supplied by the host; the searcher never mutates
// state through this interface, only reads it.
type StateReader interface {
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	GetNonce(ctx context.Context, addr common.Address) (uint64, error)
	GetCode(ctx context.Context, addr common.Address) ([]byte, error)
	GetCodeHash(ctx context.Context, addr common.Address) (common.Hash, error)
	GetState(ctx context.Context, addr common.Address, key common.Hash) (common.Hash, error)
}

// StateSource resolves the head of the chain and exposes a StateReader
// pinned to a given block.
type StateSource interface {
	HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	ReaderAt(ctx context.Context, number uint64) (StateReader, error)
}

// ChainEvm executes a single call against a block environment and an
// overlay of account/storage reads, returning both the raw execution
// outcome and the state diff it produced. Code override lets the caller
// inject the profit-search prober contract at a fixed address without
// it ever touching committed state.
type ChainEvm interface {
	Execute(ctx context.Context, env BlockEnv, msg CallMsg, reader StateReader, codeOverride map[common.Address][]byte) (ExecutionOutcome, StateDiff, error)
}
