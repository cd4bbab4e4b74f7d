// Package evmfake provides a minimal in-memory ChainEvm and StateSource
// used only by tests: a plain value-transfer executor over a map-backed
// account store, enough to drive the pipeline's control flow without a
// real EVM. It must never be imported by non-test code.
package evmfake

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/flashline/searcher/evmtypes"
)

// Account is one account's state in the fake store.
type Account struct {
	Balance  *big.Int
	Nonce    uint64
	CodeHash common.Hash
	Code     []byte
}

// Store is a simple map-backed account and storage database.
type Store struct {
	Accounts map[common.Address]Account
	Storage  map[common.Address]map[common.Hash]common.Hash
	headers  map[uint64]*types.Header
	latest   uint64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		Accounts: make(map[common.Address]Account),
		Storage:  make(map[common.Address]map[common.Hash]common.Hash),
		headers:  make(map[uint64]*types.Header),
	}
}

// SetHeader registers a header for a given block number and advances the
// latest pointer if number is newer.
func (s *Store) SetHeader(number uint64, header *types.Header) {
	s.headers[number] = header
	if number > s.latest {
		s.latest = number
	}
}

// reader is the evmtypes.StateReader view over a Store.
type reader struct{ store *Store }

func (r reader) GetBalance(_ context.Context, addr common.Address) (*big.Int, error) {
	if acct, ok := r.store.Accounts[addr]; ok && acct.Balance != nil {
		return new(big.Int).Set(acct.Balance), nil
	}
	return big.NewInt(0), nil
}

func (r reader) GetNonce(_ context.Context, addr common.Address) (uint64, error) {
	return r.store.Accounts[addr].Nonce, nil
}

func (r reader) GetCode(_ context.Context, addr common.Address) ([]byte, error) {
	return r.store.Accounts[addr].Code, nil
}

func (r reader) GetCodeHash(_ context.Context, addr common.Address) (common.Hash, error) {
	return r.store.Accounts[addr].CodeHash, nil
}

func (r reader) GetState(_ context.Context, addr common.Address, key common.Hash) (common.Hash, error) {
	if slots, ok := r.store.Storage[addr]; ok {
		return slots[key], nil
	}
	return common.Hash{}, nil
}

// Source implements evmtypes.StateSource over a Store.
type Source struct{ store *Store }

// NewSource wraps store as an evmtypes.StateSource.
func NewSource(store *Store) *Source {
	return &Source{store: store}
}

func (s *Source) HeaderByNumber(_ context.Context, number uint64) (*types.Header, error) {
	if h, ok := s.store.headers[number]; ok {
		return h, nil
	}
	return &types.Header{Number: new(big.Int).SetUint64(number)}, nil
}

func (s *Source) LatestBlockNumber(_ context.Context) (uint64, error) {
	return s.store.latest, nil
}

func (s *Source) ReaderAt(_ context.Context, _ uint64) (evmtypes.StateReader, error) {
	return reader{store: s.store}, nil
}

// Evm is a trivial ChainEvm: it only understands plain value transfers
// and a scripted result for calls to contract accounts, enough to
// exercise the pipeline's call shape in tests without a real
// interpreter. Calldata and selectors are never inspected.
type Evm struct {
	// ProbeResult, when set, is returned verbatim for any call whose
	// target has non-empty code (the prober or any other contract),
	// letting tests script a fixed (bestQty, bestProfit,
	// testsPerformed) outcome.
	ProbeResult []byte
}

func (e *Evm) Execute(ctx context.Context, env evmtypes.BlockEnv, msg evmtypes.CallMsg, r evmtypes.StateReader, codeOverride map[common.Address][]byte) (evmtypes.ExecutionOutcome, evmtypes.StateDiff, error) {
	if msg.To != nil && e.ProbeResult != nil {
		if code, _ := r.GetCode(ctx, *msg.To); len(code) > 0 {
			return evmtypes.ExecutionOutcome{ReturnData: e.ProbeResult, GasUsed: 100_000}, evmtypes.StateDiff{}, nil
		}
	}
	_ = codeOverride

	diff := evmtypes.StateDiff{}
	if msg.To != nil && msg.Value != nil && msg.Value.Sign() > 0 {
		fromBal, _ := r.GetBalance(ctx, msg.From)
		toBal, _ := r.GetBalance(ctx, *msg.To)
		fromNonce, _ := r.GetNonce(ctx, msg.From)
		diff.Accounts = append(diff.Accounts,
			evmtypes.AccountDiff{Address: msg.From, Balance: new(big.Int).Sub(fromBal, msg.Value), Nonce: fromNonce + 1},
			evmtypes.AccountDiff{Address: *msg.To, Balance: new(big.Int).Add(toBal, msg.Value)},
		)
	}

	return evmtypes.ExecutionOutcome{GasUsed: 21_000}, diff, nil
}
