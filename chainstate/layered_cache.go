package chainstate

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flashline/searcher/evmtypes"
)

// overlayAccount is one account's overlay record: the account's current
// view (possibly copied straight from the underlying reader), whether it
// has been mutated since the cache was created, and any storage slots
// written through the overlay.
type overlayAccount struct {
	info    AccountInfo
	dirty   bool
	storage map[common.Hash]common.Hash
}

// LayeredCache is a copy-on-write overlay over a StateReader. Reads fall
// through overlay → reader → zero value; writes only ever touch the
// overlay. Cloning a LayeredCache is O(len(overlay)), never O(state),
// which is what lets the worker pool hand every task its own private
// mutable view cheaply.
type LayeredCache struct {
	reader    evmtypes.StateReader
	accounts  map[common.Address]*overlayAccount
	contracts map[common.Hash][]byte
	blockHash map[uint64]common.Hash
}

// NewLayeredCache creates an empty overlay backed by reader.
func NewLayeredCache(reader evmtypes.StateReader) *LayeredCache {
	return &LayeredCache{
		reader:    reader,
		accounts:  make(map[common.Address]*overlayAccount),
		contracts: make(map[common.Hash][]byte),
		blockHash: make(map[uint64]common.Hash),
	}
}

// Clone returns an independent copy of the cache sharing the same
// underlying reader. Mutations to the clone never affect the original.
func (c *LayeredCache) Clone() *LayeredCache {
	out := NewLayeredCache(c.reader)
	for addr, acct := range c.accounts {
		cp := &overlayAccount{
			info:    acct.info,
			dirty:   acct.dirty,
			storage: make(map[common.Hash]common.Hash, len(acct.storage)),
		}
		if acct.info.Balance != nil {
			cp.info.Balance = new(big.Int).Set(acct.info.Balance)
		}
		for k, v := range acct.storage {
			cp.storage[k] = v
		}
		out.accounts[addr] = cp
	}
	for h, code := range c.contracts {
		out.contracts[h] = code
	}
	for n, h := range c.blockHash {
		out.blockHash[n] = h
	}
	return out
}

// loadLocked fetches addr's account from the overlay, falling through to
// the underlying reader on first access.
func (c *LayeredCache) loadLocked(ctx context.Context, addr common.Address) (*overlayAccount, error) {
	if acct, ok := c.accounts[addr]; ok {
		return acct, nil
	}

	balance, err := c.reader.GetBalance(ctx, addr)
	if err != nil {
		return nil, err
	}
	nonce, err := c.reader.GetNonce(ctx, addr)
	if err != nil {
		return nil, err
	}
	codeHash, err := c.reader.GetCodeHash(ctx, addr)
	if err != nil {
		return nil, err
	}

	acct := &overlayAccount{
		info: AccountInfo{
			Balance:  balance,
			Nonce:    nonce,
			CodeHash: codeHash,
		},
		storage: make(map[common.Hash]common.Hash),
	}
	c.accounts[addr] = acct
	return acct, nil
}

// GetAccount returns the current view of addr, reading through to the
// underlying StateReader on first access.
func (c *LayeredCache) GetAccount(ctx context.Context, addr common.Address) (AccountInfo, error) {
	acct, err := c.loadLocked(ctx, addr)
	if err != nil {
		return AccountInfo{}, err
	}
	return acct.info, nil
}

// GetStorage returns the current value of (addr, key), reading through to
// the underlying StateReader if the slot has not been written in the
// overlay.
func (c *LayeredCache) GetStorage(ctx context.Context, addr common.Address, key common.Hash) (common.Hash, error) {
	acct, err := c.loadLocked(ctx, addr)
	if err != nil {
		return common.Hash{}, err
	}
	if v, ok := acct.storage[key]; ok {
		return v, nil
	}
	return c.reader.GetState(ctx, addr, key)
}

// GetCode returns addr's code, preferring a code override stored by
// SetCode (used to inject the profit-search prober), then the overlay's
// own contracts map, then the underlying reader.
func (c *LayeredCache) GetCode(ctx context.Context, addr common.Address) ([]byte, error) {
	acct, err := c.loadLocked(ctx, addr)
	if err != nil {
		return nil, err
	}
	if code, ok := c.contracts[acct.info.CodeHash]; ok {
		return code, nil
	}
	return c.reader.GetCode(ctx, addr)
}

// SetAccount overwrites addr's account view in the overlay, marking it
// dirty.
func (c *LayeredCache) SetAccount(addr common.Address, info AccountInfo) {
	acct, ok := c.accounts[addr]
	if !ok {
		acct = &overlayAccount{storage: make(map[common.Hash]common.Hash)}
		c.accounts[addr] = acct
	}
	acct.info = info
	acct.dirty = true
}

// SetStorage writes a single storage slot into the overlay, marking the
// account dirty.
func (c *LayeredCache) SetStorage(addr common.Address, key, value common.Hash) {
	acct, ok := c.accounts[addr]
	if !ok {
		acct = &overlayAccount{storage: make(map[common.Hash]common.Hash)}
		c.accounts[addr] = acct
	}
	acct.storage[key] = value
	acct.dirty = true
}

// SetCode injects code for the given code hash, e.g. the profit-search
// prober's bytecode at a fixed address. This never touches the
// underlying canonical state — it exists only in this overlay instance.
func (c *LayeredCache) SetCode(addr common.Address, codeHash common.Hash, code []byte) {
	info, ok := c.accounts[addr]
	if !ok {
		info = &overlayAccount{storage: make(map[common.Hash]common.Hash)}
		c.accounts[addr] = info
	}
	info.info.CodeHash = codeHash
	info.dirty = true
	c.contracts[codeHash] = code
}

// ApplyDiff commits an evmtypes.StateDiff produced by a ChainEvm call
// into the overlay. It is used by the executor after a successful
// transaction execution, and never applied after a revert/halt.
func (c *LayeredCache) ApplyDiff(diff evmtypes.StateDiff) {
	for _, ad := range diff.Accounts {
		acct, ok := c.accounts[ad.Address]
		if !ok {
			acct = &overlayAccount{storage: make(map[common.Hash]common.Hash)}
			c.accounts[ad.Address] = acct
		}
		if ad.Balance != nil {
			acct.info.Balance = new(big.Int).Set(ad.Balance)
		}
		acct.info.Nonce = ad.Nonce
		if ad.CodeHash != (common.Hash{}) {
			acct.info.CodeHash = ad.CodeHash
		}
		for k, v := range ad.Storage {
			acct.storage[k] = v
		}
		acct.dirty = true
	}
}

// DirtyAddresses returns every account address the overlay has mutated
// since creation, in the order first observed is not guaranteed (map
// iteration) — callers needing determinism should sort the result.
func (c *LayeredCache) DirtyAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.accounts))
	for addr, acct := range c.accounts {
		if acct.dirty {
			out = append(out, addr)
		}
	}
	return out
}

// ExportSnapshot walks the overlay's dirty set and fills account_changes,
// storage_changes and code_changes on an existing StateSnapshot — step 3
// of the executor's processing contract.
func (c *LayeredCache) ExportSnapshot(snap *StateSnapshot) {
	for addr, acct := range c.accounts {
		if !acct.dirty {
			continue
		}
		snap.AccountChanges[addr] = acct.info
		if len(acct.storage) > 0 {
			slots := make(map[common.Hash]common.Hash, len(acct.storage))
			for k, v := range acct.storage {
				slots[k] = v
			}
			snap.StorageChanges[addr] = slots
		}
	}
	for h, code := range c.contracts {
		snap.CodeChanges[h] = code
	}
}
