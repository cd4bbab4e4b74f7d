// Package chainstate implements the searcher's in-memory state layer: an
// immutable post-flashblock snapshot (StateSnapshot) and the copy-on-write
// overlay cache the executor mutates while replaying a flashblock's
// transactions (LayeredCache).
package chainstate

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// AccountInfo mirrors the EVM layer's account record: balance, nonce,
// code hash and optional code. EmptyCodeHash is the keccak256 of the
// empty byte string, the canonical sentinel for "no code".
type AccountInfo struct {
	Balance  *big.Int
	Nonce    uint64
	CodeHash common.Hash
	Code     []byte
}

// EmptyCodeHash is the code hash of an externally-owned account.
var EmptyCodeHash = common.HexToHash("0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")

// StateSnapshot is an immutable description of everything the flashblock
// chain of execution changed relative to the underlying canonical state.
// It is produced once per flashblock by the executor and shared read-only
// with every worker that fans out from it.
type StateSnapshot struct {
	BlockNumber     uint64
	FlashblockIndex uint32
	BaseFee         *big.Int
	CreatedAt       time.Time
	ScanID          string

	AccountChanges map[common.Address]AccountInfo
	StorageChanges map[common.Address]map[common.Hash]common.Hash
	CodeChanges    map[common.Hash][]byte

	Transactions []*types.Transaction
}

// MaxFlashblockIndex bounds the per-block flashblock index (§3 data model:
// flashblock_index in [0, MAX_FB)).
const MaxFlashblockIndex = 1 << 16

// NewStateSnapshot returns an empty snapshot for the given block, ready to
// be populated by the executor as it walks the overlay's dirty set.
func NewStateSnapshot(blockNumber uint64, flashblockIndex uint32, baseFee *big.Int, scanID string) *StateSnapshot {
	return &StateSnapshot{
		BlockNumber:     blockNumber,
		FlashblockIndex: flashblockIndex,
		BaseFee:         baseFee,
		CreatedAt:       time.Now(),
		ScanID:          scanID,
		AccountChanges:  make(map[common.Address]AccountInfo),
		StorageChanges:  make(map[common.Address]map[common.Hash]common.Hash),
		CodeChanges:     make(map[common.Hash][]byte),
	}
}

// IsAccountTouched reports whether addr appears either in the account
// changes or the storage changes of the snapshot, case-insensitively (Go's
// common.Address is already a fixed-size array so the comparison is exact
// once both sides are normalized via common.Address's own equality).
func (s *StateSnapshot) IsAccountTouched(addr common.Address) bool {
	if _, ok := s.AccountChanges[addr]; ok {
		return true
	}
	_, ok := s.StorageChanges[addr]
	return ok
}

// Empty reports whether the snapshot carries no changes at all — the
// clean no-op flashblock case.
func (s *StateSnapshot) Empty() bool {
	return len(s.AccountChanges) == 0 && len(s.StorageChanges) == 0 && len(s.CodeChanges) == 0 && len(s.Transactions) == 0
}
