// Package strategy implements the strategy dispatcher (C5): given a
// StateSnapshot and the static set of configured backrun templates, it
// decides which templates are triggered for this flashblock.
package strategy

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flashline/searcher/chainstate"
	"github.com/holiman/uint256"
)

// DataFormat selects how a candidate quantity is encoded into calldata
// for the profit-search probe (§4.C7).
type DataFormat int

const (
	DataFormatShort DataFormat = iota
	DataFormatLong
)

// BalanceCheck names an ERC-20 token and holder to balanceOf-check as
// part of post-processing (§4.C9 step 2).
type BalanceCheck struct {
	Token  common.Address
	Holder common.Address
}

// ProcessorConfig describes one backrun template: its target contract,
// default search quantity, calldata format, and trigger conditions.
type ProcessorConfig struct {
	Name                  string
	Target                common.Address
	DefaultQty            *uint256.Int
	DataFormat            DataFormat
	MonitoredTokens       []common.Address
	MonitoredAccounts     []common.Address
	PriorityFeeMultiplier uint32 // 10000 = 1x; 0 means "use default"
	CheckBalanceOf        *BalanceCheck
}

// OracleSelectors are the known oracle-update function selectors that
// unconditionally trigger every configured template (§6).
var OracleSelectors = [][4]byte{
	{0x50, 0xd2, 0x5b, 0xcd},
	{0x9a, 0x6f, 0xc8, 0xf5},
	{0xc9, 0x80, 0x75, 0x39},
	{0x6f, 0xad, 0xcf, 0x72},
}

// Dispatch inspects snapshot against configs and returns the set of
// triggered template names. It is a pure function of its inputs.
func Dispatch(snapshot *chainstate.StateSnapshot, configs []ProcessorConfig) map[string]struct{} {
	triggered := make(map[string]struct{})

	if oracleTriggered(snapshot) {
		for _, c := range configs {
			triggered[c.Name] = struct{}{}
		}
		return triggered
	}

	for _, c := range configs {
		if isTouched(snapshot, c) {
			triggered[c.Name] = struct{}{}
		}
	}
	return triggered
}

// isTouched reports whether any of a config's monitored accounts or
// tokens appears as a key in the snapshot's account or storage changes,
// compared case-insensitively on the hex form of the address.
func isTouched(snapshot *chainstate.StateSnapshot, c ProcessorConfig) bool {
	for _, addr := range c.MonitoredAccounts {
		if snapshotTouches(snapshot, addr) {
			return true
		}
	}
	for _, addr := range c.MonitoredTokens {
		if snapshotTouches(snapshot, addr) {
			return true
		}
	}
	return false
}

func snapshotTouches(snapshot *chainstate.StateSnapshot, addr common.Address) bool {
	for a := range snapshot.AccountChanges {
		if addressEqualFold(a, addr) {
			return true
		}
	}
	for a := range snapshot.StorageChanges {
		if addressEqualFold(a, addr) {
			return true
		}
	}
	return false
}

func addressEqualFold(a, b common.Address) bool {
	return strings.EqualFold(a.Hex(), b.Hex())
}

// oracleTriggered reports whether any transaction in the snapshot has
// input calldata starting with a known oracle-update selector.
func oracleTriggered(snapshot *chainstate.StateSnapshot) bool {
	for _, tx := range snapshot.Transactions {
		data := tx.Data()
		if len(data) < 4 {
			continue
		}
		for _, sel := range OracleSelectors {
			if data[0] == sel[0] && data[1] == sel[1] && data[2] == sel[2] && data[3] == sel[3] {
				return true
			}
		}
	}
	return false
}
