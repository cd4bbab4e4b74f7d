// Package gasfilter implements the per-target gas filter (C8): an
// IIR-smoothed gas estimate and adaptive upper-bound multiplier per
// target contract, persisted with a TTL in Redis. Any backend error
// degrades to "no value" — this filter is a smoothing heuristic, not a
// source of truth, and must never make the pipeline fail.
package gasfilter

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"
)

// TTL is the expiry applied to every filter entry (§3 data model, §6).
const TTL = 24 * time.Hour

// Entry is one target's filter state.
type Entry struct {
	Gas        uint64 `json:"gas"`
	Multiplier uint64 `json:"multiplier,omitempty"`
}

// Filter reads and writes per-target gas entries in an external
// key-value store.
type Filter struct {
	client *redis.Client
	log    log.Logger
}

// New creates a Filter backed by the given Redis client.
func New(client *redis.Client, logger log.Logger) *Filter {
	if logger == nil {
		logger = log.Root()
	}
	return &Filter{client: client, log: logger}
}

func key(target common.Address) string {
	return "mev:gas:" + target.Hex()
}

// Get returns the filter entry for target, or (Entry{}, false) if no
// value is present or the backend errored — a backend error here is
// deliberately swallowed: §7 classifies it as KvStoreUnavailable,
// "silently degrade (no filter)".
func (f *Filter) Get(ctx context.Context, target common.Address) (Entry, bool) {
	raw, err := f.client.Get(ctx, key(target)).Result()
	if err != nil {
		if err != redis.Nil {
			f.log.Warn("gasfilter: get failed, degrading to no value", "target", target, "err", err)
		}
		return Entry{}, false
	}
	return parseEntry(raw)
}

// parseEntry supports both the current JSON encoding and the legacy
// bare-integer encoding (§6 back-compat: a bare integer means
// {gas: n, multiplier: none}).
func parseEntry(raw string) (Entry, bool) {
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err == nil {
		return entry, true
	}
	if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return Entry{Gas: n}, true
	}
	return Entry{}, false
}

// Set stores a filter entry with the configured TTL. Backend errors are
// logged and otherwise ignored — callers never need to handle a Set
// failure specially.
func (f *Filter) Set(ctx context.Context, target common.Address, gas uint64, multiplier uint64) {
	entry := Entry{Gas: gas, Multiplier: multiplier}
	data, err := json.Marshal(entry)
	if err != nil {
		f.log.Warn("gasfilter: marshal failed", "target", target, "err", err)
		return
	}
	if err := f.client.Set(ctx, key(target), data, TTL).Err(); err != nil {
		f.log.Warn("gasfilter: set failed, continuing without persistence", "target", target, "err", err)
	}
}
