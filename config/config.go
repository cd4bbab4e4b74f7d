// Package config loads the searcher's environment-driven configuration
// once at startup (§6 External Interfaces: Configuration).
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
)

// ErrFatalConfig is returned for any configuration problem that must
// abort startup (§7: FatalInit, "process exits non-zero").
var ErrFatalConfig = errors.New("config: fatal configuration error")

// Config is the full set of environment-derived settings the searcher
// needs to run.
type Config struct {
	MinProfitThresholdWei *big.Int
	WorkerTimeoutSecs     int
	SequencerURL          string
	FlashblockWSURL       string
	PubSubURL             string
	WalletKeysHex         []string
	RedisAddr             string
	ChainID               *big.Int
	LogFilter             string
	DryRun                bool
}

// FromEnv loads Config from process environment variables, applying the
// defaults documented in §6 where a variable is unset.
func FromEnv() (Config, error) {
	cfg := Config{
		MinProfitThresholdWei: big.NewInt(1e13),
		WorkerTimeoutSecs:     30,
		LogFilter:             "info",
		ChainID:               big.NewInt(8453), // Base mainnet.
	}

	if v := os.Getenv("MEV_MIN_PROFIT_THRESHOLD"); v != "" {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return Config{}, fmt.Errorf("%w: MEV_MIN_PROFIT_THRESHOLD %q is not a valid integer", ErrFatalConfig, v)
		}
		cfg.MinProfitThresholdWei = n
	}

	if v := os.Getenv("MEV_WORKER_TIMEOUT_SECS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: MEV_WORKER_TIMEOUT_SECS %q is not an integer: %v", ErrFatalConfig, v, err)
		}
		cfg.WorkerTimeoutSecs = n
	}

	cfg.SequencerURL = os.Getenv("MEV_SEQUENCER_URL")
	if cfg.SequencerURL == "" {
		return Config{}, fmt.Errorf("%w: MEV_SEQUENCER_URL is required", ErrFatalConfig)
	}

	cfg.FlashblockWSURL = os.Getenv("MEV_FLASHBLOCK_WS_URL")
	if cfg.FlashblockWSURL == "" {
		return Config{}, fmt.Errorf("%w: MEV_FLASHBLOCK_WS_URL is required", ErrFatalConfig)
	}

	cfg.PubSubURL = os.Getenv("MEV_PUBSUB_URL")

	if v := os.Getenv("MEV_WALLET_KEYS"); v != "" {
		cfg.WalletKeysHex = strings.Split(v, ",")
	}
	if len(cfg.WalletKeysHex) == 0 {
		return Config{}, fmt.Errorf("%w: MEV_WALLET_KEYS is required (comma-separated hex private keys)", ErrFatalConfig)
	}

	cfg.RedisAddr = os.Getenv("MEV_REDIS_ADDR")
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "127.0.0.1:6379"
	}

	if v := os.Getenv("MEV_CHAIN_ID"); v != "" {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return Config{}, fmt.Errorf("%w: MEV_CHAIN_ID %q is not a valid integer", ErrFatalConfig, v)
		}
		cfg.ChainID = n
	}

	if v := os.Getenv("MEV_LOG_FILTER"); v != "" {
		cfg.LogFilter = v
	}

	cfg.DryRun = os.Getenv("MEV_DRY_RUN") == "1" || strings.EqualFold(os.Getenv("MEV_DRY_RUN"), "true")

	return cfg, nil
}
