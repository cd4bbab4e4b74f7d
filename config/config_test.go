package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MEV_MIN_PROFIT_THRESHOLD", "MEV_WORKER_TIMEOUT_SECS", "MEV_SEQUENCER_URL",
		"MEV_FLASHBLOCK_WS_URL", "MEV_PUBSUB_URL", "MEV_WALLET_KEYS", "MEV_REDIS_ADDR",
		"MEV_CHAIN_ID", "MEV_LOG_FILTER", "MEV_DRY_RUN",
	} {
		os.Unsetenv(k)
	}
}

func TestFromEnvRequiresSequencerURL(t *testing.T) {
	clearEnv(t)
	_, err := FromEnv()
	require.ErrorIs(t, err, ErrFatalConfig)
}

func TestFromEnvAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("MEV_SEQUENCER_URL", "http://localhost:9545")
	os.Setenv("MEV_FLASHBLOCK_WS_URL", "ws://localhost:9546")
	os.Setenv("MEV_WALLET_KEYS", "deadbeef")
	defer clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	require.Equal(t, 30, cfg.WorkerTimeoutSecs)
	require.Equal(t, int64(8453), cfg.ChainID.Int64())
	require.False(t, cfg.DryRun)
}

func TestFromEnvParsesWalletKeyList(t *testing.T) {
	clearEnv(t)
	os.Setenv("MEV_SEQUENCER_URL", "http://localhost:9545")
	os.Setenv("MEV_FLASHBLOCK_WS_URL", "ws://localhost:9546")
	os.Setenv("MEV_WALLET_KEYS", "aaa,bbb,ccc")
	defer clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, []string{"aaa", "bbb", "ccc"}, cfg.WalletKeysHex)
}

func TestFromEnvRejectsBadThreshold(t *testing.T) {
	clearEnv(t)
	os.Setenv("MEV_SEQUENCER_URL", "http://localhost:9545")
	os.Setenv("MEV_FLASHBLOCK_WS_URL", "ws://localhost:9546")
	os.Setenv("MEV_WALLET_KEYS", "aaa")
	os.Setenv("MEV_MIN_PROFIT_THRESHOLD", "not-a-number")
	defer clearEnv(t)

	_, err := FromEnv()
	require.ErrorIs(t, err, ErrFatalConfig)
}
