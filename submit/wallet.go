package submit

import (
	"crypto/ecdsa"
	"errors"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/crypto"
)

// WalletPolicy selects which configured key signs a given opportunity
// (§4.C10 step 1).
type WalletPolicy int

const (
	WalletPolicyDefault WalletPolicy = iota
	WalletPolicyRandom
	WalletPolicyRoundRobin
)

// ErrNoWallets is returned when a WalletSet has no configured keys — a
// FatalInit condition the caller must surface at startup, not per-submission.
var ErrNoWallets = errors.New("submit: no wallet keys configured")

// Wallet is one signing key loaded at startup.
type Wallet struct {
	Key     *ecdsa.PrivateKey
	Address [20]byte
}

// WalletSet holds the configured signing keys and the round-robin cursor
// shared across submission goroutines (§5: "atomic increment only").
type WalletSet struct {
	wallets []Wallet
	cursor  uint64
}

// NewWalletSet loads wallets from raw private key bytes.
func NewWalletSet(rawKeys [][]byte) (*WalletSet, error) {
	if len(rawKeys) == 0 {
		return nil, ErrNoWallets
	}
	wallets := make([]Wallet, len(rawKeys))
	for i, raw := range rawKeys {
		key, err := crypto.ToECDSA(raw)
		if err != nil {
			return nil, err
		}
		wallets[i] = Wallet{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
	}
	return &WalletSet{wallets: wallets}, nil
}

// Select returns the wallet chosen by policy. randIndex is only consumed
// for WalletPolicyRandom and is reduced modulo the wallet count.
func (ws *WalletSet) Select(policy WalletPolicy, randIndex int) Wallet {
	switch policy {
	case WalletPolicyRandom:
		return ws.wallets[randIndex%len(ws.wallets)]
	case WalletPolicyRoundRobin:
		n := atomic.AddUint64(&ws.cursor, 1) - 1
		return ws.wallets[int(n)%len(ws.wallets)]
	default:
		return ws.wallets[0]
	}
}

// Len returns the number of configured wallets.
func (ws *WalletSet) Len() int {
	return len(ws.wallets)
}
