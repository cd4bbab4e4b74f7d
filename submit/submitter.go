package submit

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/flashline/searcher/evmtypes"
	"github.com/flashline/searcher/postprocess"
)

// Config is the static submission configuration loaded at startup.
type Config struct {
	ChainID       *big.Int
	Policy        WalletPolicy
	DefaultGas    uint64
	DryRun        bool
	SequencerURL  string
}

// Submitter is the C10 submission stage, one per process. The pipeline
// calls Submit directly, once per above-threshold opportunity, from the
// goroutine running ProcessEvent; there is no channel or dedicated
// consumer goroutine in front of it.
type Submitter struct {
	config    Config
	wallets   *WalletSet
	sequencer SequencerClient
	pubsub    PubSub
	source    evmtypes.StateSource
	log       log.Logger
}

// New creates a Submitter.
func New(config Config, wallets *WalletSet, sequencer SequencerClient, pubsub PubSub, source evmtypes.StateSource, logger log.Logger) *Submitter {
	if logger == nil {
		logger = log.Root()
	}
	return &Submitter{
		config:    config,
		wallets:   wallets,
		sequencer: sequencer,
		pubsub:    pubsub,
		source:    source,
		log:       logger,
	}
}

// Submit implements §4.C10 in full, given an opportunity already known to
// be above the profit threshold.
func (s *Submitter) Submit(ctx context.Context, opp postprocess.MevOpportunity) (common.Hash, error) {
	if len(opp.Bundle.Transactions) == 0 {
		return common.Hash{}, errEmptyBundle
	}
	candidate := opp.Bundle.Transactions[0]

	wallet := s.wallets.Select(s.config.Policy, randIndex(s.wallets.Len()))

	reader, err := s.source.ReaderAt(ctx, opp.BlockNumber)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := reader.GetNonce(ctx, wallet.Address)
	if err != nil {
		return common.Hash{}, err
	}

	header, err := s.source.HeaderByNumber(ctx, opp.BlockNumber)
	if err != nil {
		return common.Hash{}, err
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}

	priorityFee := ComputePriorityFee(opp.ExpectedProfit, opp.SimulatedGasUsed, opp.PriorityFeeMultiplier)
	maxFeePerGas := ComputeMaxFeePerGas(baseFee, priorityFee)
	gasLimit := ResolveGasLimit(candidate.GasLimit, opp.SimulatedGasUsed, s.config.DefaultGas, len(candidate.Input))

	to := candidate.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.config.ChainID,
		Nonce:     nonce,
		GasTipCap: priorityFee,
		GasFeeCap: maxFeePerGas,
		Gas:       gasLimit,
		To:        &to,
		Value:     candidate.Value,
		Data:      candidate.Input,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.config.ChainID), wallet.Key)
	if err != nil {
		return common.Hash{}, err
	}

	encoded, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, err
	}
	signedHex := "0x" + common.Bytes2Hex(encoded)

	if s.config.DryRun {
		s.log.Info("submit: dry-run, skipping network fan-out",
			"scan_id", opp.ScanID, "signed", signedHex)
		return signed.Hash(), nil
	}

	return s.fanOut(ctx, signedHex)
}

var errEmptyBundle = &submitError{"submit: opportunity carries no bundle transactions"}

type submitError struct{ msg string }

func (e *submitError) Error() string { return e.msg }

// fanOut implements §4.C10 steps 6-7: concurrent pub/sub publish and
// sequencer POST, with race reconciliation.
func (s *Submitter) fanOut(ctx context.Context, signedHex string) (common.Hash, error) {
	pubsubDone := make(chan error, 1)
	go func() {
		if s.pubsub == nil {
			pubsubDone <- nil
			return
		}
		pubsubDone <- s.pubsub.Publish(ctx, signedHex)
	}()

	txHash, rpcErr, err := s.sequencer.SendRawTransaction(ctx, signedHex)
	pubsubErr := <-pubsubDone

	if err != nil {
		s.log.Error("submit: sequencer POST failed", "err", err)
		return common.Hash{}, err
	}
	if rpcErr == nil {
		return common.HexToHash(txHash), nil
	}

	if recognizedRace(rpcErr) && pubsubErr == nil {
		s.log.Warn("submit: lost sequencer race, treating as success", "rpc_err", rpcErr)
		return crypto.Keccak256Hash([]byte(signedHex)), nil
	}

	s.log.Error("submit: sequencer rejected transaction", "rpc_err", rpcErr)
	return common.Hash{}, rpcErr
}

// randIndex returns a uniform random index in [0, n) for WalletPolicyRandom.
func randIndex(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
