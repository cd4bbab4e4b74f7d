// Package flashblocks implements the streaming ingest client: a
// WebSocket connection to the sequencer's flashblock feed, with capped
// exponential backoff reconnect, brotli-or-plain frame decoding, and
// EIP-2718 transaction envelope decode, fanned out to a bounded queue
// for the executor to consume.
package flashblocks

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

// QueueCapacity is the bounded channel size between ingest and the
// executor. Backpressure here is authoritative: the ingest loop blocks
// rather than drop an event, because a dropped flashblock opens a gap
// the executor cannot recover from.
const QueueCapacity = 100

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// FlashblockMetadata is the metadata object of a flashblock payload.
type FlashblockMetadata struct {
	BlockNumber        uint64                     `json:"block_number"`
	Receipts           map[string]json.RawMessage `json:"receipts"`
	NewAccountBalances map[string]string          `json:"new_account_balances"`
}

// wireDiff is the "diff" object of a flashblock payload.
type wireDiff struct {
	Transactions []string `json:"transactions"`
	StateRoot    string   `json:"state_root"`
	ReceiptsRoot string   `json:"receipts_root"`
}

// wirePayload is the raw JSON shape documented in spec §6.
type wirePayload struct {
	Index    uint32              `json:"index"`
	Metadata FlashblockMetadata  `json:"metadata"`
	Diff     wireDiff            `json:"diff"`
}

// FlashblockEvent is the fully decoded, ordered unit the ingest client
// delivers to the executor.
type FlashblockEvent struct {
	BlockNumber  uint64
	Index        uint32
	Transactions []*types.Transaction
	StateRoot    common.Hash
	ReceiptsRoot common.Hash
	Metadata     FlashblockMetadata
	ReceivedAt   time.Time
}

// connState is the ingest connection state machine: Disconnected →
// Connecting → Connected → Disconnected.
type connState int

const (
	StateDisconnected connState = iota
	StateConnecting
	StateConnected
)

// Dialer abstracts websocket.Dialer so tests can substitute a fake.
type Dialer interface {
	Dial(url string, header map[string][]string) (*websocket.Conn, error)
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(url string, header map[string][]string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	return conn, err
}

// Client streams flashblock events from a configured WebSocket URL onto
// a bounded output queue.
type Client struct {
	url    string
	dialer Dialer
	out    chan *FlashblockEvent
	log    log.Logger

	state connState
}

// NewClient creates an ingest client for the given URL. The output
// channel has capacity QueueCapacity per spec §4.C3.
func NewClient(url string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Root()
	}
	return &Client{
		url:    url,
		dialer: gorillaDialer{},
		out:    make(chan *FlashblockEvent, QueueCapacity),
		log:    logger,
	}
}

// Events returns the channel the executor should drain.
func (c *Client) Events() <-chan *FlashblockEvent {
	return c.out
}

// Run connects and reconnects forever (until ctx is cancelled), pushing
// decoded events onto the output queue. Transport errors trigger
// reconnect with capped exponential backoff; single-message decode
// failures are logged and skipped without affecting connection state.
func (c *Client) Run(ctx context.Context) {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.state = StateConnecting
		conn, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			c.log.Warn("flashblock ingest dial failed", "url", c.url, "err", err, "backoff", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		c.state = StateConnected
		backoff = initialBackoff
		c.readLoop(ctx, conn)
		conn.Close()
		c.state = StateDisconnected

		select {
		case <-ctx.Done():
			return
		default:
		}
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// readLoop reads frames off conn until it errors or ctx is cancelled.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn("flashblock ingest connection lost", "err", err)
			return
		}

		payload, err := decodeFrame(data)
		if err != nil {
			c.log.Warn("flashblock ingest frame decode failed", "err", err)
			continue
		}

		event, err := parsePayload(payload)
		if err != nil {
			c.log.Warn("flashblock ingest payload parse failed", "err", err)
			continue
		}

		select {
		case c.out <- event:
		case <-ctx.Done():
			return
		}
	}
}

// decodeFrame decides whether data is plain UTF-8 JSON (begins with '{')
// or a brotli-compressed frame, and returns the raw JSON bytes.
func decodeFrame(data []byte) ([]byte, error) {
	if len(data) > 0 && data[0] == '{' {
		return data, nil
	}
	r := brotli.NewReader(bytes.NewReader(data))
	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("brotli decode: %w", err)
	}
	return decoded, nil
}

// parsePayload decodes the wire JSON and unmarshals each EIP-2718
// transaction envelope, skipping individually undecodable transactions
// with a warning rather than poisoning the whole event.
func parsePayload(raw []byte) (*FlashblockEvent, error) {
	var payload wirePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	event := &FlashblockEvent{
		BlockNumber:  payload.Metadata.BlockNumber,
		Index:        payload.Index,
		Metadata:     payload.Metadata,
		StateRoot:    common.HexToHash(payload.Diff.StateRoot),
		ReceiptsRoot: common.HexToHash(payload.Diff.ReceiptsRoot),
		ReceivedAt:   time.Now(),
	}

	for _, hexTx := range payload.Diff.Transactions {
		raw, err := hexDecode(hexTx)
		if err != nil {
			log.Warn("flashblock tx hex decode failed", "err", err)
			continue
		}
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			log.Warn("flashblock tx envelope decode failed", "err", err)
			continue
		}
		event.Transactions = append(event.Transactions, tx)
	}

	return event, nil
}

func hexDecode(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

// ParseNewAccountBalance decodes one entry of metadata.new_account_balances
// (hex-encoded U256) into a big.Int, used by callers that want to seed the
// layered cache from flashblock metadata directly rather than re-reading
// the canonical state.
func ParseNewAccountBalance(hexValue string) (*big.Int, error) {
	if len(hexValue) >= 2 && hexValue[0] == '0' && (hexValue[1] == 'x' || hexValue[1] == 'X') {
		hexValue = hexValue[2:]
	}
	v, ok := new(big.Int).SetString(hexValue, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex balance %q", hexValue)
	}
	return v, nil
}
