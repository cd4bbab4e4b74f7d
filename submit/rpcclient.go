// Package submit implements transaction submission (C10): wallet
// selection, nonce lookup, dynamic fee computation, EIP-1559 signing,
// concurrent sequencer POST + pub/sub fan-out, and race reconciliation.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SequencerTimeout is the hard deadline on the sequencer POST (§4.C10 step 6, §5).
const SequencerTimeout = 5 * time.Second

// RPCError mirrors a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  *string   `json:"result"`
	Error   *RPCError `json:"error"`
}

// SequencerClient sends raw signed transactions to the sequencer.
type SequencerClient interface {
	SendRawTransaction(ctx context.Context, signedHex string) (txHash string, rpcErr *RPCError, err error)
}

// httpSequencerClient is the default SequencerClient, POSTing
// eth_sendRawTransaction per §6.
type httpSequencerClient struct {
	url    string
	client *http.Client
}

// NewHTTPSequencerClient creates a SequencerClient bound to the given URL
// with the fixed 5 s submission timeout.
func NewHTTPSequencerClient(url string) SequencerClient {
	return &httpSequencerClient{
		url:    url,
		client: &http.Client{Timeout: SequencerTimeout},
	}
}

func (c *httpSequencerClient) SendRawTransaction(ctx context.Context, signedHex string) (string, *RPCError, error) {
	ctx, cancel := context.WithTimeout(ctx, SequencerTimeout)
	defer cancel()

	reqBody := rpcRequest{
		JSONRPC: "2.0",
		Method:  "eth_sendRawTransaction",
		Params:  []interface{}{signedHex},
		ID:      1,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", nil, err
	}
	if decoded.Error != nil {
		return "", decoded.Error, nil
	}
	if decoded.Result == nil {
		return "", nil, errors.New("submit: sequencer response missing result and error")
	}
	return *decoded.Result, nil, nil
}

// PubSub publishes the signed transaction to an external broadcast
// channel, best-effort and without a timeout (§5).
type PubSub interface {
	Publish(ctx context.Context, signedHex string) error
}

// recognizedRace reports whether an RPCError matches one of the known
// "we lost the race but the tx landed anyway" patterns (§4.C10 step 7,
// §7 error table).
func recognizedRace(rpcErr *RPCError) bool {
	if rpcErr == nil {
		return false
	}
	if rpcErr.Code == -32000 {
		return true
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "already known") ||
		strings.Contains(msg, "replacement transaction") ||
		strings.Contains(msg, "nonce too low")
}
