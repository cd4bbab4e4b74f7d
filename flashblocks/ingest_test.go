package flashblocks

import (
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/require"
)

func TestDecodeFramePlainJSON(t *testing.T) {
	data := []byte(`{"index":1}`)
	out, err := decodeFrame(data)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestDecodeFrameBrotli(t *testing.T) {
	plain := []byte(`{"index":2,"metadata":{"block_number":5}}`)

	var buf bytesBuffer
	w := brotli.NewWriter(&buf)
	_, err := w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	out, err := decodeFrame(buf.b)
	require.NoError(t, err)
	require.Equal(t, plain, out)
}

func TestParsePayloadEmptyTransactions(t *testing.T) {
	raw := []byte(`{"index":0,"metadata":{"block_number":100},"diff":{"transactions":[],"state_root":"0x00","receipts_root":"0x00"}}`)
	event, err := parsePayload(raw)
	require.NoError(t, err)
	require.Equal(t, uint64(100), event.BlockNumber)
	require.Equal(t, uint32(0), event.Index)
	require.Empty(t, event.Transactions)
}

func TestParsePayloadSkipsBadTransaction(t *testing.T) {
	raw := []byte(`{"index":3,"metadata":{"block_number":101},"diff":{"transactions":["0xnotvalidhex!!","0x"],"state_root":"0x0","receipts_root":"0x0"}}`)
	event, err := parsePayload(raw)
	require.NoError(t, err)
	require.Empty(t, event.Transactions)
}

func TestNextBackoffSaturates(t *testing.T) {
	b := initialBackoff
	for i := 0; i < 10; i++ {
		b = nextBackoff(b)
	}
	require.Equal(t, maxBackoff, b)
}

func TestParseNewAccountBalance(t *testing.T) {
	v, err := ParseNewAccountBalance("0x2710")
	require.NoError(t, err)
	require.Equal(t, int64(10000), v.Int64())
}

// bytesBuffer is a tiny io.Writer/Reader-source adapter to avoid pulling
// in bytes.Buffer twice with confusing import aliasing in this file.
type bytesBuffer struct{ b []byte }

func (b *bytesBuffer) Write(p []byte) (int, error) {
	b.b = append(b.b, p...)
	return len(p), nil
}
