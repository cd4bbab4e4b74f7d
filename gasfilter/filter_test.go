package gasfilter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEntryJSON(t *testing.T) {
	entry, ok := parseEntry(`{"gas":12345,"multiplier":50}`)
	require.True(t, ok)
	require.Equal(t, uint64(12345), entry.Gas)
	require.Equal(t, uint64(50), entry.Multiplier)
}

func TestParseEntryLegacyBareInteger(t *testing.T) {
	entry, ok := parseEntry("98765")
	require.True(t, ok)
	require.Equal(t, uint64(98765), entry.Gas)
	require.Zero(t, entry.Multiplier)
}

func TestParseEntryGarbage(t *testing.T) {
	_, ok := parseEntry("not-a-value")
	require.False(t, ok)
}
