package model

import (
	"github.com/stretchr/testify/require"
	"testing"
)

// TestKeyString checks the tenant-qualified rendering of keys.
func TestKeyString(t *testing.T) {
	k := NewKey(7, []byte("user:42"))
	require.Equal(t, "7/user:42", k.String())
	require.Equal(t, Key{Tenant: 7, Name: "user:42"}, k)
}

// TestEventKindNames verifies wire names of event kinds.
func TestEventKindNames(t *testing.T) {
	require.Equal(t, "ENTRY_EVICTED", EntryEvicted.String())
	require.Equal(t, "PRESSURE_WARNING", PressureWarning.String())
	require.Equal(t, "UNKNOWN", EventKind(200).String())
	require.Len(t, EventKinds(), 5)
}

// TestPromoteItemCost counts key and value bytes.
func TestPromoteItemCost(t *testing.T) {
	require.Equal(t, int64(52), PromoteItem{Key: []byte("k1"), Value: make([]byte, 50)}.Cost())
}
