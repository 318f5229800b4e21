package consistency

import (
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

// TestNew resolves modes and defaults to strict.
func TestNew(t *testing.T) {
	p, err := New(nil)
	require.NoError(t, err)
	require.Equal(t, "strict", p.Name())

	p, err = New(&config.ConsistencyCfg{Mode: config.ConsistencyBounded, MaxStaleness: time.Second})
	require.NoError(t, err)
	require.Equal(t, Bounded{MaxStaleness: time.Second}, p)

	_, err = New(&config.ConsistencyCfg{Mode: "eventual"})
	require.Error(t, err)
}

// TestTombstoneNeverServed holds for every mode.
func TestTombstoneNeverServed(t *testing.T) {
	for _, p := range []Policy{Strict{}, VersionCheck{}, Bounded{MaxStaleness: time.Hour}, AsyncRefresh{MaxStaleness: time.Hour}} {
		require.Equal(t, Miss, p.OnRead(Read{State: model.Tombstoned}), p.Name())
		require.Equal(t, Serve, p.OnRead(Read{State: model.Fresh, Version: 3}), p.Name())
	}
}

// TestBoundedStaleness serves stale entries up to the bound.
func TestBoundedStaleness(t *testing.T) {
	p := Bounded{MaxStaleness: 2 * time.Second}
	require.Equal(t, MarkStale, p.OnInvalidate())
	require.Equal(t, ServeStale, p.OnRead(Read{State: model.Stale, StaleFor: time.Second}))
	require.Equal(t, Miss, p.OnRead(Read{State: model.Stale, StaleFor: 3 * time.Second}))
	require.Equal(t, Keep, p.OnStaleSweep(time.Second))
	require.Equal(t, Remove, p.OnStaleSweep(3*time.Second))
}

// TestVersionCheck misses on an unexpected version.
func TestVersionCheck(t *testing.T) {
	p := VersionCheck{}
	require.Equal(t, Tombstone, p.OnInvalidate())
	require.Equal(t, Serve, p.OnRead(Read{State: model.Fresh, Expected: 4, Version: 4}))
	require.Equal(t, Miss, p.OnRead(Read{State: model.Fresh, Expected: 3, Version: 4}))
}

// TestAsyncRefresh requests refreshes for stale entries within the bound.
func TestAsyncRefresh(t *testing.T) {
	p := AsyncRefresh{MaxStaleness: time.Second}
	require.Equal(t, MarkStaleRefresh, p.OnInvalidate())
	require.Equal(t, ServeStaleRefresh, p.OnRead(Read{State: model.Stale, StaleFor: time.Millisecond}))
	require.Equal(t, Refresh, p.OnStaleSweep(time.Millisecond))
	require.Equal(t, Remove, p.OnStaleSweep(2*time.Second))
}
