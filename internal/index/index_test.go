package index

import (
	"fmt"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

func put(t *testing.T, ix *Index, tenant model.TenantID, key string) *Entry {
	t.Helper()
	k := []byte(key)
	_, next, err := ix.Upsert(tenant, k, Hash(tenant, k), func(*Entry) (*Entry, error) {
		return NewEntry(Spec{Tenant: tenant, Key: k, Hash: Hash(tenant, k), Cost: int64(len(k))}), nil
	})
	require.NoError(t, err)
	return next
}

// TestUpsertGetVersions increments versions on every re-publication.
func TestUpsertGetVersions(t *testing.T) {
	ix := New(4, 4)

	first := put(t, ix, 1, "k")
	require.Equal(t, uint64(1), first.Version())
	second := put(t, ix, 1, "k")
	require.Equal(t, uint64(2), second.Version())

	got, ok := ix.Get(1, []byte("k"), Hash(1, []byte("k")))
	require.True(t, ok)
	require.Same(t, second, got)
	require.Equal(t, int64(1), ix.Len())
}

// TestTenantsAreDistinct keeps equal keys of different tenants apart.
func TestTenantsAreDistinct(t *testing.T) {
	ix := New(4, 4)
	a := put(t, ix, 1, "shared")
	b := put(t, ix, 2, "shared")
	require.NotSame(t, a, b)
	require.NotEqual(t, Hash(1, []byte("shared")), Hash(2, []byte("shared")))

	got, ok := ix.Get(2, []byte("shared"), Hash(2, []byte("shared")))
	require.True(t, ok)
	require.Same(t, b, got)
}

// TestVersionsSurviveRemoval starts a re-added key above every removed version.
func TestVersionsSurviveRemoval(t *testing.T) {
	ix := New(4, 4)
	for i := 0; i < 5; i++ {
		put(t, ix, 1, "k")
	}
	k := []byte("k")
	removed, ok := ix.Remove(1, k, Hash(1, k), nil)
	require.True(t, ok)
	require.Equal(t, uint64(5), removed.Version())

	again := put(t, ix, 1, "k")
	require.Equal(t, uint64(6), again.Version())
}

// TestTombstoneKeepsVersion lets the next value continue from the tombstoned one.
func TestTombstoneKeepsVersion(t *testing.T) {
	ix := New(4, 4)
	put(t, ix, 1, "k")
	put(t, ix, 1, "k")

	k := []byte("k")
	prev, tomb, err := ix.Upsert(1, k, Hash(1, k), func(*Entry) (*Entry, error) {
		return NewTombstone(1, k, Hash(1, k), time.Now().UnixNano()), nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), prev.Version())
	require.Equal(t, uint64(2), tomb.Version())
	require.True(t, tomb.IsTombstone())

	require.Equal(t, uint64(3), put(t, ix, 1, "k").Version())
}

// TestUpsertBuildError leaves the bucket untouched.
func TestUpsertBuildError(t *testing.T) {
	ix := New(4, 4)
	k := []byte("k")
	_, next, err := ix.Upsert(1, k, Hash(1, k), func(*Entry) (*Entry, error) {
		return nil, ErrKeyChanged
	})
	require.ErrorIs(t, err, ErrKeyChanged)
	require.Nil(t, next)
	_, ok := ix.Get(1, k, Hash(1, k))
	require.False(t, ok)
}

// TestRemoveEntryOnlyCurrent refuses to remove a replaced entry.
func TestRemoveEntryOnlyCurrent(t *testing.T) {
	ix := New(4, 4)
	old := put(t, ix, 1, "k")
	cur := put(t, ix, 1, "k")

	require.False(t, ix.RemoveEntry(old))
	require.True(t, ix.RemoveEntry(cur))
	require.Zero(t, ix.Len())
}

// TestIncrementalResize grows the table while every key stays reachable.
func TestIncrementalResize(t *testing.T) {
	ix := New(2, 1)
	const n = 2000
	for i := 0; i < n; i++ {
		put(t, ix, 1, fmt.Sprintf("key-%d", i))
		key := []byte(fmt.Sprintf("key-%d", i/2))
		_, ok := ix.Get(1, key, Hash(1, key))
		require.True(t, ok, "key %s lost during resize", key)
	}
	require.Greater(t, ix.Resizes(), int64(0))
	require.Greater(t, ix.Buckets(), 2)

	seen := 0
	ix.Range(func(*Entry) bool { seen++; return true })
	require.Equal(t, n, seen)
}

// TestScanWrapsAround covers every bucket exactly once per full pass.
func TestScanWrapsAround(t *testing.T) {
	ix := New(8, 100)
	for i := 0; i < 50; i++ {
		put(t, ix, 1, fmt.Sprintf("k%d", i))
	}
	seen := 0
	cursor := 0
	for step := 0; step < 4; step++ {
		cursor = ix.Scan(cursor, 2, func(*Entry) bool { seen++; return true })
	}
	require.Equal(t, 0, cursor)
	require.Equal(t, 50, seen)
}

// TestConcurrentReadersDuringWrites never observes a torn or missing entry.
func TestConcurrentReadersDuringWrites(t *testing.T) {
	ix := New(2, 2)
	stable := put(t, ix, 9, "stable")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k := []byte("stable")
			for {
				select {
				case <-stop:
					return
				default:
				}
				e, ok := ix.Get(9, k, Hash(9, k))
				if !ok || e != stable {
					t.Error("stable entry not observed")
					return
				}
			}
		}()
	}

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := []byte(fmt.Sprintf("w%d-%d", w, i))
				_, _, _ = ix.Upsert(1, k, Hash(1, k), func(*Entry) (*Entry, error) {
					return NewEntry(Spec{Tenant: 1, Key: k, Hash: Hash(1, k)}), nil
				})
			}
		}(w)
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
	require.Equal(t, int64(2001), ix.Len())
}
