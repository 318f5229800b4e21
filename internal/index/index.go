// Package index maps (tenant, key) to the currently published Entry.
//
// Readers are lock-free: a bucket is an atomic pointer to an immutable slice of
// entries that writers replace copy-on-write under the bucket mutex. The table
// doubles incrementally; each write migrates at most one bucket, and readers of a
// migrated bucket follow it into the next table.
package index

import (
	"errors"
	"github.com/Borislavv/go-hotkv/model"
	"sync"
	"sync/atomic"
)

var ErrKeyChanged = errors.New("index: entry changed concurrently")

type bucketState struct {
	entries  []*Entry
	migrated bool
}

var emptyState = &bucketState{}

type bucket struct {
	mu    sync.Mutex
	state atomic.Pointer[bucketState]
}

type table struct {
	buckets  []bucket
	mask     uint64
	next     atomic.Pointer[table]
	cursor   atomic.Int64
	migrated atomic.Int64
}

func newTable(size int) *table {
	t := &table{buckets: make([]bucket, size), mask: uint64(size - 1)}
	for i := range t.buckets {
		t.buckets[i].state.Store(emptyState)
	}
	return t
}

type Index struct {
	cur        atomic.Pointer[table]
	len        atomic.Int64
	loadFactor float64
	growMu     sync.Mutex
	resizes    atomic.Int64

	// highWater is the largest version ever removed; new keys start above it so a
	// key's versions keep increasing across removals.
	highWater atomic.Uint64
}

func New(buckets int, loadFactor float64) *Index {
	size := 1
	for size < buckets {
		size <<= 1
	}
	if loadFactor <= 0 {
		loadFactor = 4
	}
	ix := &Index{loadFactor: loadFactor}
	ix.cur.Store(newTable(size))
	return ix
}

// Get returns the published entry for the key, tombstones included. It never blocks.
func (ix *Index) Get(tenant model.TenantID, key []byte, hash uint64) (*Entry, bool) {
	t := ix.cur.Load()
	for {
		st := t.buckets[hash&t.mask].state.Load()
		if st.migrated {
			t = t.next.Load()
			continue
		}
		for _, e := range st.entries {
			if e.matches(tenant, key, hash) {
				return e, true
			}
		}
		return nil, false
	}
}

// lockBucket returns the live bucket of hash with its mutex held.
func (ix *Index) lockBucket(hash uint64) *bucket {
	t := ix.cur.Load()
	for {
		b := &t.buckets[hash&t.mask]
		b.mu.Lock()
		if !b.state.Load().migrated {
			return b
		}
		b.mu.Unlock()
		t = t.next.Load()
	}
}

func find(st *bucketState, tenant model.TenantID, key []byte, hash uint64) int {
	for i, e := range st.entries {
		if e.matches(tenant, key, hash) {
			return i
		}
	}
	return -1
}

// Upsert publishes the entry returned by build under the bucket lock. build receives the
// current entry (nil if absent); returning a nil entry leaves the index untouched.
//
// Versions are assigned here: a value entry gets the current version plus one, a
// tombstone keeps the current version.
func (ix *Index) Upsert(
	tenant model.TenantID, key []byte, hash uint64,
	build func(cur *Entry) (*Entry, error),
) (prev, next *Entry, err error) {
	ix.helpResize()

	b := ix.lockBucket(hash)
	st := b.state.Load()
	i := find(st, tenant, key, hash)
	if i >= 0 {
		prev = st.entries[i]
	}

	if next, err = build(prev); err != nil || next == nil {
		b.mu.Unlock()
		return prev, nil, err
	}

	switch {
	case prev != nil && next.tomb:
		next.version = prev.version
	case prev != nil:
		next.version = prev.version + 1
	case next.tomb:
		next.version = ix.highWater.Load()
	default:
		next.version = ix.highWater.Load() + 1
	}

	entries := make([]*Entry, len(st.entries), len(st.entries)+1)
	copy(entries, st.entries)
	if i >= 0 {
		entries[i] = next
	} else {
		entries = append(entries, next)
	}
	b.state.Store(&bucketState{entries: entries})
	b.mu.Unlock()

	if i < 0 {
		ix.len.Add(1)
		ix.maybeGrow()
	}
	return prev, next, nil
}

// Remove unpublishes the key's entry if match accepts it (a nil match accepts anything).
func (ix *Index) Remove(tenant model.TenantID, key []byte, hash uint64, match func(cur *Entry) bool) (*Entry, bool) {
	ix.helpResize()

	b := ix.lockBucket(hash)
	st := b.state.Load()
	i := find(st, tenant, key, hash)
	if i < 0 || (match != nil && !match(st.entries[i])) {
		b.mu.Unlock()
		return nil, false
	}
	removed := st.entries[i]

	entries := make([]*Entry, 0, len(st.entries)-1)
	entries = append(entries, st.entries[:i]...)
	entries = append(entries, st.entries[i+1:]...)
	b.state.Store(&bucketState{entries: entries})
	ix.raiseHighWater(removed.version)
	b.mu.Unlock()

	ix.len.Add(-1)
	return removed, true
}

// RemoveEntry unpublishes e only if it is still the published entry of its key.
func (ix *Index) RemoveEntry(e *Entry) bool {
	_, ok := ix.Remove(e.tenant, e.key, e.hash, func(cur *Entry) bool { return cur == e })
	return ok
}

func (ix *Index) raiseHighWater(v uint64) {
	for {
		cur := ix.highWater.Load()
		if v <= cur || ix.highWater.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Len counts published entries, tombstones included.
func (ix *Index) Len() int64 { return ix.len.Load() }

// Buckets returns the bucket count of the current table.
func (ix *Index) Buckets() int { return len(ix.cur.Load().buckets) }

func (ix *Index) Resizes() int64 { return ix.resizes.Load() }

func (ix *Index) maybeGrow() {
	t := ix.cur.Load()
	if float64(ix.len.Load()) <= ix.loadFactor*float64(len(t.buckets)) || t.next.Load() != nil {
		return
	}

	ix.growMu.Lock()
	defer ix.growMu.Unlock()
	if ix.cur.Load() != t || t.next.Load() != nil {
		return
	}
	t.next.Store(newTable(len(t.buckets) * 2))
}

// helpResize migrates one bucket of an ongoing resize.
func (ix *Index) helpResize() {
	t := ix.cur.Load()
	nt := t.next.Load()
	if nt == nil {
		return
	}
	if i := t.cursor.Add(1) - 1; i < int64(len(t.buckets)) {
		ix.migrate(t, nt, int(i))
	}
}

func (ix *Index) migrate(t, nt *table, i int) {
	b := &t.buckets[i]
	b.mu.Lock()
	st := b.state.Load()
	if st.migrated {
		b.mu.Unlock()
		return
	}

	var lo, hi []*Entry
	for _, e := range st.entries {
		if e.hash&nt.mask == uint64(i) {
			lo = append(lo, e)
		} else {
			hi = append(hi, e)
		}
	}
	nt.buckets[i].state.Store(&bucketState{entries: lo})
	nt.buckets[i+len(t.buckets)].state.Store(&bucketState{entries: hi})
	b.state.Store(&bucketState{entries: st.entries, migrated: true})
	b.mu.Unlock()

	if t.migrated.Add(1) == int64(len(t.buckets)) {
		ix.cur.CompareAndSwap(t, nt)
		ix.resizes.Add(1)
	}
}

// Range calls fn for every published entry until fn returns false.
// Entries published or removed during the walk may or may not be seen.
func (ix *Index) Range(fn func(e *Entry) bool) {
	t := ix.cur.Load()
	for i := range t.buckets {
		if !visit(t, i, fn) {
			return
		}
	}
}

// Scan visits span buckets starting at from (modulo the table size) and returns the
// position to continue from.
func (ix *Index) Scan(from, span int, fn func(e *Entry) bool) int {
	t := ix.cur.Load()
	n := len(t.buckets)
	if from < 0 {
		from = 0
	}
	for k := 0; k < span && k < n; k++ {
		if !visit(t, (from+k)%n, fn) {
			return (from + k + 1) % n
		}
	}
	return (from + span) % n
}

func visit(t *table, i int, fn func(e *Entry) bool) bool {
	st := t.buckets[i].state.Load()
	if st.migrated {
		nt := t.next.Load()
		return visit(nt, i, fn) && visit(nt, i+len(t.buckets), fn)
	}
	for _, e := range st.entries {
		if !fn(e) {
			return false
		}
	}
	return true
}
