// Package epoch implements grace-period memory reclamation for lock-free readers.
//
// Readers bracket every access to shared memory with Enter/Exit. Writers unpublish
// memory first and then Retire a release callback: the callback runs only after
// every reader that might still observe the memory has exited.
package epoch

import (
	"context"
	"github.com/Borislavv/go-hotkv/internal/shared/random"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const stripes = 32

type counter struct {
	n atomic.Int64
	_ [56]byte
}

type Domain struct {
	epoch  atomic.Uint64
	active [2][stripes]counter

	syncMu sync.Mutex

	pendMu  sync.Mutex
	pending []func()
	kick    chan struct{}
	limit   int

	retired   atomic.Int64
	reclaimed atomic.Int64
	graces    atomic.Int64
}

// Guard is an open reader section.
type Guard struct {
	c *counter
}

// New creates a domain that asks its reclaimer to run once more than limit
// callbacks are waiting.
func New(limit int) *Domain {
	if limit <= 0 {
		limit = 1024
	}
	return &Domain{kick: make(chan struct{}, 1), limit: limit}
}

// Enter opens a reader section. It never blocks.
func (d *Domain) Enter() Guard {
	s := random.Uint64() & (stripes - 1)
	for {
		e := d.epoch.Load()
		c := &d.active[e&1][s]
		c.n.Add(1)
		if d.epoch.Load() == e {
			return Guard{c: c}
		}
		c.n.Add(-1)
	}
}

// Exit closes the reader section.
func (g Guard) Exit() {
	g.c.n.Add(-1)
}

// Synchronize waits until every reader section opened before the call has exited.
func (d *Domain) Synchronize() {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	old := d.epoch.Add(1) - 1
	parity := old & 1
	for spins := 0; !d.drained(parity); spins++ {
		if spins < 64 {
			runtime.Gosched()
		} else {
			time.Sleep(20 * time.Microsecond)
		}
	}
	d.graces.Add(1)
}

func (d *Domain) drained(parity uint64) bool {
	for i := range d.active[parity] {
		if d.active[parity][i].n.Load() != 0 {
			return false
		}
	}
	return true
}

// Retire schedules fn to run after a grace period.
func (d *Domain) Retire(fn func()) {
	d.pendMu.Lock()
	d.pending = append(d.pending, fn)
	n := len(d.pending)
	d.pendMu.Unlock()

	d.retired.Add(1)
	if n >= d.limit {
		select {
		case d.kick <- struct{}{}:
		default:
		}
	}
}

// Reclaim waits for one grace period and runs every callback retired before the call.
// It returns the number of callbacks run.
func (d *Domain) Reclaim() int {
	d.pendMu.Lock()
	batch := d.pending
	d.pending = nil
	d.pendMu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	d.Synchronize()
	for _, fn := range batch {
		fn()
	}
	d.reclaimed.Add(int64(len(batch)))
	return len(batch)
}

// Pending returns the number of callbacks awaiting a grace period.
func (d *Domain) Pending() int {
	d.pendMu.Lock()
	defer d.pendMu.Unlock()
	return len(d.pending)
}

// Run reclaims every interval or as soon as the pending limit is hit, until ctx is done.
// Everything still pending is reclaimed before it returns.
func (d *Domain) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	defer d.Reclaim()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		case <-d.kick:
		}
		d.Reclaim()
	}
}

func (d *Domain) Metrics() (retired, reclaimed, gracePeriods int64) {
	return d.retired.Load(), d.reclaimed.Load(), d.graces.Load()
}
