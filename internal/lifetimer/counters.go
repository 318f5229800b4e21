package lifetimer

import (
	"github.com/Borislavv/go-hotkv/internal/cache"
	"sync/atomic"
)

type lifetimerCounters struct {
	steps     atomic.Int64
	scanned   atomic.Int64 // entries visited
	expired   atomic.Int64 // expired or stale entries removed
	purged    atomic.Int64 // tombstones released
	refreshed atomic.Int64 // refresh requests issued
}

func newLifetimerCounters() *lifetimerCounters {
	return &lifetimerCounters{}
}

func (c *lifetimerCounters) add(res cache.SweepResult) {
	c.steps.Add(1)
	c.scanned.Add(int64(res.Scanned))
	c.expired.Add(int64(res.Expired))
	c.purged.Add(int64(res.Purged))
	c.refreshed.Add(int64(res.Refreshed))
}

func (c *lifetimerCounters) snapshot() (steps, scanned, expired, purged, refreshed int64) {
	return c.steps.Load(), c.scanned.Load(), c.expired.Load(), c.purged.Load(), c.refreshed.Load()
}
