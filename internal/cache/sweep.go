package cache

import (
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/internal/index"
	"github.com/Borislavv/go-hotkv/internal/policy/consistency"
	"github.com/Borislavv/go-hotkv/model"
)

type SweepResult struct {
	Scanned   int
	Expired   int
	Purged    int
	Refreshed int
}

type doomed struct {
	e      *index.Entry
	reason model.EvictReason
}

// NeedsSweep reports whether anything in the data plane ages: TTLs, held
// tombstones or stale entries.
func (c *Cache) NeedsSweep() bool {
	return c.ttl > 0 || c.hold > 0 || c.cfg.ConsistencyMode() != config.ConsistencyStrict || c.lifetime.Enabled()
}

// Sweep visits span index buckets starting at cursor and returns the next cursor.
// Expired entries and entries stale for too long are removed, held tombstones are
// released once the hold is over and refreshes are requested where the
// consistency policy asks for them.
func (c *Cache) Sweep(cursor, span int) (int, SweepResult) {
	now := c.clock.UnixNano()
	var (
		res   SweepResult
		dooms []doomed
	)
	next := c.index.Scan(cursor, span, func(e *index.Entry) bool {
		res.Scanned++
		if e.IsTombstone() {
			if e.TombstonedFor(now) >= c.hold {
				dooms = append(dooms, doomed{e: e})
			}
			return true
		}
		if e.Expired(now) {
			dooms = append(dooms, doomed{e: e, reason: model.ReasonTTL})
			return true
		}
		switch state, _ := e.Freshness(); state {
		case model.Tombstoned:
			dooms = append(dooms, doomed{e: e, reason: model.ReasonTTL})
		case model.Stale:
			switch c.onStaleSweep(e.StaleFor(now)) {
			case consistency.Remove:
				dooms = append(dooms, doomed{e: e, reason: model.ReasonStale})
			case consistency.Refresh:
				if c.requestRefresh(e, now) {
					res.Refreshed++
				}
			}
		default:
			if c.expiringSoon(e, now) && c.requestRefresh(e, now) {
				res.Refreshed++
			}
		}
		return true
	})

	for _, it := range dooms {
		if !c.drop(it) {
			continue
		}
		if it.e.IsTombstone() {
			res.Purged++
		} else {
			res.Expired++
		}
	}
	return next, res
}

func (c *Cache) expiringSoon(e *index.Entry, now int64) bool {
	if !c.lifetime.Enabled() || c.lifetime.Coefficient <= 0 || !c.asyncRefresh() {
		return false
	}
	return e.ExpiringSoon(now, c.lifetime.Coefficient, c.lifetime.Beta, c.lifetime.StochasticBetaRefreshEnabled)
}

// drop removes a swept entry if it is still the published one.
func (c *Cache) drop(it doomed) bool {
	d := c.domain(it.e.Tenant())
	d.mu.Lock()
	defer d.mu.Unlock()

	if !c.index.RemoveEntry(it.e) {
		return false
	}
	if !it.e.IsTombstone() {
		c.evicted(d, it.e, it.reason, false)
	}
	return true
}
