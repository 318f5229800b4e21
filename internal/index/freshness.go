package index

import (
	"github.com/Borislavv/go-hotkv/internal/shared/random"
	"github.com/Borislavv/go-hotkv/model"
	"math"
	"time"
)

const stateBits = 2

func pack(state model.Freshness, at int64) uint64 {
	return uint64(at)>>stateBits<<stateBits | uint64(state)
}

func unpack(m uint64) (model.Freshness, int64) {
	return model.Freshness(m & (1<<stateBits - 1)), int64(m >> stateBits << stateBits)
}

// Freshness returns the state and the time of the last transition (zero while FRESH).
func (e *Entry) Freshness() (model.Freshness, int64) {
	return unpack(e.meta.Load())
}

// MarkStale moves FRESH to STALE at now. It reports false if the entry was not FRESH,
// so the first invalidation fixes the staleness start.
func (e *Entry) MarkStale(now int64) bool {
	return e.meta.CompareAndSwap(pack(model.Fresh, 0), pack(model.Stale, now))
}

// Tombstone moves any state to TOMBSTONED. It reports false if already tombstoned.
func (e *Entry) Tombstone(now int64) bool {
	for {
		m := e.meta.Load()
		if state, _ := unpack(m); state == model.Tombstoned {
			return false
		}
		if e.meta.CompareAndSwap(m, pack(model.Tombstoned, now)) {
			return true
		}
	}
}

// StaleFor returns how long the entry has been STALE at now.
func (e *Entry) StaleFor(now int64) time.Duration {
	state, since := e.Freshness()
	if state != model.Stale || now < since {
		return 0
	}
	return time.Duration(now - since)
}

// TombstonedFor returns how long the entry has been TOMBSTONED at now.
func (e *Entry) TombstonedFor(now int64) time.Duration {
	state, since := e.Freshness()
	if state != model.Tombstoned || now < since {
		return 0
	}
	return time.Duration(now - since)
}

// ExpiringSoon reports whether a refresh should be requested ahead of TTL expiry.
// Nothing happens before coefficient*ttl has elapsed; after that the deterministic mode
// always says yes while the stochastic mode says yes with probability 1-exp(-beta*elapsed/ttl).
func (e *Entry) ExpiringSoon(now int64, coefficient, beta float64, stochastic bool) bool {
	if e.expireAt == 0 {
		return false
	}
	ttl := float64(e.expireAt - e.createdAt)
	elapsed := float64(now - e.createdAt)
	if elapsed < ttl*coefficient {
		return false
	}
	if !stochastic {
		return true
	}
	probability := 1 - math.Exp(-beta*(elapsed/ttl))
	return random.Float64() < probability
}
