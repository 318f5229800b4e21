package cache

import (
	"github.com/Borislavv/go-hotkv/model"
	"sync/atomic"
)

const reasons = int(model.ReasonManual) + 1

type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	staleHits atomic.Int64

	admitted         atomic.Int64
	rejected         atomic.Int64
	capacityExceeded atomic.Int64
	tooLarge         atomic.Int64
	invalidKeys      atomic.Int64
	lostToInvalidate atomic.Int64

	invalidations   atomic.Int64
	evictions       [reasons]atomic.Int64
	evictedBytes    [reasons]atomic.Int64
	refreshRequests atomic.Int64
	accessesDropped atomic.Int64
	policyFaults    atomic.Int64
}

func newCounters() *counters {
	return &counters{}
}

func (c *counters) evicted(reason model.EvictReason, bytes int64) {
	if int(reason) >= reasons {
		reason = model.ReasonNone
	}
	c.evictions[reason].Add(1)
	c.evictedBytes[reason].Add(bytes)
}

func (c *counters) promoted(status model.PromoteStatus) {
	switch status {
	case model.Admitted:
		c.admitted.Add(1)
	case model.Rejected:
		c.rejected.Add(1)
	case model.CapacityExceeded:
		c.capacityExceeded.Add(1)
	case model.TooLarge:
		c.tooLarge.Add(1)
	case model.InvalidKey:
		c.invalidKeys.Add(1)
	case model.Invalidated:
		c.lostToInvalidate.Add(1)
	}
}

// snapshot fills the counter part of s.
func (c *counters) snapshot(s *model.Stats) {
	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	s.StaleHits = c.staleHits.Load()
	s.Admitted = c.admitted.Load()
	s.Rejected = c.rejected.Load()
	s.CapacityExceeded = c.capacityExceeded.Load()
	s.TooLarge = c.tooLarge.Load()
	s.InvalidKeys = c.invalidKeys.Load()
	s.LostToInvalidate = c.lostToInvalidate.Load()
	s.Invalidations = c.invalidations.Load()
	s.RefreshRequests = c.refreshRequests.Load()
	s.AccessesDropped = c.accessesDropped.Load()
	s.PolicyFaults = c.policyFaults.Load()

	s.Evictions = make(map[model.EvictReason]int64, reasons)
	s.EvictedBytes = make(map[model.EvictReason]int64, reasons)
	for r := range reasons {
		if n := c.evictions[r].Load(); n > 0 {
			s.Evictions[model.EvictReason(r)] = n
			s.EvictedBytes[model.EvictReason(r)] = c.evictedBytes[r].Load()
		}
	}
}
