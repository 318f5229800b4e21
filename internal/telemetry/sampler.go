package telemetry

import (
	"github.com/Borislavv/go-hotkv/internal/evictor"
	"github.com/Borislavv/go-hotkv/internal/lifetimer"
	"github.com/Borislavv/go-hotkv/model"
)

// Source is the data plane as seen by telemetry.
type Source interface {
	Stats() model.Stats
}

type sampler struct {
	source    Source
	evictor   evictor.Evictor
	lifetimer lifetimer.Lifetimer
}

func newSampler(src Source, e evictor.Evictor, lt lifetimer.Lifetimer) sampler {
	return sampler{source: src, evictor: e, lifetimer: lt}
}

// snapshot holds cumulative counters (monotonic).
type snapshot struct {
	hits      uint64
	misses    uint64
	staleHits uint64

	admitted         uint64
	rejected         uint64
	capacityExceeded uint64
	tooLarge         uint64
	lostToInvalidate uint64

	invalidations   uint64
	evictedItems    uint64
	evictedBytes    uint64
	refreshRequests uint64
	policyFaults    uint64

	softScans        uint64
	softHits         uint64
	softEvictedItems uint64
	softEvictedBytes uint64

	sweepSteps     uint64
	sweepScanned   uint64
	sweepExpired   uint64
	sweepPurged    uint64
	sweepRefreshed uint64
}

func (s sampler) snapshot() (snapshot, model.Stats) {
	st := s.source.Stats()
	softScans, softHits, softItems, softBytes := s.evictor.Metrics()
	steps, scanned, expired, purged, refreshed := s.lifetimer.Metrics()

	var evictedItems, evictedBytes int64
	for _, r := range model.EvictReasons() {
		evictedItems += st.Evictions[r]
		evictedBytes += st.EvictedBytes[r]
	}

	return snapshot{
		hits:      u(st.Hits),
		misses:    u(st.Misses),
		staleHits: u(st.StaleHits),

		admitted:         u(st.Admitted),
		rejected:         u(st.Rejected),
		capacityExceeded: u(st.CapacityExceeded),
		tooLarge:         u(st.TooLarge),
		lostToInvalidate: u(st.LostToInvalidate),

		invalidations:   u(st.Invalidations),
		evictedItems:    u(evictedItems),
		evictedBytes:    u(evictedBytes),
		refreshRequests: u(st.RefreshRequests),
		policyFaults:    u(st.PolicyFaults),

		softScans:        u(softScans),
		softHits:         u(softHits),
		softEvictedItems: u(softItems),
		softEvictedBytes: u(softBytes),

		sweepSteps:     u(steps),
		sweepScanned:   u(scanned),
		sweepExpired:   u(expired),
		sweepPurged:    u(purged),
		sweepRefreshed: u(refreshed),
	}, st
}

func u(v int64) uint64 { return uint64(max(v, 0)) }

// deltaSnapshot converts cumulative snapshots to per-interval deltas.
// If counters reset (cur < prev), it treats cur as the delta.
func deltaSnapshot(prev, cur snapshot) snapshot {
	return snapshot{
		hits:      delta(prev.hits, cur.hits),
		misses:    delta(prev.misses, cur.misses),
		staleHits: delta(prev.staleHits, cur.staleHits),

		admitted:         delta(prev.admitted, cur.admitted),
		rejected:         delta(prev.rejected, cur.rejected),
		capacityExceeded: delta(prev.capacityExceeded, cur.capacityExceeded),
		tooLarge:         delta(prev.tooLarge, cur.tooLarge),
		lostToInvalidate: delta(prev.lostToInvalidate, cur.lostToInvalidate),

		invalidations:   delta(prev.invalidations, cur.invalidations),
		evictedItems:    delta(prev.evictedItems, cur.evictedItems),
		evictedBytes:    delta(prev.evictedBytes, cur.evictedBytes),
		refreshRequests: delta(prev.refreshRequests, cur.refreshRequests),
		policyFaults:    delta(prev.policyFaults, cur.policyFaults),

		softScans:        delta(prev.softScans, cur.softScans),
		softHits:         delta(prev.softHits, cur.softHits),
		softEvictedItems: delta(prev.softEvictedItems, cur.softEvictedItems),
		softEvictedBytes: delta(prev.softEvictedBytes, cur.softEvictedBytes),

		sweepSteps:     delta(prev.sweepSteps, cur.sweepSteps),
		sweepScanned:   delta(prev.sweepScanned, cur.sweepScanned),
		sweepExpired:   delta(prev.sweepExpired, cur.sweepExpired),
		sweepPurged:    delta(prev.sweepPurged, cur.sweepPurged),
		sweepRefreshed: delta(prev.sweepRefreshed, cur.sweepRefreshed),
	}
}

func delta(prev, cur uint64) uint64 {
	if cur >= prev {
		return cur - prev
	}
	return cur
}
