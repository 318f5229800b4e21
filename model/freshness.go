package model

// Freshness is the per-entry invalidation state.
//
//	FRESH -> STALE       on invalidation under a staleness-tolerant mode
//	FRESH -> TOMBSTONED  on invalidation under strict modes, or TTL expiry
//	STALE -> TOMBSTONED  on max staleness age, eviction or removal
//	STALE -> FRESH       on a completed refresh (a new version replaces the entry)
//
// A TOMBSTONED entry is never served.
type Freshness uint32

const (
	Fresh Freshness = iota
	Stale
	Tombstoned
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Tombstoned:
		return "tombstoned"
	default:
		return "unknown"
	}
}
