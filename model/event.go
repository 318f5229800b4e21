package model

type EventKind uint8

const (
	EntryEvicted EventKind = iota + 1
	EntryInvalidated
	PressureWarning
	// RefreshRequested asks the promoter to re-read a stale or expiring key.
	RefreshRequested
	// PolicyFault reports a policy that was replaced by its safe default.
	PolicyFault
)

var eventKindNames = [...]string{
	EntryEvicted:     "ENTRY_EVICTED",
	EntryInvalidated: "ENTRY_INVALIDATED",
	PressureWarning:  "PRESSURE_WARNING",
	RefreshRequested: "REFRESH_REQUESTED",
	PolicyFault:      "POLICY_FAULT",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) && eventKindNames[k] != "" {
		return eventKindNames[k]
	}
	return "UNKNOWN"
}

// EventKinds lists every kind in wire order.
func EventKinds() []EventKind {
	return []EventKind{EntryEvicted, EntryInvalidated, PressureWarning, RefreshRequested, PolicyFault}
}

type EvictReason uint8

const (
	ReasonNone EvictReason = iota
	// ReasonCapacity is a synchronous eviction made to fit an admission at the hard cap.
	ReasonCapacity
	// ReasonPressure is a background eviction above the soft watermark.
	ReasonPressure
	ReasonTTL
	// ReasonStale is removal of an entry stale for longer than the maximum staleness age.
	ReasonStale
	// ReasonEmergency is a cross-tenant reclamation.
	ReasonEmergency
	// ReasonManual is an explicit reclaim call.
	ReasonManual
)

var evictReasonNames = [...]string{
	ReasonNone:      "none",
	ReasonCapacity:  "capacity",
	ReasonPressure:  "pressure",
	ReasonTTL:       "ttl",
	ReasonStale:     "stale",
	ReasonEmergency: "emergency",
	ReasonManual:    "manual",
}

func (r EvictReason) String() string {
	if int(r) < len(evictReasonNames) {
		return evictReasonNames[r]
	}
	return "unknown"
}

// EvictReasons lists reasons that are counted by telemetry.
func EvictReasons() []EvictReason {
	return []EvictReason{ReasonCapacity, ReasonPressure, ReasonTTL, ReasonStale, ReasonEmergency, ReasonManual}
}

type PressureLevel uint8

const (
	PressureNone PressureLevel = iota
	PressureSoft
	PressureHard
)

func (l PressureLevel) String() string {
	switch l {
	case PressureSoft:
		return "soft"
	case PressureHard:
		return "hard"
	default:
		return "none"
	}
}

// Event is delivered asynchronously to subscribers. Delivery is best-effort.
type Event struct {
	Kind    EventKind     `json:"kind"`
	Tenant  TenantID      `json:"tenant"`
	Key     string        `json:"key,omitempty"`
	Version uint64        `json:"version,omitempty"`
	Reason  EvictReason   `json:"reason,omitempty"`
	Level   PressureLevel `json:"level,omitempty"`
	// UsedBytes and LimitBytes accompany pressure warnings.
	UsedBytes  int64  `json:"used_bytes,omitempty"`
	LimitBytes int64  `json:"limit_bytes,omitempty"`
	Policy     string `json:"policy,omitempty"`
	Detail     string `json:"detail,omitempty"`
	// At is UnixNano of emission.
	At int64 `json:"at"`
}
