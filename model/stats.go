package model

// Stats is a point-in-time telemetry snapshot of the data plane. Counters are monotonic.
type Stats struct {
	Hits      int64
	Misses    int64
	StaleHits int64

	Admitted         int64
	Rejected         int64
	CapacityExceeded int64
	TooLarge         int64
	InvalidKeys      int64
	LostToInvalidate int64

	Invalidations int64
	Evictions     map[EvictReason]int64
	EvictedBytes  map[EvictReason]int64

	RefreshRequests int64
	AccessesDropped int64
	PolicyFaults    int64

	EventsPublished int64
	EventsDropped   int64

	Entries      int64
	IndexBuckets int
	UsedBytes    int64
	HardCapBytes int64
	SoftCapBytes int64
	SlabReserved int64
	SlabCapacity int64
	Pressure     PressureLevel

	Tenants []TenantStats
}

type TenantStats struct {
	Tenant     TenantID
	UsedBytes  int64
	QuotaBytes int64
	Entries    int64
	Policy     string
}
