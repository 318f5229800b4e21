package config

// Cache groups configuration of all data plane subsystems.
// Optional components are disabled by leaving them nil.
type Cache struct {
	DB DBCfg `yaml:"db"`

	// Slab configures the size-classed value arena.
	Slab SlabCfg `yaml:"slab"`

	// Tenants configures quotas and the tenant budget policy.
	// If nil, every tenant gets the whole hard cap as its quota (single shared namespace).
	Tenants *TenantsCfg `yaml:"tenants"`

	// Admission configures the admission policy applied to promotion candidates.
	// If nil, every candidate that fits into memory is admitted.
	Admission *AdmissionCfg `yaml:"admission"`

	// Eviction configures the victim selection policy and the background soft-watermark evictor.
	// If nil, background eviction is disabled; admissions hitting the hard cap still
	// reclaim synchronously through an LRU policy.
	Eviction *EvictionCfg `yaml:"eviction"`

	// Consistency configures invalidation semantics.
	// If nil, strict invalidation is used.
	Consistency *ConsistencyCfg `yaml:"consistency"`

	// Lifetime configures the background sweeper for TTL expiry, stale entries and tombstones.
	// If nil, expired entries are only hidden from reads and reclaimed by eviction.
	Lifetime *LifetimerCfg `yaml:"lifetime"`

	// Hotness dimensions the frequency sketch used by the promoter.
	Hotness *HotnessCfg `yaml:"hotness"`

	Events EventsCfg `yaml:"events"`

	// Transport configures the control and event channel endpoints of the daemon.
	Transport *TransportCfg `yaml:"transport"`
}
