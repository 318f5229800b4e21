package config

// EvictionPolicy names a victim selection strategy.
type EvictionPolicy string

const (
	EvictionLRU  EvictionPolicy = "lru"
	EvictionLFU  EvictionPolicy = "lfu"
	EvictionSLRU EvictionPolicy = "slru"
	EvictionTwoQ EvictionPolicy = "2q"
	EvictionFIFO EvictionPolicy = "fifo"
)

type EvictionCfg struct {
	Policy EvictionPolicy `yaml:"policy"`

	// SoftLimitCoefficient defines the soft watermark as a fraction of cfg.DB.SizeBytes.
	// Above it a PRESSURE_WARNING is emitted and background eviction starts.
	//
	// Example:
	//   SoftLimitCoefficient: 0.80
	SoftLimitCoefficient float64 `yaml:"soft_limit_coefficient"`

	// SoftMemoryLimitBytes is derived from cfg.DB.SizeBytes and SoftLimitCoefficient.
	SoftMemoryLimitBytes int64 // virtual: computed during init (bytes)

	// CallsPerSec defines how many pressure checks the evictor performs per second.
	CallsPerSec int64 `yaml:"calls_per_sec"`

	// ProtectedRatio is the share of entries SLRU keeps in its protected segment.
	ProtectedRatio float64 `yaml:"protected_ratio"`

	// TwoQInRatio is the byte share of the 2Q admission queue.
	TwoQInRatio float64 `yaml:"two_q_in_ratio"`

	// TwoQGhostEntries bounds the 2Q history of recently evicted keys.
	TwoQGhostEntries int `yaml:"two_q_ghost_entries"`

	// EmergencyReclaim allows an admission at the hard cap to evict entries of other tenants.
	EmergencyReclaim bool `yaml:"emergency_reclaim"`
}

func (cfg *EvictionCfg) Enabled() bool {
	return cfg != nil
}
