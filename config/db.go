package config

import "time"

type DBCfg struct {
	// SizeBytes is the global hard cap of charged bytes (key + value of every resident entry).
	SizeBytes int64 `yaml:"size"`

	// MaxKeySize bounds key length in bytes. Longer keys are rejected as invalid.
	MaxKeySize int `yaml:"max_key_size"`

	// IndexBuckets is the initial number of index buckets, rounded up to a power of two.
	IndexBuckets int `yaml:"index_buckets"`

	// IndexLoadFactor is the average bucket length that triggers an incremental resize.
	IndexLoadFactor float64 `yaml:"index_load_factor"`

	// ReclaimInterval is how often retired memory is handed back to the slab when nothing forces it earlier.
	ReclaimInterval time.Duration `yaml:"reclaim_interval"`

	IsTelemetryLogsEnabled bool          `yaml:"stat_logs_enabled"`
	TelemetryLogsInterval  time.Duration `yaml:"stat_logs_interval"`
	CacheTimeEnabled       bool          `yaml:"cache_time_enabled"`
}

type SlabCfg struct {
	// MinChunkSize is the smallest size class in bytes.
	MinChunkSize int `yaml:"min_chunk_size"`

	// GrowthFactor is the ratio between neighbouring size classes.
	GrowthFactor float64 `yaml:"growth_factor"`

	// MaxItemSize bounds a single value. Larger values are refused as TOO_LARGE.
	MaxItemSize int `yaml:"max_item_size"`

	// Overprovision multiplies the hard cap to get the physical arena capacity,
	// covering size-class rounding and memory awaiting a grace period.
	Overprovision float64 `yaml:"overprovision"`

	// CapacityBytes is derived from DB.SizeBytes and Overprovision. It is not read from YAML.
	CapacityBytes int64 // virtual: computed during init
}
