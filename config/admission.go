package config

type AdmissionPolicy string

const (
	AdmissionAlways AdmissionPolicy = "always"

	// AdmissionThreshold admits candidates whose estimate reaches MinEstimate.
	AdmissionThreshold AdmissionPolicy = "threshold"

	// AdmissionComparative admits a candidate only if it is estimated hotter than the
	// entry the tenant's eviction policy would drop next.
	AdmissionComparative AdmissionPolicy = "comparative"

	// AdmissionSizeAware raises the required estimate as the remaining budget shrinks.
	AdmissionSizeAware AdmissionPolicy = "size_aware"
)

type AdmissionCfg struct {
	Policy AdmissionPolicy `yaml:"policy"`

	// MinEstimate is the estimate (0..15) required by the threshold policy.
	MinEstimate uint8 `yaml:"min_estimate"`

	// SizeAwareFloor is the budget fill ratio above which the size-aware policy starts
	// demanding hotter candidates. Example: 0.75.
	SizeAwareFloor float64 `yaml:"size_aware_floor"`
}

func (cfg *AdmissionCfg) Enabled() bool {
	return cfg != nil
}

// HotnessCfg dimensions the TinyLFU-style frequency sketch (count-min + doorkeeper).
type HotnessCfg struct {
	// Capacity is the expected number of distinct hot keys.
	Capacity int `yaml:"capacity"`

	// Shards defines how many independent sketches are used.
	Shards int `yaml:"shards"`

	// MinTableLenPerShard is a lower bound for a shard's counter table.
	MinTableLenPerShard int `yaml:"min_table_len_per_shard"`

	// SampleMultiplier scales the number of increments before counters are halved.
	SampleMultiplier int `yaml:"sample_multiplier"`

	// DoorBitsPerCounter sizes the doorkeeper bloom filter.
	DoorBitsPerCounter int `yaml:"door_bits_per_counter"`
}

func (cfg *HotnessCfg) Enabled() bool {
	return cfg != nil
}
