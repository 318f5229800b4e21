package config

import "time"

const (
	defaultPromoteThreshold = 3
	defaultPromoteBatch     = 64
	defaultFlushPerSec      = 20
	defaultMaxPending       = 4096
)

// PromoterCfg configures the promotion manager that runs next to the
// authoritative store.
type PromoterCfg struct {
	// Threshold is the minimum hotness estimate of a promotion candidate.
	Threshold uint8 `yaml:"threshold"`

	// BatchSize caps the items of one BATCH_PROMOTE.
	BatchSize int `yaml:"batch_size"`

	// FlushPerSec paces batch submissions.
	FlushPerSec int `yaml:"flush_per_sec"`

	// MaxPending bounds the candidates waiting for the next batch.
	MaxPending int `yaml:"max_pending"`

	// TTL is attached to promoted items, zero leaves the data plane default.
	TTL time.Duration `yaml:"ttl"`

	// Mode tells how writes are paired with invalidations: synchronously under
	// strict and version_check, after the acknowledgment otherwise.
	Mode ConsistencyMode `yaml:"mode"`

	Hotness *HotnessCfg `yaml:"hotness"`
}

// AdjustPromoter fills defaults; a nil cfg yields the default config.
func AdjustPromoter(cfg *PromoterCfg) *PromoterCfg {
	if cfg == nil {
		cfg = &PromoterCfg{}
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = defaultPromoteThreshold
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultPromoteBatch
	}
	if cfg.FlushPerSec <= 0 {
		cfg.FlushPerSec = defaultFlushPerSec
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = defaultMaxPending
	}
	if cfg.Mode == "" {
		cfg.Mode = ConsistencyStrict
	}
	cfg.Hotness = AdjustHotness(cfg.Hotness)
	return cfg
}

// SyncInvalidation reports whether a write waits for its invalidation.
func (cfg *PromoterCfg) SyncInvalidation() bool {
	return cfg.Mode == ConsistencyStrict || cfg.Mode == ConsistencyVersionCheck
}
