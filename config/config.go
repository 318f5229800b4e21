package config

import (
	"errors"
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"time"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	defaultMaxKeySize        = 256
	defaultIndexBuckets      = 1024
	defaultIndexLoadFactor   = 4.0
	defaultReclaimInterval   = 10 * time.Millisecond
	defaultTelemetryInterval = 5 * time.Second
	defaultMinChunkSize      = 64
	defaultGrowthFactor      = 1.25
	defaultMaxItemSize       = 1 << 20
	defaultOverprovision     = 2.0
	defaultSoftCoefficient   = 0.8
	defaultEvictorCalls      = 10
	defaultProtectedRatio    = 0.8
	defaultTwoQInRatio       = 0.25
	defaultTwoQGhostEntries  = 4096
	defaultSizeAwareFloor    = 0.75
	defaultTombstoneHold     = 100 * time.Millisecond
	defaultRefreshRetry      = time.Second
	defaultSweepRate         = 100
	defaultBucketsPerSweep   = 64
	defaultEventsBuffer      = 4096
	defaultSubscriberBuffer  = 1024
	defaultRebalance         = time.Second
	defaultTransportTimeout  = 50 * time.Millisecond
	defaultHotnessCapacity   = 1 << 16
	defaultHotnessShards     = 64
	defaultHotnessMinTable   = 256
	defaultHotnessSamples    = 10
	defaultHotnessDoorBits   = 8
)

// AdjustConfig fills zero values with defaults and computes derived fields.
func (cfg *Cache) AdjustConfig() {
	if cfg.DB.MaxKeySize <= 0 {
		cfg.DB.MaxKeySize = defaultMaxKeySize
	}
	if cfg.DB.IndexBuckets <= 0 {
		cfg.DB.IndexBuckets = defaultIndexBuckets
	}
	if cfg.DB.IndexLoadFactor <= 0 {
		cfg.DB.IndexLoadFactor = defaultIndexLoadFactor
	}
	if cfg.DB.ReclaimInterval <= 0 {
		cfg.DB.ReclaimInterval = defaultReclaimInterval
	}
	if cfg.DB.TelemetryLogsInterval <= 0 {
		cfg.DB.TelemetryLogsInterval = defaultTelemetryInterval
	}

	if cfg.Slab.MinChunkSize <= 0 {
		cfg.Slab.MinChunkSize = defaultMinChunkSize
	}
	if cfg.Slab.GrowthFactor <= 1 {
		cfg.Slab.GrowthFactor = defaultGrowthFactor
	}
	if cfg.Slab.MaxItemSize <= 0 {
		cfg.Slab.MaxItemSize = defaultMaxItemSize
	}
	if cfg.Slab.Overprovision < 1 {
		cfg.Slab.Overprovision = defaultOverprovision
	}
	cfg.Slab.CapacityBytes = int64(float64(cfg.DB.SizeBytes) * cfg.Slab.Overprovision)

	if cfg.Tenants.Enabled() {
		if cfg.Tenants.Policy == "" {
			cfg.Tenants.Policy = TenantHardQuota
		}
		if cfg.Tenants.RebalanceInterval <= 0 {
			cfg.Tenants.RebalanceInterval = defaultRebalance
		}
		for i := range cfg.Tenants.List {
			if cfg.Tenants.List[i].Weight <= 0 {
				cfg.Tenants.List[i].Weight = 1
			}
		}
	}

	if cfg.Admission.Enabled() {
		if cfg.Admission.Policy == "" {
			cfg.Admission.Policy = AdmissionAlways
		}
		if cfg.Admission.SizeAwareFloor <= 0 || cfg.Admission.SizeAwareFloor >= 1 {
			cfg.Admission.SizeAwareFloor = defaultSizeAwareFloor
		}
	}

	if cfg.Eviction.Enabled() {
		if cfg.Eviction.Policy == "" {
			cfg.Eviction.Policy = EvictionLRU
		}
		if cfg.Eviction.SoftLimitCoefficient <= 0 || cfg.Eviction.SoftLimitCoefficient > 1 {
			cfg.Eviction.SoftLimitCoefficient = defaultSoftCoefficient
		}
		if cfg.Eviction.CallsPerSec <= 0 {
			cfg.Eviction.CallsPerSec = defaultEvictorCalls
		}
		if cfg.Eviction.ProtectedRatio <= 0 || cfg.Eviction.ProtectedRatio >= 1 {
			cfg.Eviction.ProtectedRatio = defaultProtectedRatio
		}
		if cfg.Eviction.TwoQInRatio <= 0 || cfg.Eviction.TwoQInRatio >= 1 {
			cfg.Eviction.TwoQInRatio = defaultTwoQInRatio
		}
		if cfg.Eviction.TwoQGhostEntries <= 0 {
			cfg.Eviction.TwoQGhostEntries = defaultTwoQGhostEntries
		}
		cfg.Eviction.SoftMemoryLimitBytes = int64(float64(cfg.DB.SizeBytes) * cfg.Eviction.SoftLimitCoefficient)
	}

	if cfg.Consistency.Enabled() {
		if cfg.Consistency.Mode == "" {
			cfg.Consistency.Mode = ConsistencyStrict
		}
		if cfg.Consistency.TombstoneHold == 0 {
			cfg.Consistency.TombstoneHold = defaultTombstoneHold
		}
		if cfg.Consistency.RefreshRetry <= 0 {
			cfg.Consistency.RefreshRetry = defaultRefreshRetry
		}
	}

	if cfg.Lifetime.Enabled() {
		if cfg.Lifetime.Rate <= 0 {
			cfg.Lifetime.Rate = defaultSweepRate
		}
		if cfg.Lifetime.BucketsPerSweep <= 0 {
			cfg.Lifetime.BucketsPerSweep = defaultBucketsPerSweep
		}
	}

	cfg.Hotness.adjust()

	if cfg.Events.Buffer <= 0 {
		cfg.Events.Buffer = defaultEventsBuffer
	}
	if cfg.Events.SubscriberBuffer <= 0 {
		cfg.Events.SubscriberBuffer = defaultSubscriberBuffer
	}

	if cfg.Transport.Enabled() && cfg.Transport.Timeout <= 0 {
		cfg.Transport.Timeout = defaultTransportTimeout
	}
}

func (cfg *HotnessCfg) adjust() {
	if !cfg.Enabled() {
		return
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultHotnessCapacity
	}
	if cfg.Shards <= 0 {
		cfg.Shards = defaultHotnessShards
	}
	for cfg.Shards&(cfg.Shards-1) != 0 {
		cfg.Shards++
	}
	if cfg.MinTableLenPerShard <= 0 {
		cfg.MinTableLenPerShard = defaultHotnessMinTable
	}
	for cfg.MinTableLenPerShard&(cfg.MinTableLenPerShard-1) != 0 {
		cfg.MinTableLenPerShard++
	}
	if cfg.SampleMultiplier <= 0 {
		cfg.SampleMultiplier = defaultHotnessSamples
	}
	if cfg.DoorBitsPerCounter <= 0 {
		cfg.DoorBitsPerCounter = defaultHotnessDoorBits
	}
}

// AdjustHotness fills defaults of a standalone hotness config, as used by the promoter.
func AdjustHotness(cfg *HotnessCfg) *HotnessCfg {
	if cfg == nil {
		cfg = &HotnessCfg{}
	}
	cfg.adjust()
	return cfg
}

// Validate reports the first configuration error. It expects an adjusted config.
func (cfg *Cache) Validate() error {
	if cfg.DB.SizeBytes <= 0 {
		return fmt.Errorf("%w: db.size must be positive", ErrInvalidConfig)
	}
	if cfg.Slab.MaxItemSize < cfg.Slab.MinChunkSize {
		return fmt.Errorf("%w: slab.max_item_size %d is below min_chunk_size %d",
			ErrInvalidConfig, cfg.Slab.MaxItemSize, cfg.Slab.MinChunkSize)
	}
	if cfg.Tenants.Enabled() {
		switch cfg.Tenants.Policy {
		case TenantHardQuota, TenantProportional, TenantPriority:
		default:
			return fmt.Errorf("%w: unknown tenants.policy %q", ErrInvalidConfig, cfg.Tenants.Policy)
		}
		seen := make(map[uint32]struct{}, len(cfg.Tenants.List))
		for _, t := range cfg.Tenants.List {
			if _, ok := seen[t.ID]; ok {
				return fmt.Errorf("%w: duplicate tenant %d", ErrInvalidConfig, t.ID)
			}
			seen[t.ID] = struct{}{}
			if t.Quota < 0 {
				return fmt.Errorf("%w: tenant %d has negative quota", ErrInvalidConfig, t.ID)
			}
		}
	}
	if cfg.Admission.Enabled() {
		switch cfg.Admission.Policy {
		case AdmissionAlways, AdmissionThreshold, AdmissionComparative, AdmissionSizeAware:
		default:
			return fmt.Errorf("%w: unknown admission.policy %q", ErrInvalidConfig, cfg.Admission.Policy)
		}
		if cfg.Admission.MinEstimate > 15 {
			return fmt.Errorf("%w: admission.min_estimate must be within 0..15", ErrInvalidConfig)
		}
	}
	if cfg.Eviction.Enabled() {
		switch cfg.Eviction.Policy {
		case EvictionLRU, EvictionLFU, EvictionSLRU, EvictionTwoQ, EvictionFIFO:
		default:
			return fmt.Errorf("%w: unknown eviction.policy %q", ErrInvalidConfig, cfg.Eviction.Policy)
		}
	}
	if cfg.Consistency.Enabled() {
		switch cfg.Consistency.Mode {
		case ConsistencyStrict, ConsistencyVersionCheck:
		case ConsistencyBounded, ConsistencyAsyncRefresh:
			if cfg.Consistency.MaxStaleness <= 0 {
				return fmt.Errorf("%w: consistency.max_staleness is required by mode %q",
					ErrInvalidConfig, cfg.Consistency.Mode)
			}
		default:
			return fmt.Errorf("%w: unknown consistency.mode %q", ErrInvalidConfig, cfg.Consistency.Mode)
		}
	}
	return nil
}

// ConsistencyMode returns the configured mode, strict when unset.
func (cfg *Cache) ConsistencyMode() ConsistencyMode {
	if !cfg.Consistency.Enabled() {
		return ConsistencyStrict
	}
	return cfg.Consistency.Mode
}

// TombstoneHold returns the configured hold, zero when consistency is unset or the hold is disabled.
func (cfg *Cache) TombstoneHold() time.Duration {
	if !cfg.Consistency.Enabled() || cfg.Consistency.TombstoneHold < 0 {
		return 0
	}
	return cfg.Consistency.TombstoneHold
}

// Default returns an adjusted config with a hard cap of sizeBytes and LRU eviction.
func Default(sizeBytes int64) *Cache {
	cfg := &Cache{
		DB:          DBCfg{SizeBytes: sizeBytes},
		Eviction:    &EvictionCfg{Policy: EvictionLRU},
		Consistency: &ConsistencyCfg{Mode: ConsistencyStrict, TombstoneHold: defaultTombstoneHold},
	}
	cfg.AdjustConfig()
	return cfg
}

func LoadConfig(path string) (*Cache, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *Cache
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: empty config file %s", ErrInvalidConfig, path)
	}
	cfg.AdjustConfig()

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
