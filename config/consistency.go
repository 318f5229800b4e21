package config

import "time"

type ConsistencyMode string

const (
	// ConsistencyStrict tombstones entries on invalidation.
	ConsistencyStrict ConsistencyMode = "strict"

	// ConsistencyBounded keeps invalidated entries as STALE and serves them, flagged,
	// until MaxStaleness.
	ConsistencyBounded ConsistencyMode = "bounded"

	// ConsistencyVersionCheck tombstones on invalidation and treats reads carrying
	// a different expected version as misses.
	ConsistencyVersionCheck ConsistencyMode = "version_check"

	// ConsistencyAsyncRefresh serves STALE entries while a refresh is requested from the promoter.
	ConsistencyAsyncRefresh ConsistencyMode = "async_refresh"
)

type ConsistencyCfg struct {
	Mode ConsistencyMode `yaml:"mode"`

	// MaxStaleness is the age after which a STALE entry is no longer served.
	MaxStaleness time.Duration `yaml:"max_staleness"`

	// TombstoneHold is how long a tombstone rejects promotions of the same key.
	// Zero selects the default, a negative value disables tombstones.
	// It resolves a promotion racing with an invalidation in favour of the invalidation.
	TombstoneHold time.Duration `yaml:"tombstone_hold"`

	// RefreshRetry is the minimum interval between two refresh requests for one entry.
	RefreshRetry time.Duration `yaml:"refresh_retry"`
}

func (cfg *ConsistencyCfg) Enabled() bool {
	return cfg != nil
}
