package config

import "time"

type LifetimerCfg struct {
	// TTL is the default lifetime of an entry promoted without its own TTL. Zero means no expiry.
	TTL time.Duration `yaml:"ttl"`

	// Rate limits the number of sweep steps per second.
	Rate int `yaml:"rate"`

	// BucketsPerSweep is how many index buckets a single sweep step visits.
	BucketsPerSweep int `yaml:"buckets_per_sweep"`

	// Beta controls the stochastic early refresh of entries approaching their TTL
	// (async-refresh mode only). Past Coefficient of the TTL a sweep requests a
	// refresh with probability:
	//
	//   1 - exp(-Beta * elapsed / ttl)
	//
	// Example:
	//   Beta: 0.4
	Beta float64 `yaml:"beta"`

	// StochasticBetaRefreshEnabled enables Beta-based early refresh requests.
	// When disabled, a refresh is requested once Coefficient of the TTL has elapsed.
	StochasticBetaRefreshEnabled bool `yaml:"stochastic_refresh_enabled"`

	// Coefficient defines when to start requesting refreshes relative to TTL.
	// Example: TTL=24h and Coefficient=0.5 -> requests start after 12h.
	Coefficient float64 `yaml:"coefficient"`
}

func (cfg *LifetimerCfg) Enabled() bool {
	return cfg != nil
}

// DefaultLifetime returns the sweep pacing used when entries age but no lifetime
// section is configured, e.g. for tombstones or stale entries alone.
func DefaultLifetime() *LifetimerCfg {
	return &LifetimerCfg{Rate: defaultSweepRate, BucketsPerSweep: defaultBucketsPerSweep}
}
