package config

import "time"

// TenantPolicy selects how per-tenant budgets are derived.
type TenantPolicy string

const (
	// TenantHardQuota gives every tenant a fixed byte quota.
	TenantHardQuota TenantPolicy = "hard_quota"

	// TenantProportional splits the pool left after guaranteed quotas by weight.
	TenantProportional TenantPolicy = "proportional"

	// TenantPriority hands the shared pool to higher-priority tenants first and lets them
	// preempt what lower-priority tenants hold above their guaranteed quota.
	TenantPriority TenantPolicy = "priority"
)

type TenantCfg struct {
	ID uint32 `yaml:"id"`
	// Quota is the guaranteed byte budget of the tenant.
	Quota    int64 `yaml:"quota"`
	Weight   int   `yaml:"weight"`
	Priority int   `yaml:"priority"`
}

type TenantsCfg struct {
	Policy TenantPolicy `yaml:"policy"`

	// DefaultQuota applies to tenants absent from List. Zero means the whole hard cap.
	DefaultQuota int64 `yaml:"default_quota"`

	// Borrowing lets a tenant exceed its quota while the global cap still has room.
	Borrowing bool `yaml:"borrowing"`

	// RebalanceInterval is how often effective quotas are recalculated.
	RebalanceInterval time.Duration `yaml:"rebalance_interval"`

	List []TenantCfg `yaml:"list"`
}

func (cfg *TenantsCfg) Enabled() bool {
	return cfg != nil
}
