package config

import (
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
db:
  size: 1048576
  stat_logs_enabled: true
slab:
  max_item_size: 4096
tenants:
  policy: proportional
  list:
    - id: 1
      quota: 600
      weight: 3
    - id: 2
      quota: 400
eviction:
  policy: slru
  soft_limit_coefficient: 0.5
consistency:
  mode: bounded
  max_staleness: 2s
lifetime:
  ttl: 1h
`

// TestLoadConfig loads YAML and checks that defaults and derived fields are applied.
func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hotkv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, int64(1048576), cfg.DB.SizeBytes)
	require.Equal(t, 256, cfg.DB.MaxKeySize)
	require.Equal(t, int64(2*1048576), cfg.Slab.CapacityBytes)
	require.Equal(t, TenantProportional, cfg.Tenants.Policy)
	require.Equal(t, 1, cfg.Tenants.List[1].Weight)
	require.Equal(t, EvictionSLRU, cfg.Eviction.Policy)
	require.Equal(t, int64(524288), cfg.Eviction.SoftMemoryLimitBytes)
	require.Equal(t, ConsistencyBounded, cfg.ConsistencyMode())
	require.Equal(t, 2*time.Second, cfg.Consistency.MaxStaleness)
	require.Equal(t, time.Hour, cfg.Lifetime.TTL)
	require.Nil(t, cfg.Admission)
}

// TestLoadConfigMissingFile reports a stat error for an absent path.
func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

// TestValidate rejects unknown policies and missing staleness bounds.
func TestValidate(t *testing.T) {
	cfg := Default(1024)
	require.NoError(t, cfg.Validate())

	cfg.Eviction.Policy = "mru"
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = Default(1024)
	cfg.Consistency.Mode = ConsistencyAsyncRefresh
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.Consistency.MaxStaleness = time.Second
	require.NoError(t, cfg.Validate())

	cfg = Default(0)
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

// TestNilSubsystemsDisabled checks the Enabled helpers of optional sections.
func TestNilSubsystemsDisabled(t *testing.T) {
	cfg := &Cache{DB: DBCfg{SizeBytes: 10}}
	cfg.AdjustConfig()
	require.False(t, cfg.Eviction.Enabled())
	require.False(t, cfg.Lifetime.Enabled())
	require.False(t, cfg.Tenants.Enabled())
	require.Equal(t, ConsistencyStrict, cfg.ConsistencyMode())
	require.Zero(t, cfg.TombstoneHold())
}

// TestNegativeTombstoneHoldDisables checks that a disabled hold stays disabled across adjustments.
func TestNegativeTombstoneHoldDisables(t *testing.T) {
	cfg := Default(1024)
	cfg.Consistency.TombstoneHold = -1
	cfg.AdjustConfig()
	cfg.AdjustConfig()
	require.Zero(t, cfg.TombstoneHold())

	cfg.Consistency.TombstoneHold = 0
	cfg.AdjustConfig()
	require.Equal(t, 100*time.Millisecond, cfg.TombstoneHold())
}
