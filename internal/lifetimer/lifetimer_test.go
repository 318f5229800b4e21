package lifetimer

import (
	"context"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/internal/cache"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/stretchr/testify/require"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"
)

type fakeSweeper struct {
	needs   bool
	buckets int

	mu      sync.Mutex
	cursors []int
}

func (f *fakeSweeper) NeedsSweep() bool { return f.needs }

func (f *fakeSweeper) Sweep(cursor, span int) (int, cache.SweepResult) {
	f.mu.Lock()
	f.cursors = append(f.cursors, cursor)
	f.mu.Unlock()
	return (cursor + span) % f.buckets, cache.SweepResult{Scanned: span, Expired: 1, Purged: 2, Refreshed: 3}
}

func (f *fakeSweeper) seen() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.cursors...)
}

func promotions(n int) []model.PromoteItem {
	items := make([]model.PromoteItem, n)
	for i := range items {
		items[i] = model.PromoteItem{Tenant: 1, Key: []byte("key-" + strconv.Itoa(i)), Value: []byte("value")}
	}
	return items
}

// TestNew_NothingAgesIsNoOp verifies that no worker starts without anything to sweep.
func TestNew_NothingAgesIsNoOp(t *testing.T) {
	lt := New(context.Background(), &config.LifetimerCfg{Rate: 10}, slog.Default(), &fakeSweeper{})
	require.IsType(t, NoOpLifetimer{}, lt)

	steps, scanned, expired, purged, refreshed := lt.Metrics()
	require.Zero(t, steps+scanned+expired+purged+refreshed)
	require.NoError(t, lt.Close())
}

// TestLifetimer_AdvancesCursor verifies that consecutive steps continue where the last one stopped.
func TestLifetimer_AdvancesCursor(t *testing.T) {
	target := &fakeSweeper{needs: true, buckets: 10}
	lt := New(context.Background(), &config.LifetimerCfg{Rate: 500, BucketsPerSweep: 4}, slog.Default(), target)
	t.Cleanup(func() { _ = lt.Close() })

	require.Eventually(t, func() bool { return len(target.seen()) >= 4 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []int{0, 4, 8, 2}, target.seen()[:4])
}

// TestLifetimer_DefaultsWithoutConfig verifies that aging without a lifetime section still sweeps.
func TestLifetimer_DefaultsWithoutConfig(t *testing.T) {
	target := &fakeSweeper{needs: true, buckets: 1024}
	lt := New(context.Background(), nil, slog.Default(), target)
	t.Cleanup(func() { _ = lt.Close() })

	w, ok := lt.(*LifetimeWorker)
	require.True(t, ok)
	require.Equal(t, config.DefaultLifetime().BucketsPerSweep, w.cfg.BucketsPerSweep)

	require.Eventually(t, func() bool {
		steps, _, _, _, _ := lt.Metrics()
		return steps >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

// TestLifetimer_Metrics verifies that sweep results are accumulated.
func TestLifetimer_Metrics(t *testing.T) {
	target := &fakeSweeper{needs: true, buckets: 8}
	lt := New(context.Background(), &config.LifetimerCfg{Rate: 1000, BucketsPerSweep: 2}, slog.Default(), target)

	require.Eventually(t, func() bool {
		steps, _, _, _, _ := lt.Metrics()
		return steps >= 3
	}, time.Second, time.Millisecond)
	require.NoError(t, lt.Close())

	steps, scanned, expired, purged, refreshed := lt.Metrics()
	require.Equal(t, 2*steps, scanned)
	require.Equal(t, steps, expired)
	require.Equal(t, 2*steps, purged)
	require.Equal(t, 3*steps, refreshed)
	require.Len(t, target.seen(), int(steps))
}

// TestLifetimer_SweepsRealCache verifies removal of expired entries end to end.
func TestLifetimer_SweepsRealCache(t *testing.T) {
	cfg := config.Default(1 << 20)
	cfg.Lifetime = &config.LifetimerCfg{TTL: 20 * time.Millisecond, Rate: 1000, BucketsPerSweep: 1 << 10}
	cfg.AdjustConfig()
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := cache.New(ctx, cfg, slog.Default(), cache.Options{})
	require.NoError(t, err)

	lt := New(ctx, cfg.Lifetime, slog.Default(), c)
	defer func() { _ = lt.Close() }()

	c.BatchPromote(promotions(16))
	require.Equal(t, int64(16), c.Len())

	require.Eventually(t, func() bool { return c.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	_, _, expired, _, _ := lt.Metrics()
	require.Equal(t, int64(16), expired)
}
