// Package cache is the data plane: it owns entry memory, serves reads without
// blocking and applies promotions, invalidations and evictions decided by the
// policy plane.
package cache

import (
	"context"
	"fmt"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/internal/epoch"
	"github.com/Borislavv/go-hotkv/internal/governor"
	"github.com/Borislavv/go-hotkv/internal/index"
	"github.com/Borislavv/go-hotkv/internal/policy/admission"
	"github.com/Borislavv/go-hotkv/internal/policy/consistency"
	"github.com/Borislavv/go-hotkv/internal/policy/eviction"
	"github.com/Borislavv/go-hotkv/internal/policy/tenancy"
	"github.com/Borislavv/go-hotkv/internal/shared/cachedtime"
	"github.com/Borislavv/go-hotkv/internal/slab"
	"github.com/Borislavv/go-hotkv/model"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const retireBatch = 1024

var ErrInvalidKey = model.ErrInvalidKey

// Publisher receives data plane events. It must not block.
type Publisher interface {
	Publish(ev model.Event) bool
}

type noopPublisher struct{}

func (noopPublisher) Publish(model.Event) bool { return false }

type Options struct {
	Publisher Publisher
	// Clock defaults to the coarse package clock.
	Clock cachedtime.Clock
}

type Cache struct {
	cfg    *config.Cache
	logger *slog.Logger
	clock  cachedtime.Clock
	pub    Publisher

	epoch *epoch.Domain
	slab  *slab.Store
	index *index.Index
	gov   *governor.Governor

	maxKey       int
	ttl          time.Duration
	hold         time.Duration
	refreshRetry time.Duration
	emergency    bool
	lifetime     *config.LifetimerCfg

	domainsMu sync.Mutex
	domains   atomic.Pointer[map[model.TenantID]*domain]

	admission   atomic.Pointer[admissionBox]
	consistency atomic.Pointer[consistencyBox]

	pressure chan struct{}
	counters *counters
}

// New builds the data plane and starts its reclaimer until ctx is done.
func New(ctx context.Context, cfg *config.Cache, logger *slog.Logger, opts Options) (*Cache, error) {
	adm, err := admission.New(cfg.Admission)
	if err != nil {
		return nil, fmt.Errorf("admission: %w", err)
	}
	cons, err := consistency.New(cfg.Consistency)
	if err != nil {
		return nil, fmt.Errorf("consistency: %w", err)
	}
	if _, err = eviction.New(cfg.Eviction); err != nil {
		return nil, fmt.Errorf("eviction: %w", err)
	}
	var budget tenancy.Policy = tenancy.HardQuota{}
	govOpts := governor.Options{HardCap: cfg.DB.SizeBytes}
	if cfg.Tenants.Enabled() {
		if budget, err = tenancy.New(cfg.Tenants.Policy); err != nil {
			return nil, fmt.Errorf("tenants: %w", err)
		}
		govOpts.DefaultQuota = cfg.Tenants.DefaultQuota
		govOpts.Borrowing = cfg.Tenants.Borrowing
		govOpts.Tenants = cfg.Tenants.List
	}
	govOpts.Budget = budget
	if cfg.Eviction.Enabled() {
		govOpts.SoftCap = cfg.Eviction.SoftMemoryLimitBytes
	}

	c := &Cache{
		cfg:          cfg,
		logger:       logger,
		clock:        opts.Clock,
		pub:          opts.Publisher,
		epoch:        epoch.New(retireBatch),
		index:        index.New(cfg.DB.IndexBuckets, cfg.DB.IndexLoadFactor),
		maxKey:       cfg.DB.MaxKeySize,
		hold:         cfg.TombstoneHold(),
		refreshRetry: time.Second,
		emergency:    cfg.Eviction.Enabled() && cfg.Eviction.EmergencyReclaim,
		lifetime:     cfg.Lifetime,
		pressure:     make(chan struct{}, 1),
		counters:     newCounters(),
	}
	if c.clock == nil {
		c.clock = cachedtime.Coarse{}
	}
	if c.pub == nil {
		c.pub = noopPublisher{}
	}
	if cfg.Consistency.Enabled() {
		c.refreshRetry = cfg.Consistency.RefreshRetry
	}
	if cfg.Lifetime.Enabled() {
		c.ttl = cfg.Lifetime.TTL
	}
	c.slab = slab.New(slab.Config{
		MinChunkSize: cfg.Slab.MinChunkSize,
		GrowthFactor: cfg.Slab.GrowthFactor,
		MaxItemSize:  cfg.Slab.MaxItemSize,
		Capacity:     cfg.Slab.CapacityBytes,
	})
	govOpts.OnPressure = c.onPressure
	govOpts.OnViolation = c.onBudgetViolation
	govOpts.OnOverQuota = c.onOverQuota
	c.gov = governor.New(govOpts)

	c.admission.Store(&admissionBox{p: adm})
	c.consistency.Store(&consistencyBox{p: cons})
	empty := make(map[model.TenantID]*domain)
	c.domains.Store(&empty)

	go c.epoch.Run(ctx, cfg.DB.ReclaimInterval)
	if cfg.Tenants.Enabled() && cfg.Tenants.Policy != config.TenantHardQuota {
		go c.rebalance(ctx, cfg.Tenants.RebalanceInterval)
	}

	logger.Info("[cache] data plane started",
		"hard_cap", cfg.DB.SizeBytes,
		"soft_cap", c.gov.SoftCap(),
		"slab_capacity", c.slab.Capacity(),
		"admission", adm.Name(),
		"consistency", cons.Name(),
		"budget", budget.Name(),
		"tombstone_hold", c.hold,
	)
	return c, nil
}

func (c *Cache) checkKey(key []byte) error {
	if len(key) == 0 || len(key) > c.maxKey {
		return fmt.Errorf("%w: length %d not within 1..%d", ErrInvalidKey, len(key), c.maxKey)
	}
	return nil
}

// Read resolves a key without taking locks. A miss is not an error.
func (c *Cache) Read(req model.ReadRequest) (model.ReadResult, error) {
	if err := c.checkKey(req.Key); err != nil {
		c.counters.invalidKeys.Add(1)
		return model.Miss(), err
	}

	g := c.epoch.Enter()
	defer g.Exit()

	e, ok := c.index.Get(req.Tenant, req.Key, index.Hash(req.Tenant, req.Key))
	if !ok || e.IsTombstone() {
		return c.miss(), nil
	}

	now := c.clock.UnixNano()
	if e.Expired(now) {
		c.expire(e, now)
		return c.miss(), nil
	}

	state, _ := e.Freshness()
	staleFor := e.StaleFor(now)
	action := c.onRead(consistency.Read{
		State:    state,
		StaleFor: staleFor,
		Expected: req.ExpectedVersion,
		Version:  e.Version(),
	})
	if state == model.Tombstoned || action == consistency.Miss {
		return c.miss(), nil
	}

	value, ok := c.slab.Read(e.Ref(), make([]byte, 0, e.Ref().Len()))
	if !ok {
		return c.miss(), nil
	}
	c.touch(e, now)

	res := model.ReadResult{Hit: true, Value: value, Version: e.Version(), Freshness: model.Fresh}
	if state == model.Stale {
		res.Freshness, res.StaleFor = model.Stale, staleFor
		c.counters.staleHits.Add(1)
		if action == consistency.ServeStaleRefresh {
			c.requestRefresh(e, now)
		}
	} else {
		c.counters.hits.Add(1)
	}
	return res, nil
}

// expire removes an entry a reader found past its TTL and returns its charge.
// When the domain is busy the entry is only hidden and left to the sweeper.
func (c *Cache) expire(e *index.Entry, now int64) {
	d, ok := c.lookupDomain(e.Tenant())
	if !ok || !d.mu.TryLock() {
		e.Tombstone(now)
		return
	}
	defer d.mu.Unlock()
	if c.index.RemoveEntry(e) {
		c.evicted(d, e, model.ReasonTTL, false)
	}
}

func (c *Cache) miss() model.ReadResult {
	c.counters.misses.Add(1)
	return model.Miss()
}

// touch reports the access to the eviction policy unless its domain is busy;
// a reader never waits for a writer.
func (c *Cache) touch(e *index.Entry, now int64) {
	e.Touch(now)

	d, ok := c.lookupDomain(e.Tenant())
	if !ok || !d.mu.TryLock() {
		c.counters.accessesDropped.Add(1)
		return
	}
	k := e.ModelKey()
	c.evictionCall(d, func(p eviction.Policy) { p.OnAccess(k) })
	d.mu.Unlock()
}

// Invalidate hides or marks stale the key according to the consistency policy.
// Invalidating an absent key succeeds; with a tombstone hold it still blocks
// promotions of the key that race with it.
func (c *Cache) Invalidate(tenant model.TenantID, key []byte) error {
	if err := c.checkKey(key); err != nil {
		c.counters.invalidKeys.Add(1)
		return err
	}
	c.counters.invalidations.Add(1)

	hash := index.Hash(tenant, key)
	now := c.clock.UnixNano()
	d := c.domain(tenant)
	d.mu.Lock()
	defer d.mu.Unlock()

	action := c.onInvalidate()
	if cur, ok := c.index.Get(tenant, key, hash); ok && !cur.IsTombstone() && action != consistency.Tombstone {
		if state, _ := cur.Freshness(); state != model.Tombstoned {
			cur.MarkStale(now)
			c.publish(model.Event{Kind: model.EntryInvalidated, Tenant: tenant, Key: string(key), Version: cur.Version()})
			if action == consistency.MarkStaleRefresh {
				c.requestRefresh(cur, now)
			}
			return nil
		}
	}

	var removed *index.Entry
	if c.hold > 0 {
		removed, _, _ = c.index.Upsert(tenant, key, hash, func(*index.Entry) (*index.Entry, error) {
			return index.NewTombstone(tenant, key, hash, now), nil
		})
	} else {
		removed, _ = c.index.Remove(tenant, key, hash, nil)
	}
	if removed != nil && !removed.IsTombstone() {
		removed.Tombstone(now)
		c.unpublished(d, removed, false)
		c.publish(model.Event{Kind: model.EntryInvalidated, Tenant: tenant, Key: string(key), Version: removed.Version()})
	}
	return nil
}

// unpublished settles an entry already removed from the index: its charge is
// returned at once, its memory after the grace period.
func (c *Cache) unpublished(d *domain, e *index.Entry, evicted bool) {
	c.gov.Release(e.Tenant(), e.Cost(), 1)
	k := e.ModelKey()
	c.evictionCall(d, func(p eviction.Policy) { p.OnRemove(k, evicted) })

	ref := e.Ref()
	c.epoch.Retire(func() { c.slab.Free(ref) })
}

// requestRefresh asks the promoter for a new value, at most once per retry interval.
func (c *Cache) requestRefresh(e *index.Entry, now int64) bool {
	if !e.TryQueueRefresh(now, c.refreshRetry) {
		return false
	}
	c.counters.refreshRequests.Add(1)
	c.publish(model.Event{Kind: model.RefreshRequested, Tenant: e.Tenant(), Key: string(e.Key()), Version: e.Version()})
	return true
}

func (c *Cache) publish(ev model.Event) {
	if ev.At == 0 {
		ev.At = c.clock.UnixNano()
	}
	c.pub.Publish(ev)
}

func (c *Cache) onPressure(level model.PressureLevel, used, limit int64) {
	c.publish(model.Event{Kind: model.PressureWarning, Level: level, UsedBytes: used, LimitBytes: limit})
	if level == model.PressureNone {
		return
	}
	c.logger.Warn("[cache] memory pressure", "level", level.String(), "used", used, "limit", limit)
	select {
	case c.pressure <- struct{}{}:
	default:
	}
}

// PressureSignal fires when the governor crosses the soft or the hard watermark.
func (c *Cache) PressureSignal() <-chan struct{} { return c.pressure }

func (c *Cache) rebalance(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.gov.Rebalance()
		}
	}
}

// TenantUsage returns the accounting of one tenant.
func (c *Cache) TenantUsage(tenant model.TenantID) model.TenantStats {
	s := model.TenantStats{
		Tenant:     tenant,
		UsedBytes:  c.gov.TenantUsed(tenant),
		QuotaBytes: c.gov.TenantQuota(tenant),
	}
	for _, t := range c.gov.Tenants() {
		if t.Tenant == tenant {
			s.Entries = t.Entries
		}
	}
	if d, ok := c.lookupDomain(tenant); ok {
		s.Policy = d.policyName()
	}
	return s
}

func (c *Cache) Stats() model.Stats {
	var s model.Stats
	c.counters.snapshot(&s)

	s.Entries = c.gov.Entries()
	s.IndexBuckets = c.index.Buckets()
	s.UsedBytes = c.gov.Used()
	s.HardCapBytes = c.gov.HardCap()
	s.SoftCapBytes = c.gov.SoftCap()
	s.SlabReserved = c.slab.Reserved()
	s.SlabCapacity = c.slab.Capacity()
	s.Pressure = c.gov.Pressure()

	s.Tenants = c.gov.Tenants()
	for i := range s.Tenants {
		if d, ok := c.lookupDomain(s.Tenants[i].Tenant); ok {
			s.Tenants[i].Policy = d.policyName()
		}
	}
	return s
}

// Len counts resident entries, tombstones excluded.
func (c *Cache) Len() int64 { return c.gov.Entries() }

// Mem returns the charged bytes.
func (c *Cache) Mem() int64 { return c.gov.Used() }

// SlabClasses exposes the allocator occupancy per size class.
func (c *Cache) SlabClasses() []slab.ClassStats { return c.slab.Classes() }

// BudgetPolicy names the active tenant budget policy.
func (c *Cache) BudgetPolicy() string { return c.gov.BudgetPolicy() }

// Drain runs every pending memory release after one grace period.
func (c *Cache) Drain() int { return c.epoch.Reclaim() }
