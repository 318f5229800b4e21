package cache

import (
	"errors"
	"github.com/Borislavv/go-hotkv/internal/governor"
	"github.com/Borislavv/go-hotkv/internal/index"
	"github.com/Borislavv/go-hotkv/internal/policy/admission"
	"github.com/Borislavv/go-hotkv/internal/policy/eviction"
	"github.com/Borislavv/go-hotkv/internal/slab"
	"github.com/Borislavv/go-hotkv/model"
	"time"
)

const (
	maxPromoteAttempts = 2
	maxReserveAttempts = 3
)

// BatchPromote applies items in order and reports one status per item.
func (c *Cache) BatchPromote(items []model.PromoteItem) []model.PromoteResult {
	out := make([]model.PromoteResult, len(items))
	for i, it := range items {
		status, version := c.promote(it)
		c.counters.promoted(status)
		out[i] = model.PromoteResult{Tenant: it.Tenant, Key: it.Key, Status: status, Version: version}
	}
	return out
}

func (c *Cache) promote(it model.PromoteItem) (model.PromoteStatus, uint64) {
	if c.checkKey(it.Key) != nil {
		return model.InvalidKey, 0
	}
	if len(it.Value) > c.slab.MaxItemSize() || it.Cost() > c.gov.HardCap() {
		return model.TooLarge, 0
	}

	hash := index.Hash(it.Tenant, it.Key)
	d := c.domain(it.Tenant)
	d.mu.Lock()
	defer d.mu.Unlock()

	for attempt := 1; ; attempt++ {
		status, version, err := c.tryPromote(d, it, hash)
		if !errors.Is(err, index.ErrKeyChanged) || attempt == maxPromoteAttempts {
			return status, version
		}
	}
}

// tryPromote admits, charges, stores and publishes one item. d.mu must be held.
func (c *Cache) tryPromote(d *domain, it model.PromoteItem, hash uint64) (model.PromoteStatus, uint64, error) {
	now := c.clock.UnixNano()
	k := model.NewKey(it.Tenant, it.Key)
	cost := it.Cost()

	cur, found := c.index.Get(it.Tenant, it.Key, hash)
	if found && cur.IsTombstone() && cur.TombstonedFor(now) < c.hold {
		return model.Invalidated, 0, nil
	}
	resident := found && !cur.IsTombstone()

	if !resident && !c.admit(c.candidate(d, k, cost, it.Estimate)) {
		return model.Rejected, 0, nil
	}

	delta, entries := cost, int64(1)
	if resident {
		delta, entries = cost-cur.Cost(), 0
	}
	charged := max(delta, 0)
	if charged > 0 || entries > 0 {
		if err := c.reserve(d, it.Tenant, charged, entries, k); err != nil {
			return model.CapacityExceeded, 0, nil
		}
	}

	ref, err := c.alloc(d, it.Value, k)
	if err != nil {
		c.gov.Release(it.Tenant, charged, entries)
		if errors.Is(err, slab.ErrTooLarge) {
			return model.TooLarge, 0, nil
		}
		return model.CapacityExceeded, 0, nil
	}

	spec := index.Spec{
		Tenant:   it.Tenant,
		Key:      it.Key,
		Hash:     hash,
		Ref:      ref,
		Cost:     cost,
		Estimate: it.Estimate,
		Now:      now,
		TTL:      c.ttlFor(it.TTL),
	}
	prev, next, err := c.index.Upsert(it.Tenant, it.Key, hash, func(at *index.Entry) (*index.Entry, error) {
		if at != cur {
			return nil, index.ErrKeyChanged
		}
		return index.NewEntry(spec), nil
	})
	if err != nil {
		c.slab.Free(ref)
		c.gov.Release(it.Tenant, charged, entries)
		return upsertFailure(err), 0, err
	}

	if prev != nil && !prev.IsTombstone() {
		if delta < 0 {
			c.gov.Release(it.Tenant, -delta, 0)
		}
		old := prev.Ref()
		c.epoch.Retire(func() { c.slab.Free(old) })
		c.evictionCall(d, func(p eviction.Policy) { p.OnUpdate(k, cost) })
	} else {
		c.evictionCall(d, func(p eviction.Policy) { p.OnInsert(k, cost) })
	}
	return model.Admitted, next.Version(), nil
}

// upsertFailure maps a failed publication to a status. A key that kept changing
// underneath lost to a concurrent writer.
func upsertFailure(err error) model.PromoteStatus {
	if errors.Is(err, index.ErrKeyChanged) {
		return model.Invalidated
	}
	return model.CapacityExceeded
}

func (c *Cache) ttlFor(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return c.ttl
}

// candidate describes the room left to the tenant and the entry its policy would
// drop next. d.mu must be held.
func (c *Cache) candidate(d *domain, k model.Key, cost int64, estimate uint8) (admission.Candidate, admission.Budget) {
	b := admission.Budget{
		TenantUsed:  c.gov.TenantUsed(k.Tenant),
		TenantQuota: c.gov.TenantQuota(k.Tenant),
		GlobalUsed:  c.gov.Used(),
		GlobalCap:   c.gov.HardCap(),
	}
	if c.cfg.Tenants.Enabled() && c.cfg.Tenants.Borrowing {
		b.TenantQuota = b.GlobalCap
	}
	if victims := c.victims(d, 0, 1); len(victims) > 0 {
		if e, ok := c.resident(victims[0]); ok {
			b.HasVictim, b.VictimEstimate = true, e.Estimate()
		}
	}
	return admission.Candidate{Key: k, Cost: cost, Estimate: estimate}, b
}

func (c *Cache) resident(k model.Key) (*index.Entry, bool) {
	key := []byte(k.Name)
	e, ok := c.index.Get(k.Tenant, key, index.Hash(k.Tenant, key))
	if !ok || e.IsTombstone() {
		return nil, false
	}
	return e, true
}

// reserve charges the governor, evicting inside the domain when the global cap
// is in the way. A tenant over its own quota is refused without evicting.
func (c *Cache) reserve(d *domain, tenant model.TenantID, bytes, entries int64, exclude model.Key) error {
	for attempt := 1; ; attempt++ {
		err := c.gov.Reserve(tenant, bytes, entries)
		if err == nil || !errors.Is(err, governor.ErrGlobalCap) || attempt == maxReserveAttempts {
			return err
		}

		need := bytes - (c.gov.HardCap() - c.gov.Used())
		if need <= 0 {
			continue
		}
		freed, _ := c.evictDomain(d, need, 0, model.ReasonCapacity, exclude)
		if freed < need {
			freed += c.reclaimOthers(tenant, need-freed)
		}
		if freed == 0 {
			return err
		}
	}
}

// alloc stores value, first waiting for pending releases and then evicting
// inside the domain when the slab is full.
func (c *Cache) alloc(d *domain, value []byte, exclude model.Key) (slab.Ref, error) {
	ref, err := c.slab.Alloc(value)
	if !errors.Is(err, slab.ErrNoSpace) {
		return ref, err
	}
	c.epoch.Reclaim()
	if ref, err = c.slab.Alloc(value); !errors.Is(err, slab.ErrNoSpace) {
		return ref, err
	}
	c.evictDomain(d, int64(len(value)), 0, model.ReasonCapacity, exclude)
	c.epoch.Reclaim()
	return c.slab.Alloc(value)
}
