package cache

import (
	"github.com/Borislavv/go-hotkv/internal/index"
	"github.com/Borislavv/go-hotkv/internal/policy/eviction"
	"github.com/Borislavv/go-hotkv/model"
)

const maxEvictRounds = 4

// Reclaim evicts the victims the tenant's policy designates for bytes and entries.
func (c *Cache) Reclaim(tenant model.TenantID, bytes int64, entries int) (freed int64, evicted int) {
	d := c.domain(tenant)
	d.mu.Lock()
	defer d.mu.Unlock()
	return c.evictDomain(d, bytes, entries, model.ReasonManual, model.Key{})
}

// SoftLimitExcess reports whether charged bytes are above the soft watermark.
func (c *Cache) SoftLimitExcess() bool {
	return c.gov.SoftExcess() > 0
}

// ReclaimPressure brings charged bytes back under the soft watermark. Each tenant
// only gives up what it holds above its share of the watermark, so a tenant
// within its share keeps its entries unless emergency reclamation is on.
func (c *Cache) ReclaimPressure() (freed int64, evicted int) {
	if c.gov.SoftExcess() == 0 {
		return 0, 0
	}
	ratio := float64(c.gov.SoftCap()) / float64(c.gov.HardCap())

	for _, t := range c.gov.PressureOrder() {
		excess := c.gov.SoftExcess()
		if excess == 0 {
			return freed, evicted
		}
		over := c.gov.TenantUsed(t) - int64(ratio*float64(c.gov.TenantQuota(t)))
		if over <= 0 {
			continue
		}
		f, n := c.evictTenant(t, min(over, excess), model.ReasonPressure)
		freed, evicted = freed+f, evicted+n
	}

	if c.emergency {
		for _, t := range c.gov.PressureOrder() {
			excess := c.gov.SoftExcess()
			if excess == 0 {
				break
			}
			f, n := c.evictTenant(t, excess, model.ReasonEmergency)
			freed, evicted = freed+f, evicted+n
		}
	}
	return freed, evicted
}

func (c *Cache) evictTenant(tenant model.TenantID, bytes int64, reason model.EvictReason) (int64, int) {
	d := c.domain(tenant)
	d.mu.Lock()
	defer d.mu.Unlock()
	return c.evictDomain(d, bytes, 0, reason, model.Key{})
}

// onOverQuota evicts what a rebalance left the tenant holding above its quota.
// A busy domain is trimmed in the background: its holder may be the one whose
// charge triggered the rebalance.
func (c *Cache) onOverQuota(tenant model.TenantID, _ int64) {
	d := c.domain(tenant)
	if d.mu.TryLock() {
		c.trimToQuota(d)
		d.mu.Unlock()
		return
	}
	go func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		c.trimToQuota(d)
	}()
}

// trimToQuota evicts the tenant's bytes above its current quota. d.mu must be held.
func (c *Cache) trimToQuota(d *domain) {
	if over := c.gov.TenantUsed(d.tenant) - c.gov.TenantQuota(d.tenant); over > 0 {
		c.evictDomain(d, over, 0, model.ReasonCapacity, model.Key{})
	}
}

// reclaimOthers frees room for tenant in other domains: bytes the budget policy
// lets it preempt, then anything when emergency reclamation is on. Other domains
// are only tried, never waited for, since the caller holds its own domain.
func (c *Cache) reclaimOthers(tenant model.TenantID, need int64) (freed int64) {
	for _, claim := range c.gov.Preempt(tenant, need) {
		if freed >= need {
			return freed
		}
		freed += c.tryEvictTenant(claim.Tenant, min(claim.Bytes, need-freed), model.ReasonCapacity)
	}
	if !c.emergency {
		return freed
	}
	for _, t := range c.gov.PressureOrder() {
		if freed >= need {
			break
		}
		if t != tenant {
			freed += c.tryEvictTenant(t, need-freed, model.ReasonEmergency)
		}
	}
	return freed
}

func (c *Cache) tryEvictTenant(tenant model.TenantID, bytes int64, reason model.EvictReason) int64 {
	d := c.domain(tenant)
	if !d.mu.TryLock() {
		return 0
	}
	defer d.mu.Unlock()
	freed, _ := c.evictDomain(d, bytes, 0, reason, model.Key{})
	return freed
}

// evictDomain removes the policy's victims until bytes and entries are reached or
// the domain is empty. exclude is never evicted. d.mu must be held.
func (c *Cache) evictDomain(d *domain, bytes int64, entries int, reason model.EvictReason, exclude model.Key) (freed int64, evicted int) {
	for round := 0; round < maxEvictRounds && (freed < bytes || evicted < entries); round++ {
		keys := c.victims(d, bytes-freed, entries-evicted)
		if len(keys) == 0 {
			break
		}
		progress := false
		for _, k := range keys {
			if k == exclude {
				continue
			}
			progress = true
			if cost, ok := c.evictKey(d, k, reason); ok {
				freed, evicted = freed+cost, evicted+1
			}
		}
		if !progress {
			break
		}
	}
	return freed, evicted
}

// evictKey removes a victim. A victim no longer resident is only forgotten by the policy.
func (c *Cache) evictKey(d *domain, k model.Key, reason model.EvictReason) (int64, bool) {
	e, ok := c.resident(k)
	if !ok {
		c.evictionCall(d, func(p eviction.Policy) { p.OnRemove(k, false) })
		return 0, false
	}
	if !c.index.RemoveEntry(e) {
		return 0, false
	}
	return c.evicted(d, e, reason, true), true
}

// evicted settles an entry removed from the index by eviction or expiry.
func (c *Cache) evicted(d *domain, e *index.Entry, reason model.EvictReason, byPolicy bool) int64 {
	e.Tombstone(c.clock.UnixNano())
	c.unpublished(d, e, byPolicy)
	c.counters.evicted(reason, e.Cost())
	c.publish(model.Event{
		Kind:    model.EntryEvicted,
		Tenant:  e.Tenant(),
		Key:     string(e.Key()),
		Version: e.Version(),
		Reason:  reason,
	})
	return e.Cost()
}
