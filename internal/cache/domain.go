package cache

import (
	"github.com/Borislavv/go-hotkv/internal/index"
	"github.com/Borislavv/go-hotkv/internal/policy"
	"github.com/Borislavv/go-hotkv/internal/policy/eviction"
	"github.com/Borislavv/go-hotkv/model"
	"maps"
	"sort"
	"sync"
)

// domain is the eviction domain of one tenant. Its mutex serializes every write
// to the tenant's keys and every call into its eviction policy.
type domain struct {
	tenant  model.TenantID
	mu      sync.Mutex
	evict   eviction.Policy
	faulted bool
}

func (d *domain) policyName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.evict.Name()
}

func (c *Cache) lookupDomain(tenant model.TenantID) (*domain, bool) {
	d, ok := (*c.domains.Load())[tenant]
	return d, ok
}

// domain returns the tenant's domain, creating it on first use. The map is
// copied on write so readers look it up without locking.
func (c *Cache) domain(tenant model.TenantID) *domain {
	if d, ok := c.lookupDomain(tenant); ok {
		return d
	}

	c.domainsMu.Lock()
	defer c.domainsMu.Unlock()
	cur := *c.domains.Load()
	if d, ok := cur[tenant]; ok {
		return d
	}
	p, err := eviction.New(c.cfg.Eviction)
	if err != nil {
		p = eviction.NewFIFO()
	}
	d := &domain{tenant: tenant, evict: p}
	next := maps.Clone(cur)
	next[tenant] = d
	c.domains.Store(&next)
	return d
}

// evictionCall runs fn against the domain policy; a panic replaces the policy. d.mu must be held.
func (c *Cache) evictionCall(d *domain, fn func(p eviction.Policy)) {
	_, err := guard(policy.Eviction, d.evict.Name(), func() struct{} {
		fn(d.evict)
		return struct{}{}
	})
	if err != nil {
		c.evictionFault(d, err)
	}
}

// victims asks the domain policy for victims and checks the answer. d.mu must be held.
func (c *Cache) victims(d *domain, bytes int64, entries int) []model.Key {
	keys, err := c.checkedVictims(d, bytes, entries)
	if err == nil {
		return keys
	}
	if d.faulted {
		return nil
	}
	c.evictionFault(d, err)
	keys, _ = c.checkedVictims(d, bytes, entries)
	return keys
}

func (c *Cache) checkedVictims(d *domain, bytes int64, entries int) ([]model.Key, error) {
	name := d.evict.Name()
	keys, err := guard(policy.Eviction, name, func() []model.Key {
		return d.evict.Victims(max(bytes, 0), max(entries, 0))
	})
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 && d.evict.Len() > 0 && (bytes > 0 || entries > 0) {
		return nil, policy.Violate(policy.Eviction, name, "no victims while %d keys are resident", d.evict.Len())
	}
	seen := make(map[model.Key]struct{}, len(keys))
	for _, k := range keys {
		if k.Tenant != d.tenant {
			return nil, policy.Violate(policy.Eviction, name, "victim %s belongs to another tenant", k)
		}
		if _, dup := seen[k]; dup {
			return nil, policy.Violate(policy.Eviction, name, "victim %s returned twice", k)
		}
		seen[k] = struct{}{}
	}
	return keys, nil
}

// evictionFault replaces the domain policy by FIFO rebuilt from the resident
// entries in creation order.
func (c *Cache) evictionFault(d *domain, err error) {
	failed := d.evict.Name()
	fifo := eviction.NewFIFO()

	var resident []*index.Entry
	c.index.Range(func(e *index.Entry) bool {
		if e.Tenant() == d.tenant && !e.IsTombstone() {
			resident = append(resident, e)
		}
		return true
	})
	sort.Slice(resident, func(i, j int) bool {
		if resident[i].CreatedAt() != resident[j].CreatedAt() {
			return resident[i].CreatedAt() < resident[j].CreatedAt()
		}
		return resident[i].Version() < resident[j].Version()
	})
	for _, e := range resident {
		fifo.OnInsert(e.ModelKey(), e.Cost())
	}
	d.evict, d.faulted = fifo, true

	c.fault(err, d.tenant, failed, fifo.Name())
}
