// Package governor enforces the global hard cap and per-tenant quotas of charged bytes
// and tracks memory pressure.
package governor

import (
	"errors"
	"fmt"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/internal/policy"
	"github.com/Borislavv/go-hotkv/internal/policy/tenancy"
	"github.com/Borislavv/go-hotkv/model"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrTenantQuota      = fmt.Errorf("%w: tenant quota", ErrCapacityExceeded)
	ErrGlobalCap        = fmt.Errorf("%w: global hard cap", ErrCapacityExceeded)
)

type account struct {
	id       model.TenantID
	base     int64
	weight   int
	priority int
	used     atomic.Int64
	entries  atomic.Int64
	quota    atomic.Int64
}

type Options struct {
	HardCap int64
	// SoftCap is the pressure watermark; zero or above HardCap means HardCap.
	SoftCap int64
	// DefaultQuota applies to unconfigured tenants; zero means HardCap.
	DefaultQuota int64
	Borrowing    bool
	Tenants      []config.TenantCfg
	Budget       tenancy.Policy
	// OnPressure is called on every change of the pressure level.
	OnPressure func(level model.PressureLevel, used, limit int64)
	// OnViolation is called when the budget policy or the accounting misbehaves.
	OnViolation func(err error)
	// OnOverQuota is called after a rebalance for every tenant left using more
	// than its new quota; the callee is expected to reclaim over bytes.
	OnOverQuota func(tenant model.TenantID, over int64)
}

type Governor struct {
	hardCap      int64
	softCap      int64
	defaultQuota int64
	borrowing    bool

	used    atomic.Int64
	entries atomic.Int64
	level   atomic.Uint32

	mu       sync.RWMutex
	accounts map[model.TenantID]*account

	budgetMu sync.Mutex
	budget   tenancy.Policy

	violations  atomic.Int64
	onPressure  func(level model.PressureLevel, used, limit int64)
	onViolation func(err error)
	onOverQuota func(tenant model.TenantID, over int64)
}

func New(opts Options) *Governor {
	g := &Governor{
		hardCap:      opts.HardCap,
		softCap:      opts.SoftCap,
		defaultQuota: opts.DefaultQuota,
		borrowing:    opts.Borrowing,
		accounts:     make(map[model.TenantID]*account, len(opts.Tenants)),
		budget:       opts.Budget,
		onPressure:   opts.OnPressure,
		onViolation:  opts.OnViolation,
		onOverQuota:  opts.OnOverQuota,
	}
	if g.softCap <= 0 || g.softCap > g.hardCap {
		g.softCap = g.hardCap
	}
	if g.defaultQuota <= 0 {
		g.defaultQuota = g.hardCap
	}
	if g.budget == nil {
		g.budget = tenancy.HardQuota{}
	}
	for _, t := range opts.Tenants {
		acc := &account{id: model.TenantID(t.ID), base: t.Quota, weight: t.Weight, priority: t.Priority}
		acc.quota.Store(t.Quota)
		g.accounts[acc.id] = acc
	}
	g.Rebalance()
	return g
}

func (g *Governor) lookup(tenant model.TenantID) (*account, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	acc, ok := g.accounts[tenant]
	return acc, ok
}

// account returns the tenant's account, opening one and rebalancing on first charge.
func (g *Governor) account(tenant model.TenantID) *account {
	acc, ok := g.lookup(tenant)
	if ok {
		return acc
	}

	g.mu.Lock()
	if acc, ok = g.accounts[tenant]; !ok {
		acc = &account{id: tenant, base: g.defaultQuota, weight: 1}
		acc.quota.Store(g.defaultQuota)
		g.accounts[tenant] = acc
	}
	g.mu.Unlock()

	if !ok {
		g.Rebalance()
	}
	return acc
}

// Reserve charges bytes and entries to the tenant. It fails with ErrGlobalCap or
// ErrTenantQuota without charging anything.
func (g *Governor) Reserve(tenant model.TenantID, bytes, entries int64) error {
	acc := g.account(tenant)

	for {
		used := g.used.Load()
		if used+bytes > g.hardCap {
			g.setLevel(model.PressureHard, used)
			return ErrGlobalCap
		}
		if g.used.CompareAndSwap(used, used+bytes) {
			break
		}
	}
	for {
		used := acc.used.Load()
		if !g.borrowing && used+bytes > acc.quota.Load() {
			g.used.Add(-bytes)
			return ErrTenantQuota
		}
		if acc.used.CompareAndSwap(used, used+bytes) {
			break
		}
	}
	acc.entries.Add(entries)
	g.entries.Add(entries)

	g.observe()
	return nil
}

// Release returns bytes and entries charged earlier. A counter driven below zero is
// clamped and reported as a violation.
func (g *Governor) Release(tenant model.TenantID, bytes, entries int64) {
	acc := g.account(tenant)

	tenantBytes, tenantEntries := clampAdd(&acc.used, -bytes), clampAdd(&acc.entries, -entries)
	if tenantBytes || tenantEntries {
		g.disable(policy.Violate(policy.Tenancy, g.budgetName(), "tenant %d accounting went negative", tenant))
	}
	globalBytes, globalEntries := clampAdd(&g.used, -bytes), clampAdd(&g.entries, -entries)
	if globalBytes || globalEntries {
		g.disable(policy.Violate(policy.Tenancy, g.budgetName(), "global accounting went negative"))
	}
	g.observe()
}

// clampAdd adds delta and reports true if the result had to be clamped at zero.
func clampAdd(v *atomic.Int64, delta int64) bool {
	for {
		cur := v.Load()
		next := cur + delta
		clamped := next < 0
		if clamped {
			next = 0
		}
		if v.CompareAndSwap(cur, next) {
			return clamped
		}
	}
}

func (g *Governor) observe() {
	used := g.used.Load()
	switch {
	case used > g.softCap:
		if model.PressureLevel(g.level.Load()) != model.PressureHard {
			g.setLevel(model.PressureSoft, used)
		}
	default:
		g.setLevel(model.PressureNone, used)
	}
}

func (g *Governor) setLevel(level model.PressureLevel, used int64) {
	prev := model.PressureLevel(g.level.Swap(uint32(level)))
	if prev == level || g.onPressure == nil {
		return
	}
	limit := g.softCap
	if level == model.PressureHard {
		limit = g.hardCap
	}
	g.onPressure(level, used, limit)
}

func (g *Governor) Pressure() model.PressureLevel {
	return model.PressureLevel(g.level.Load())
}

// SoftExcess is the number of charged bytes above the soft watermark.
func (g *Governor) SoftExcess() int64 {
	if excess := g.used.Load() - g.softCap; excess > 0 {
		return excess
	}
	return 0
}

func (g *Governor) Used() int64 { return g.used.Load() }

func (g *Governor) Entries() int64 { return g.entries.Load() }

func (g *Governor) HardCap() int64 { return g.hardCap }

func (g *Governor) SoftCap() int64 { return g.softCap }

// TenantUsed reports zero for a tenant that was never charged.
func (g *Governor) TenantUsed(tenant model.TenantID) int64 {
	if acc, ok := g.lookup(tenant); ok {
		return acc.used.Load()
	}
	return 0
}

// TenantQuota reports the default quota for a tenant that was never charged.
func (g *Governor) TenantQuota(tenant model.TenantID) int64 {
	if acc, ok := g.lookup(tenant); ok {
		return acc.quota.Load()
	}
	return g.defaultQuota
}

func (g *Governor) Violations() int64 { return g.violations.Load() }

func (g *Governor) snapshot() []tenancy.Account {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]tenancy.Account, 0, len(g.accounts))
	for _, a := range g.accounts {
		out = append(out, tenancy.Account{
			ID:       a.id,
			Base:     a.base,
			Used:     a.used.Load(),
			Entries:  a.entries.Load(),
			Weight:   a.weight,
			Priority: a.priority,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Rebalance recomputes effective quotas through the budget policy. A misbehaving policy
// is replaced by hard quotas. Tenants left above their new quota are handed to
// OnOverQuota.
func (g *Governor) Rebalance() {
	accounts := g.snapshot()

	g.budgetMu.Lock()
	quotas, err := g.quotas(accounts)
	if err != nil {
		g.budget = tenancy.HardQuota{}
		quotas = g.budget.Quotas(g.hardCap, accounts)
	}
	g.budgetMu.Unlock()

	if err != nil {
		g.violate(err)
	}

	type excess struct {
		tenant model.TenantID
		over   int64
	}
	var overs []excess
	g.mu.RLock()
	for id, q := range quotas {
		if acc, ok := g.accounts[id]; ok {
			acc.quota.Store(q)
			if over := acc.used.Load() - q; over > 0 && !g.borrowing {
				overs = append(overs, excess{tenant: id, over: over})
			}
		}
	}
	g.mu.RUnlock()

	if g.onOverQuota == nil {
		return
	}
	sort.Slice(overs, func(i, j int) bool { return overs[i].tenant < overs[j].tenant })
	for _, o := range overs {
		g.onOverQuota(o.tenant, o.over)
	}
}

func (g *Governor) quotas(accounts []tenancy.Account) (quotas map[model.TenantID]int64, err error) {
	name := g.budget.Name()
	defer policy.Recover(policy.Tenancy, name, &err)

	quotas = g.budget.Quotas(g.hardCap, accounts)
	for _, a := range accounts {
		q, ok := quotas[a.ID]
		if !ok {
			return nil, policy.Violate(policy.Tenancy, name, "no quota for tenant %d", a.ID)
		}
		if q < 0 {
			return nil, policy.Violate(policy.Tenancy, name, "negative quota %d for tenant %d", q, a.ID)
		}
	}
	return quotas, nil
}

// Preempt asks the budget policy which bytes of other tenants may be reclaimed in favour
// of tenant. Claims on the requester itself or beyond borrowed bytes are dropped.
func (g *Governor) Preempt(tenant model.TenantID, need int64) []tenancy.Claim {
	accounts := g.snapshot()
	byID := make(map[model.TenantID]tenancy.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	g.budgetMu.Lock()
	claims, err := g.preempt(tenant, need, accounts)
	g.budgetMu.Unlock()
	if err != nil {
		g.disable(err)
		return nil
	}

	valid := claims[:0]
	for _, c := range claims {
		a, ok := byID[c.Tenant]
		if !ok || c.Tenant == tenant || c.Bytes <= 0 {
			continue
		}
		if borrowed := a.Used - a.Base; borrowed > 0 {
			c.Bytes = min(c.Bytes, borrowed)
			valid = append(valid, c)
		}
	}
	return valid
}

func (g *Governor) preempt(tenant model.TenantID, need int64, accounts []tenancy.Account) (claims []tenancy.Claim, err error) {
	defer policy.Recover(policy.Tenancy, g.budget.Name(), &err)
	return g.budget.Preempt(tenant, need, accounts), nil
}

func (g *Governor) budgetName() string {
	g.budgetMu.Lock()
	defer g.budgetMu.Unlock()
	return g.budget.Name()
}

// disable replaces the budget policy by hard quotas.
func (g *Governor) disable(err error) {
	g.budgetMu.Lock()
	g.budget = tenancy.HardQuota{}
	g.budgetMu.Unlock()

	g.violate(err)
	g.Rebalance()
}

func (g *Governor) violate(err error) {
	g.violations.Add(1)
	if g.onViolation != nil {
		g.onViolation(err)
	}
}

// BudgetPolicy returns the name of the active budget policy.
func (g *Governor) BudgetPolicy() string {
	return g.budgetName()
}

// Tenants returns per-tenant accounting ordered by tenant id.
func (g *Governor) Tenants() []model.TenantStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.TenantStats, 0, len(g.accounts))
	for _, a := range g.accounts {
		out = append(out, model.TenantStats{
			Tenant:     a.id,
			UsedBytes:  a.used.Load(),
			QuotaBytes: a.quota.Load(),
			Entries:    a.entries.Load(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tenant < out[j].Tenant })
	return out
}

// PressureOrder lists tenants holding bytes, most over their quota share first.
func (g *Governor) PressureOrder() []model.TenantID {
	stats := g.Tenants()
	sort.SliceStable(stats, func(i, j int) bool {
		return ratio(stats[i]) > ratio(stats[j])
	})
	out := make([]model.TenantID, 0, len(stats))
	for _, s := range stats {
		if s.UsedBytes > 0 {
			out = append(out, s.Tenant)
		}
	}
	return out
}

func ratio(s model.TenantStats) float64 {
	if s.QuotaBytes <= 0 {
		return float64(s.UsedBytes)
	}
	return float64(s.UsedBytes) / float64(s.QuotaBytes)
}
