// Package tenancy derives effective per-tenant byte quotas from guaranteed quotas,
// weights and priorities.
package tenancy

import (
	"fmt"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/model"
	"sort"
)

// Account is a read-only view of a tenant's budget state.
type Account struct {
	ID model.TenantID
	// Base is the guaranteed quota.
	Base     int64
	Used     int64
	Entries  int64
	Weight   int
	Priority int
}

// Claim names bytes of another tenant that may be reclaimed.
type Claim struct {
	Tenant model.TenantID
	Bytes  int64
}

type Policy interface {
	Name() string
	// Quotas returns the effective quota of every account.
	Quotas(hardCap int64, accounts []Account) map[model.TenantID]int64
	// Preempt lists bytes other tenants hold above their guaranteed quota that may be
	// reclaimed so that requester can admit need bytes. Most policies never preempt.
	Preempt(requester model.TenantID, need int64, accounts []Account) []Claim
}

func New(kind config.TenantPolicy) (Policy, error) {
	switch kind {
	case "", config.TenantHardQuota:
		return HardQuota{}, nil
	case config.TenantProportional:
		return Proportional{}, nil
	case config.TenantPriority:
		return Priority{}, nil
	default:
		return nil, fmt.Errorf("unknown tenant policy %q", kind)
	}
}

// HardQuota keeps every tenant at its guaranteed quota.
type HardQuota struct{}

func (HardQuota) Name() string { return string(config.TenantHardQuota) }

func (HardQuota) Quotas(_ int64, accounts []Account) map[model.TenantID]int64 {
	out := make(map[model.TenantID]int64, len(accounts))
	for _, a := range accounts {
		out[a.ID] = a.Base
	}
	return out
}

func (HardQuota) Preempt(model.TenantID, int64, []Account) []Claim { return nil }

// sharedPool is the part of the hard cap not promised to anyone.
func sharedPool(hardCap int64, accounts []Account) int64 {
	pool := hardCap
	for _, a := range accounts {
		pool -= a.Base
	}
	if pool < 0 {
		return 0
	}
	return pool
}

// Proportional adds a weight-proportional share of the shared pool to every guaranteed quota.
type Proportional struct{}

func (Proportional) Name() string { return string(config.TenantProportional) }

func (Proportional) Quotas(hardCap int64, accounts []Account) map[model.TenantID]int64 {
	pool := sharedPool(hardCap, accounts)
	var weights int64
	for _, a := range accounts {
		weights += int64(max(a.Weight, 1))
	}

	out := make(map[model.TenantID]int64, len(accounts))
	for _, a := range accounts {
		share := int64(0)
		if weights > 0 {
			share = pool * int64(max(a.Weight, 1)) / weights
		}
		out[a.ID] = a.Base + share
	}
	return out
}

func (Proportional) Preempt(model.TenantID, int64, []Account) []Claim { return nil }

// Priority offers the shared pool to tenants in descending priority: each tenant may use
// whatever higher-priority tenants have not already borrowed. A higher-priority tenant
// may reclaim what lower-priority tenants borrowed, never their guaranteed quota.
type Priority struct{}

func (Priority) Name() string { return string(config.TenantPriority) }

func byPriority(accounts []Account, desc bool) []Account {
	sorted := append([]Account(nil), accounts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			if desc {
				return sorted[i].Priority > sorted[j].Priority
			}
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func (Priority) Quotas(hardCap int64, accounts []Account) map[model.TenantID]int64 {
	remaining := sharedPool(hardCap, accounts)
	out := make(map[model.TenantID]int64, len(accounts))
	for _, a := range byPriority(accounts, true) {
		out[a.ID] = a.Base + remaining
		if borrowed := a.Used - a.Base; borrowed > 0 {
			remaining -= min(borrowed, remaining)
		}
	}
	return out
}

func (Priority) Preempt(requester model.TenantID, need int64, accounts []Account) []Claim {
	var reqPriority int
	found := false
	for _, a := range accounts {
		if a.ID == requester {
			reqPriority, found = a.Priority, true
			break
		}
	}
	if !found || need <= 0 {
		return nil
	}

	var claims []Claim
	for _, a := range byPriority(accounts, false) {
		if need <= 0 || a.Priority >= reqPriority {
			break
		}
		if borrowed := a.Used - a.Base; borrowed > 0 {
			take := min(borrowed, need)
			claims = append(claims, Claim{Tenant: a.ID, Bytes: take})
			need -= take
		}
	}
	return claims
}
