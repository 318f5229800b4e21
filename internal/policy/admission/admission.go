// Package admission decides whether a promotion candidate may enter a tenant domain.
package admission

import (
	"fmt"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/model"
	"math"
)

// MaxEstimate is the saturation value of hotness estimates.
const MaxEstimate = 15

type Candidate struct {
	Key      model.Key
	Cost     int64
	Estimate uint8
}

// Budget describes the room left for a candidate and the entry it would displace.
type Budget struct {
	TenantUsed  int64
	TenantQuota int64
	GlobalUsed  int64
	GlobalCap   int64
	// HasVictim is false when the tenant domain is empty.
	HasVictim      bool
	VictimEstimate uint8
}

// Remaining returns the bytes left under the tighter of the tenant and global limits.
func (b Budget) Remaining() int64 {
	return min(b.TenantQuota-b.TenantUsed, b.GlobalCap-b.GlobalUsed)
}

// Fill returns the used share of the tighter limit in [0,1].
func (b Budget) Fill() float64 {
	tenant, global := fill(b.TenantUsed, b.TenantQuota), fill(b.GlobalUsed, b.GlobalCap)
	return math.Max(tenant, global)
}

func fill(used, limit int64) float64 {
	if limit <= 0 {
		return 1
	}
	return math.Min(1, math.Max(0, float64(used)/float64(limit)))
}

type Policy interface {
	Name() string
	Admit(c Candidate, b Budget) bool
}

func New(cfg *config.AdmissionCfg) (Policy, error) {
	if !cfg.Enabled() {
		return Always{}, nil
	}
	switch cfg.Policy {
	case "", config.AdmissionAlways:
		return Always{}, nil
	case config.AdmissionThreshold:
		return Threshold{Min: cfg.MinEstimate}, nil
	case config.AdmissionComparative:
		return Comparative{}, nil
	case config.AdmissionSizeAware:
		return SizeAware{Floor: cfg.SizeAwareFloor}, nil
	default:
		return nil, fmt.Errorf("unknown admission policy %q", cfg.Policy)
	}
}

// Always admits everything; memory limits are still enforced by the governor.
type Always struct{}

func (Always) Name() string { return string(config.AdmissionAlways) }

func (Always) Admit(Candidate, Budget) bool { return true }

// Threshold admits candidates estimated at least Min.
type Threshold struct {
	Min uint8
}

func (Threshold) Name() string { return string(config.AdmissionThreshold) }

func (p Threshold) Admit(c Candidate, _ Budget) bool {
	return c.Estimate >= p.Min
}

// Comparative admits a candidate into an empty domain, or when it is estimated hotter
// than the next eviction victim.
type Comparative struct{}

func (Comparative) Name() string { return string(config.AdmissionComparative) }

func (Comparative) Admit(c Candidate, b Budget) bool {
	return !b.HasVictim || c.Estimate > b.VictimEstimate
}

// SizeAware admits freely below Floor of the budget. Above it the required estimate
// grows linearly up to MaxEstimate at a full budget, and larger candidates need
// proportionally more: the requirement is scaled by the share of the remaining
// room the candidate would take.
type SizeAware struct {
	Floor float64
}

func (SizeAware) Name() string { return string(config.AdmissionSizeAware) }

func (p SizeAware) Admit(c Candidate, b Budget) bool {
	remaining := b.Remaining()
	if c.Cost > remaining {
		return false
	}
	f := b.Fill()
	if f <= p.Floor {
		return true
	}
	pressure := (f - p.Floor) / (1 - p.Floor)
	share := 1.0
	if remaining > 0 {
		share = 0.5 + 0.5*float64(c.Cost)/float64(remaining)
	}
	required := math.Ceil(pressure * share * MaxEstimate)
	return float64(c.Estimate) >= required
}
