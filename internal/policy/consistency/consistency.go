// Package consistency maps invalidations and reads of non-fresh entries to actions.
// A TOMBSTONED entry is never served whatever the mode says.
package consistency

import (
	"fmt"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/model"
	"time"
)

type InvalidateAction uint8

const (
	// Tombstone hides the entry immediately.
	Tombstone InvalidateAction = iota
	// MarkStale keeps serving the entry, flagged, for a bounded time.
	MarkStale
	// MarkStaleRefresh marks the entry stale and asks the promoter for a fresh value.
	MarkStaleRefresh
)

type ReadAction uint8

const (
	Serve ReadAction = iota
	ServeStale
	// ServeStaleRefresh serves the stale entry and asks for a refresh.
	ServeStaleRefresh
	Miss
)

// SweepAction is what the background sweeper does with a STALE entry.
type SweepAction uint8

const (
	Keep SweepAction = iota
	Remove
	Refresh
)

type Read struct {
	State    model.Freshness
	StaleFor time.Duration
	// Expected is the caller's version, zero for any.
	Expected uint64
	Version  uint64
}

type Policy interface {
	Name() string
	OnInvalidate() InvalidateAction
	OnRead(r Read) ReadAction
	OnStaleSweep(staleFor time.Duration) SweepAction
}

func New(cfg *config.ConsistencyCfg) (Policy, error) {
	if !cfg.Enabled() {
		return Strict{}, nil
	}
	switch cfg.Mode {
	case "", config.ConsistencyStrict:
		return Strict{}, nil
	case config.ConsistencyVersionCheck:
		return VersionCheck{}, nil
	case config.ConsistencyBounded:
		return Bounded{MaxStaleness: cfg.MaxStaleness}, nil
	case config.ConsistencyAsyncRefresh:
		return AsyncRefresh{MaxStaleness: cfg.MaxStaleness}, nil
	default:
		return nil, fmt.Errorf("unknown consistency mode %q", cfg.Mode)
	}
}

// Strict never serves an invalidated value.
type Strict struct{}

func (Strict) Name() string { return string(config.ConsistencyStrict) }

func (Strict) OnInvalidate() InvalidateAction { return Tombstone }

func (Strict) OnRead(r Read) ReadAction {
	if r.State != model.Fresh {
		return Miss
	}
	return Serve
}

func (Strict) OnStaleSweep(time.Duration) SweepAction { return Remove }

// VersionCheck is strict and additionally misses when the caller expects another version.
type VersionCheck struct{}

func (VersionCheck) Name() string { return string(config.ConsistencyVersionCheck) }

func (VersionCheck) OnInvalidate() InvalidateAction { return Tombstone }

func (VersionCheck) OnRead(r Read) ReadAction {
	if r.State != model.Fresh || (r.Expected != 0 && r.Expected != r.Version) {
		return Miss
	}
	return Serve
}

func (VersionCheck) OnStaleSweep(time.Duration) SweepAction { return Remove }

// Bounded serves invalidated entries, flagged STALE, until MaxStaleness.
type Bounded struct {
	MaxStaleness time.Duration
}

func (Bounded) Name() string { return string(config.ConsistencyBounded) }

func (Bounded) OnInvalidate() InvalidateAction { return MarkStale }

func (p Bounded) OnRead(r Read) ReadAction {
	switch {
	case r.State == model.Fresh:
		return Serve
	case r.State == model.Stale && r.StaleFor <= p.MaxStaleness:
		return ServeStale
	default:
		return Miss
	}
}

func (p Bounded) OnStaleSweep(staleFor time.Duration) SweepAction {
	if staleFor > p.MaxStaleness {
		return Remove
	}
	return Keep
}

// AsyncRefresh serves stale entries like Bounded while a refresh is requested.
type AsyncRefresh struct {
	MaxStaleness time.Duration
}

func (AsyncRefresh) Name() string { return string(config.ConsistencyAsyncRefresh) }

func (AsyncRefresh) OnInvalidate() InvalidateAction { return MarkStaleRefresh }

func (p AsyncRefresh) OnRead(r Read) ReadAction {
	switch {
	case r.State == model.Fresh:
		return Serve
	case r.State == model.Stale && r.StaleFor <= p.MaxStaleness:
		return ServeStaleRefresh
	default:
		return Miss
	}
}

func (p AsyncRefresh) OnStaleSweep(staleFor time.Duration) SweepAction {
	if staleFor > p.MaxStaleness {
		return Remove
	}
	return Refresh
}
