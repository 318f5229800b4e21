// Package hotness approximates per-key access frequency with a sharded
// TinyLFU sketch. It feeds promotion decisions made outside the data plane;
// the cache itself only sees the resulting estimates.
package hotness

import (
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/model"
)

// Estimator records accesses and answers frequency estimates in 0..MaxEstimate.
type Estimator interface {
	Record(k model.Key)
	Estimate(k model.Key) uint8
	// Prefer reports whether candidate is strictly hotter than victim.
	Prefer(candidate, victim model.Key) bool
	Reset()
}

// New returns a sketch sized by cfg, or a NoOp estimator when cfg is nil.
func New(cfg *config.HotnessCfg) Estimator {
	if !cfg.Enabled() {
		return NewNoOp()
	}
	return NewSketch(cfg)
}

type shard struct {
	counters counters
	door     doorkeeper
	_        [64]byte
}

// Sketch spreads keys over independent shards to keep CAS contention local.
type Sketch struct {
	mask   uint64
	shards []shard
}

func NewSketch(cfg *config.HotnessCfg) *Sketch {
	cfg = config.AdjustHotness(cfg)

	perShard := cfg.Capacity / cfg.Shards
	tableLen := nextPow2(perShard)
	if tableLen < cfg.MinTableLenPerShard {
		tableLen = cfg.MinTableLenPerShard
	}

	s := &Sketch{
		mask:   uint64(cfg.Shards - 1),
		shards: make([]shard, cfg.Shards),
	}
	for i := range s.shards {
		s.shards[i].counters.init(uint32(tableLen), uint32(cfg.SampleMultiplier))
		s.shards[i].door.init(tableLen * cfg.DoorBitsPerCounter)
	}
	return s
}

func (s *Sketch) shardOf(h uint64) *shard {
	return &s.shards[(h>>32)&s.mask]
}

// Record counts one access. The first access of a key only passes the doorkeeper.
func (s *Sketch) Record(k model.Key) {
	h := hashKey(k)
	sh := s.shardOf(h)
	if sh.door.admit(h) {
		sh.counters.increment(h)
	}
}

// Estimate returns the sketch frequency, plus one if the doorkeeper has seen the key.
func (s *Sketch) Estimate(k model.Key) uint8 {
	h := hashKey(k)
	sh := s.shardOf(h)
	est := sh.counters.estimate(h)
	if est < MaxEstimate && sh.door.contains(h) {
		est++
	}
	return est
}

// Prefer rejects ties so that residents are not churned by equally warm keys.
func (s *Sketch) Prefer(candidate, victim model.Key) bool {
	if candidate == victim {
		return true
	}
	h := hashKey(candidate)
	if !s.shardOf(h).door.contains(h) {
		return false
	}
	return s.Estimate(candidate) > s.Estimate(victim)
}

// Reset forgets every observation.
func (s *Sketch) Reset() {
	for i := range s.shards {
		s.shards[i].counters.clear()
		s.shards[i].door.clear()
	}
}
