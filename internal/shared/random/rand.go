package random

import (
	"runtime"
	"sync/atomic"
	"time"
)

const golden = 0x9e3779b97f4a7c15

type lane struct {
	state atomic.Uint64
	_     [56]byte
}

// Source is a lock-free SplitMix64 generator spread over padded lanes picked round-robin.
type Source struct {
	lanes []lane
	mask  uint32
	rr    atomic.Uint32
}

// NewSource builds a source with n lanes (GOMAXPROCS*4 if n<=0), rounded up to a power of two.
func NewSource(n int, seed int64) *Source {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0) * 4
	}
	p := 1
	for p < n {
		p <<= 1
	}

	s := &Source{lanes: make([]lane, p), mask: uint32(p - 1)}
	state := mix(uint64(seed) + golden)
	for i := range s.lanes {
		state += golden
		v := mix(state)
		if v == 0 {
			v = golden
		}
		s.lanes[i].state.Store(v)
	}
	return s
}

func (s *Source) Uint64() uint64 {
	l := &s.lanes[s.rr.Add(1)&s.mask]
	return mix(l.state.Add(golden))
}

// Float64 returns a uniform value in [0,1) built from 53 random bits.
func (s *Source) Float64() float64 {
	const inv53 = 1.0 / 9007199254740992.0
	return float64(s.Uint64()>>11) * inv53
}

// Intn returns a value in [0,n). n must be positive.
func (s *Source) Intn(n int) int {
	return int(s.Uint64() % uint64(n))
}

func mix(z uint64) uint64 {
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}

var global = NewSource(0, time.Now().UnixNano())

func Uint64() uint64 { return global.Uint64() }

func Float64() float64 { return global.Float64() }

func Intn(n int) int { return global.Intn(n) }
