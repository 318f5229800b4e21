package hotness

import (
	"runtime"
	"sync/atomic"
	"time"
)

const (
	nibbleMask    = 0xF
	halveMask     = 0x7777777777777777
	sketchDepth   = 4
	maxCASTries   = 64
	yieldEvery    = 8
	sleepAfter    = 32
	MaxEstimate   = 15
	sketchDefault = 10
)

// counters is a count-min sketch of 4-bit saturating counters, sixteen per
// word. Once the number of increments reaches the window every counter is
// halved so that estimates follow recent traffic.
type counters struct {
	words  []uint64
	mask   uint32
	window uint64
	adds   atomic.Uint64
	aging  atomic.Bool
}

func (c *counters) init(length uint32, samples uint32) {
	if length == 0 || length&(length-1) != 0 {
		panic("hotness: counter table length must be a power of two")
	}
	if samples == 0 {
		samples = sketchDefault
	}
	c.words = make([]uint64, (uint64(length)+15)/16)
	c.mask = length - 1
	c.window = uint64(samples) * uint64(length)
}

func (c *counters) increment(h uint64) {
	c.maybeAge()

	var idx [sketchDepth]uint32
	probes(h, c.mask, idx[:])
	for _, i := range idx {
		c.incAt(i)
	}
	c.adds.Add(1)
}

func (c *counters) estimate(h uint64) uint8 {
	var idx [sketchDepth]uint32
	probes(h, c.mask, idx[:])

	least := uint8(MaxEstimate)
	for _, i := range idx {
		if v := c.at(i); v < least {
			least = v
		}
	}
	return least
}

func (c *counters) slot(i uint32) (*uint64, uint) {
	return &c.words[i>>4], uint((i & 0xF) << 2)
}

func (c *counters) at(i uint32) uint8 {
	ptr, shift := c.slot(i)
	return uint8((atomic.LoadUint64(ptr) >> shift) & nibbleMask)
}

// incAt gives up after a bounded number of lost races; a dropped increment
// only makes the estimate slightly lower.
func (c *counters) incAt(i uint32) {
	ptr, shift := c.slot(i)
	for tries := 1; tries <= maxCASTries; tries++ {
		old := atomic.LoadUint64(ptr)
		if (old>>shift)&nibbleMask == nibbleMask {
			return
		}
		if atomic.CompareAndSwapUint64(ptr, old, old+(1<<shift)) {
			return
		}
		backoff(tries)
	}
}

func (c *counters) maybeAge() {
	if c.adds.Load() < c.window {
		return
	}
	if !c.aging.CompareAndSwap(false, true) {
		return
	}
	if c.adds.Load() >= c.window {
		c.halve()
		c.adds.Store(0)
	}
	c.aging.Store(false)
}

func (c *counters) halve() {
	for i := range c.words {
		ptr := &c.words[i]
		for tries := 1; tries <= maxCASTries; tries++ {
			old := atomic.LoadUint64(ptr)
			if atomic.CompareAndSwapUint64(ptr, old, (old>>1)&halveMask) {
				break
			}
			backoff(tries)
		}
	}
}

func (c *counters) clear() {
	for i := range c.words {
		atomic.StoreUint64(&c.words[i], 0)
	}
	c.adds.Store(0)
}

func backoff(tries int) {
	if tries%yieldEvery != 0 {
		return
	}
	runtime.Gosched()
	if tries >= sleepAfter {
		time.Sleep(0)
	}
}
