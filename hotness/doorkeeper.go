package hotness

import "sync/atomic"

const doorProbes = 3

// doorkeeper is a bloom filter in front of the counters: the first sighting
// of a key only sets its bits, so one-hit keys never reach the sketch.
type doorkeeper struct {
	bits []uint64
	mask uint32
}

func (d *doorkeeper) init(totalBits int) {
	n := nextPow2(totalBits)
	d.bits = make([]uint64, (n+63)/64)
	d.mask = uint32(n - 1)
}

func (d *doorkeeper) contains(h uint64) bool {
	var idx [doorProbes]uint32
	probes(h, d.mask, idx[:])
	for _, i := range idx {
		if !d.get(i) {
			return false
		}
	}
	return true
}

// admit reports whether h was probably seen before, marking it otherwise.
func (d *doorkeeper) admit(h uint64) bool {
	var idx [doorProbes]uint32
	probes(h, d.mask, idx[:])

	seen := true
	for _, i := range idx {
		if !d.get(i) {
			seen = false
			break
		}
	}
	if seen {
		return true
	}
	for _, i := range idx {
		d.set(i)
	}
	return false
}

func (d *doorkeeper) get(i uint32) bool {
	return atomic.LoadUint64(&d.bits[i>>6])&(1<<(i&63)) != 0
}

func (d *doorkeeper) set(i uint32) {
	ptr, bit := &d.bits[i>>6], uint64(1)<<(i&63)
	for tries := 1; tries <= maxCASTries; tries++ {
		old := atomic.LoadUint64(ptr)
		if old&bit != 0 || atomic.CompareAndSwapUint64(ptr, old, old|bit) {
			return
		}
		backoff(tries)
	}
}

func (d *doorkeeper) clear() {
	for i := range d.bits {
		atomic.StoreUint64(&d.bits[i], 0)
	}
}
