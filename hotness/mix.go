package hotness

import (
	"github.com/Borislavv/go-hotkv/model"
	"github.com/zeebo/xxh3"
)

const (
	splitmixIncrement = 0x9E3779B97F4A7C15
	splitmixMul1      = 0xBF58476D1CE4E5B9
	splitmixMul2      = 0x94D049BB133111EB
)

// mix64 is the SplitMix64 finalizer. Successive applications yield the
// pseudo-independent probe indices used by the sketch and the doorkeeper.
func mix64(x uint64) uint64 {
	x += splitmixIncrement
	x = (x ^ (x >> 30)) * splitmixMul1
	x = (x ^ (x >> 27)) * splitmixMul2
	return x ^ (x >> 31)
}

// hashKey folds the tenant into the key digest so equal names of different
// tenants are counted apart.
func hashKey(k model.Key) uint64 {
	return mix64(xxh3.HashString(k.Name) ^ uint64(k.Tenant)*splitmixIncrement)
}

func nextPow2(x int) int {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	return x + 1
}

// probes derives n table indices from one hash.
func probes(h uint64, mask uint32, dst []uint32) {
	for i := range dst {
		dst[i] = uint32(h) & mask
		h = mix64(h)
	}
}
