package index

import (
	"encoding/binary"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/zeebo/xxh3"
	"sync"
)

var hasherPool = sync.Pool{New: func() any { return xxh3.New() }}

// Hash mixes the tenant into the xxh3 digest of the key so equal keys of
// different tenants land in different buckets.
func Hash(tenant model.TenantID, key []byte) uint64 {
	hasher := hasherPool.Get().(*xxh3.Hasher)
	hasher.Reset()

	var t [4]byte
	binary.LittleEndian.PutUint32(t[:], uint32(tenant))
	_, _ = hasher.Write(t[:])
	_, _ = hasher.Write(key)
	sum := hasher.Sum64()

	hasherPool.Put(hasher)
	return sum
}
