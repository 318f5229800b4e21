package index

import (
	"bytes"
	"github.com/Borislavv/go-hotkv/internal/slab"
	"github.com/Borislavv/go-hotkv/model"
	"sync/atomic"
	"time"
)

// Entry is an immutable snapshot of a key's value published in the index.
// Only freshness and access statistics change after publication; a new value
// is always a new Entry.
type Entry struct {
	key       []byte
	tenant    model.TenantID
	hash      uint64
	version   uint64
	ref       slab.Ref
	cost      int64
	estimate  uint8
	createdAt int64
	expireAt  int64 // 0: no TTL
	tomb      bool

	meta      atomic.Uint64 // freshness in the low 2 bits, transition time (UnixNano>>2) above
	touchedAt atomic.Int64
	hits      atomic.Uint64
	refreshAt atomic.Int64
}

type Spec struct {
	Tenant   model.TenantID
	Key      []byte
	Hash     uint64
	Ref      slab.Ref
	Cost     int64
	Estimate uint8
	Now      int64
	TTL      time.Duration
}

// NewEntry builds an unpublished FRESH entry; its version is assigned by Upsert.
func NewEntry(s Spec) *Entry {
	e := &Entry{
		key:       bytes.Clone(s.Key),
		tenant:    s.Tenant,
		hash:      s.Hash,
		ref:       s.Ref,
		cost:      s.Cost,
		estimate:  s.Estimate,
		createdAt: s.Now,
	}
	if s.TTL > 0 {
		e.expireAt = s.Now + int64(s.TTL)
	}
	e.touchedAt.Store(s.Now)
	return e
}

// NewTombstone builds a marker that hides the key and holds back promotions until released.
func NewTombstone(tenant model.TenantID, key []byte, hash uint64, now int64) *Entry {
	e := &Entry{
		key:       bytes.Clone(key),
		tenant:    tenant,
		hash:      hash,
		createdAt: now,
		tomb:      true,
	}
	e.meta.Store(pack(model.Tombstoned, now))
	return e
}

func (e *Entry) Key() []byte { return e.key }

func (e *Entry) Tenant() model.TenantID { return e.tenant }

func (e *Entry) ModelKey() model.Key { return model.NewKey(e.tenant, e.key) }

func (e *Entry) Hash() uint64 { return e.hash }

func (e *Entry) Version() uint64 { return e.version }

func (e *Entry) Ref() slab.Ref { return e.ref }

// Cost is the number of bytes charged to the tenant for this entry.
func (e *Entry) Cost() int64 { return e.cost }

func (e *Entry) Estimate() uint8 { return e.estimate }

func (e *Entry) CreatedAt() int64 { return e.createdAt }

func (e *Entry) ExpireAt() int64 { return e.expireAt }

// IsTombstone reports a marker entry that never carried a value.
func (e *Entry) IsTombstone() bool { return e.tomb }

func (e *Entry) matches(tenant model.TenantID, key []byte, hash uint64) bool {
	return e.hash == hash && e.tenant == tenant && bytes.Equal(e.key, key)
}

// Touch records a served read.
func (e *Entry) Touch(now int64) {
	e.touchedAt.Store(now)
	e.hits.Add(1)
}

func (e *Entry) TouchedAt() int64 { return e.touchedAt.Load() }

func (e *Entry) Hits() uint64 { return e.hits.Load() }

// Expired reports whether the TTL has elapsed at now.
func (e *Entry) Expired(now int64) bool {
	return e.expireAt != 0 && now >= e.expireAt
}

// TryQueueRefresh reports true at most once per retry interval, so a stale or
// expiring entry asks for one refresh at a time.
func (e *Entry) TryQueueRefresh(now int64, retry time.Duration) bool {
	for {
		last := e.refreshAt.Load()
		if last != 0 && now-last < int64(retry) {
			return false
		}
		if e.refreshAt.CompareAndSwap(last, now) {
			return true
		}
	}
}
