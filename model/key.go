package model

import (
	"errors"
	"strconv"
)

// ErrInvalidKey rejects empty keys and keys longer than the configured maximum.
var ErrInvalidKey = errors.New("invalid key")

// TenantID identifies an isolation domain. Entries of different tenants never share quota or eviction state.
type TenantID uint32

// Key is the comparable identity of a cached entry used by the policy plane and by events.
type Key struct {
	Tenant TenantID
	Name   string
}

func NewKey(tenant TenantID, name []byte) Key {
	return Key{Tenant: tenant, Name: string(name)}
}

func (k Key) String() string {
	return strconv.FormatUint(uint64(k.Tenant), 10) + "/" + k.Name
}
