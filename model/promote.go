package model

import "time"

// PromoteItem is a single candidate of a BATCH_PROMOTE command.
type PromoteItem struct {
	Tenant TenantID
	Key    []byte
	Value  []byte
	// TTL bounds the entry lifetime; zero means the configured default.
	TTL time.Duration
	// Estimate is the caller's hotness estimate of the key (0..15, saturating).
	Estimate uint8
}

// Cost is the number of bytes the entry is charged against quotas.
func (i PromoteItem) Cost() int64 {
	return int64(len(i.Key) + len(i.Value))
}

type PromoteStatus uint8

const (
	Admitted PromoteStatus = iota
	Rejected
	CapacityExceeded
	TooLarge
	// Invalidated means an invalidation of the key won the race against this promotion.
	Invalidated
	InvalidKey
	// TransportFailure is produced client-side when the control channel failed; the item was not applied.
	TransportFailure
)

func (s PromoteStatus) String() string {
	switch s {
	case Admitted:
		return "admitted"
	case Rejected:
		return "rejected"
	case CapacityExceeded:
		return "capacity_exceeded"
	case TooLarge:
		return "too_large"
	case Invalidated:
		return "invalidated"
	case InvalidKey:
		return "invalid_key"
	case TransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// PromoteResult is reported per item, in request order.
type PromoteResult struct {
	Tenant  TenantID
	Key     []byte
	Status  PromoteStatus
	Version uint64
}
