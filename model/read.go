package model

import "time"

type ReadRequest struct {
	Tenant TenantID
	Key    []byte
	// ExpectedVersion, when non-zero, turns a read of any other version into a miss
	// under the version-check consistency mode.
	ExpectedVersion uint64
}

type ReadResult struct {
	Hit       bool
	Value     []byte
	Version   uint64
	Freshness Freshness
	// StaleFor is how long the served entry has been stale.
	StaleFor time.Duration
}

func Miss() ReadResult {
	return ReadResult{}
}

func (r ReadResult) IsStale() bool {
	return r.Hit && r.Freshness == Stale
}
