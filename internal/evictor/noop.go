package evictor

import "time"

// NoOpEvictor stands in when eviction is not configured: memory is then bounded
// by synchronous evictions at the hard cap only.
type NoOpEvictor struct{}

func (NoOpEvictor) ForceCall(time.Duration) error { return nil }

func (NoOpEvictor) Metrics() (scans, hits, evictedItems, evictedBytes int64) { return 0, 0, 0, 0 }

func (NoOpEvictor) Close() error { return nil }
