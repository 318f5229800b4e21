package evictor

import "sync/atomic"

type evictorCounters struct {
	scans        atomic.Int64 // watermark checks
	scanHits     atomic.Int64 // checks that found memory above the watermark
	evictedItems atomic.Int64
	evictedBytes atomic.Int64
}

func newEvictorCounters() *evictorCounters {
	return &evictorCounters{}
}

func (c *evictorCounters) snapshot() (scans, hits, evictedItems, evictedBytes int64) {
	return c.scans.Load(), c.scanHits.Load(), c.evictedItems.Load(), c.evictedBytes.Load()
}
