package lifetimer

// NoOpLifetimer stands in when nothing in the data plane ages.
type NoOpLifetimer struct{}

func (NoOpLifetimer) Metrics() (steps, scanned, expired, purged, refreshed int64) {
	return 0, 0, 0, 0, 0
}

func (NoOpLifetimer) Close() error { return nil }
