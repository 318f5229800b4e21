package cachedtime

import (
	"context"
	"sync/atomic"
	"time"
)

const cacheTimeEach = 10 * time.Millisecond

var (
	nowUnix atomic.Int64
	running atomic.Int32
)

func init() {
	nowUnix.Store(time.Now().UnixNano())
}

// RunIfEnabled serves a coarse clock refreshed every 10ms until ctx is done.
// Several callers may run it concurrently; the ticker stops with the last one.
func RunIfEnabled(ctx context.Context, enabled bool) {
	if !enabled {
		return
	}
	nowUnix.Store(time.Now().UnixNano())
	running.Add(1)

	go func() {
		defer running.Add(-1)
		ticker := time.NewTicker(cacheTimeEach)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case tt := <-ticker.C:
				nowUnix.Store(tt.UnixNano())
			}
		}
	}()
}

func Now() time.Time {
	return time.Unix(0, UnixNano())
}

func UnixNano() int64 {
	if running.Load() == 0 {
		return time.Now().UnixNano()
	}
	return nowUnix.Load()
}

func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

// Clock is the time source of the data plane.
type Clock interface {
	UnixNano() int64
}

// Coarse reads the package clock.
type Coarse struct{}

func (Coarse) UnixNano() int64 { return UnixNano() }

// Manual is a clock advanced by hand.
type Manual struct {
	ns atomic.Int64
}

func NewManual(start time.Time) *Manual {
	m := &Manual{}
	m.ns.Store(start.UnixNano())
	return m
}

func (m *Manual) UnixNano() int64 { return m.ns.Load() }

func (m *Manual) Advance(d time.Duration) {
	m.ns.Add(int64(d))
}
