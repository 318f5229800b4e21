// Package hotkv is a hot-key cache for a user-space authoritative store. The
// cache owns all entry memory; callers address entries by tenant and key only.
package hotkv

import (
	"context"
	"fmt"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/events"
	"github.com/Borislavv/go-hotkv/internal/cache"
	"github.com/Borislavv/go-hotkv/internal/evictor"
	"github.com/Borislavv/go-hotkv/internal/lifetimer"
	"github.com/Borislavv/go-hotkv/internal/shared/cachedtime"
	"github.com/Borislavv/go-hotkv/internal/telemetry"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/Borislavv/go-hotkv/transport"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Clock supplies the time entries age by.
type Clock interface {
	UnixNano() int64
}

type Option func(o *cache.Options)

// WithClock replaces the coarse process clock, e.g. by a manual one in tests.
func WithClock(clock Clock) Option {
	return func(o *cache.Options) { o.Clock = clock }
}

type Cache struct {
	logger *slog.Logger
	cancel context.CancelFunc

	data      *cache.Cache
	bus       *events.Bus
	evictor   evictor.Evictor
	lifetimer lifetimer.Lifetimer
	logs      *telemetry.Logs

	busDone   chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

// New validates cfg, builds the data plane and starts its background workers.
// The workers stop on Close or when ctx is done.
func New(ctx context.Context, cfg *config.Cache, logger *slog.Logger, opts ...Option) (*Cache, error) {
	cfg.AdjustConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	cachedtime.RunIfEnabled(ctx, cfg.DB.CacheTimeEnabled)

	bus := events.NewBus(cfg.Events, logger)
	o := cache.Options{Publisher: bus}
	for _, opt := range opts {
		opt(&o)
	}

	data, err := cache.New(ctx, cfg, logger, o)
	if err != nil {
		cancel()
		bus.Close()
		return nil, fmt.Errorf("build data plane: %w", err)
	}

	c := &Cache{
		logger:  logger,
		cancel:  cancel,
		data:    data,
		bus:     bus,
		busDone: make(chan struct{}),
	}
	go func() {
		defer close(c.busDone)
		bus.Run(ctx)
	}()
	c.evictor = evictor.New(ctx, cfg.Eviction, logger, data)
	c.lifetimer = lifetimer.New(ctx, cfg.Lifetime, logger, data)
	c.logs = telemetry.New(ctx, cfg, logger, c, c.evictor, c.lifetimer)
	return c, nil
}

// Read looks key up. A miss is reported by ReadResult.Hit, not by an error.
func (c *Cache) Read(ctx context.Context, req model.ReadRequest) (model.ReadResult, error) {
	if err := c.usable(ctx); err != nil {
		return model.Miss(), err
	}
	return c.data.Read(req)
}

// Invalidate tombstones key, or marks it stale under bounded consistency.
// Invalidating an absent key succeeds.
func (c *Cache) Invalidate(ctx context.Context, tenant model.TenantID, key []byte) error {
	if err := c.usable(ctx); err != nil {
		return err
	}
	return c.data.Invalidate(tenant, key)
}

// BatchPromote applies items in order and reports a status per item. A batch
// that cannot be applied at all reports TransportFailure for every item.
func (c *Cache) BatchPromote(ctx context.Context, items []model.PromoteItem) []model.PromoteResult {
	if err := c.usable(ctx); err != nil {
		out := make([]model.PromoteResult, len(items))
		for i, it := range items {
			out[i] = model.PromoteResult{Tenant: it.Tenant, Key: it.Key, Status: model.TransportFailure}
		}
		return out
	}
	return c.data.BatchPromote(items)
}

func (c *Cache) usable(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Reclaim evicts the tenant's policy victims until bytes and entries are freed
// or the tenant holds nothing more.
func (c *Cache) Reclaim(tenant model.TenantID, bytes int64, entries int) (freed int64, evicted int) {
	return c.data.Reclaim(tenant, bytes, entries)
}

// ForceEviction asks the background evictor for an immediate pass.
func (c *Cache) ForceEviction(timeout time.Duration) error {
	return c.evictor.ForceCall(timeout)
}

// Subscribe returns a subscription to events of the given kinds, all kinds when none is given.
func (c *Cache) Subscribe(buffer int, kinds ...model.EventKind) *events.Subscription {
	return c.bus.Subscribe(buffer, kinds...)
}

func (c *Cache) Unsubscribe(sub *events.Subscription) {
	c.bus.Unsubscribe(sub)
}

func (c *Cache) Stats() model.Stats {
	s := c.data.Stats()
	s.EventsPublished = c.bus.Published()
	s.EventsDropped = c.bus.Dropped()
	return s
}

func (c *Cache) TenantUsage(tenant model.TenantID) model.TenantStats {
	return c.data.TenantUsage(tenant)
}

// Workers returns the counters of the background evictor and sweeper.
func (c *Cache) Workers() (evictor.Evictor, lifetimer.Lifetimer) {
	return c.evictor, c.lifetimer
}

// Close stops the background workers and closes every subscription. Calls
// after the first are no-ops.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.logs.Close()
		_ = c.evictor.Close()
		_ = c.lifetimer.Close()
		c.bus.Close()
		c.cancel()
		<-c.busDone
		c.logger.Info("[hotkv] closed")
	})
	return nil
}

var _ transport.Handler = (*Cache)(nil)
