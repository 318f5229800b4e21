// Package promoter is a reference promotion manager: it lives next to the
// authoritative store, tracks key hotness, pushes hot keys into the cache and
// keeps the cache honest about writes.
package promoter

import (
	"context"
	"errors"
	"fmt"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/hotness"
	"github.com/Borislavv/go-hotkv/internal/shared/rate"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/Borislavv/go-hotkv/transport"
	"golang.org/x/sync/singleflight"
	"log/slog"
	"sync"
	"sync/atomic"
)

var ErrNotFound = errors.New("key not found in store")

// Store is the authoritative key value store.
type Store interface {
	Get(ctx context.Context, tenant model.TenantID, key []byte) ([]byte, error)
	Put(ctx context.Context, tenant model.TenantID, key, value []byte) error
}

type Manager struct {
	cfg    *config.PromoterCfg
	logger *slog.Logger
	cache  transport.Handler
	store  Store
	sketch hotness.Estimator
	flight singleflight.Group

	mu       sync.Mutex
	pending  map[model.Key]struct{}
	resident map[model.Key]struct{}

	wg sync.WaitGroup

	promoted   atomic.Int64
	refused    atomic.Int64
	failed     atomic.Int64
	refreshes  atomic.Int64
	overflowed atomic.Int64
}

// New builds a manager writing to cache, usually a fail-open transport.Client.
func New(cfg *config.PromoterCfg, logger *slog.Logger, cache transport.Handler, store Store) *Manager {
	cfg = config.AdjustPromoter(cfg)
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		cache:    cache,
		store:    store,
		sketch:   hotness.NewSketch(cfg.Hotness),
		pending:  make(map[model.Key]struct{}),
		resident: make(map[model.Key]struct{}),
	}
}

// Record counts one access and queues the key once it is hot enough and not
// known to be resident.
func (m *Manager) Record(tenant model.TenantID, key []byte) {
	k := model.NewKey(tenant, key)
	m.sketch.Record(k)
	if m.sketch.Estimate(k) < m.cfg.Threshold {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resident[k]; ok {
		return
	}
	if _, ok := m.pending[k]; ok {
		return
	}
	if len(m.pending) >= m.cfg.MaxPending {
		m.overflowed.Add(1)
		return
	}
	m.pending[k] = struct{}{}
}

// ReadThrough serves key from the cache and falls back to the store on a miss.
// A stale hit is served as is.
func (m *Manager) ReadThrough(ctx context.Context, tenant model.TenantID, key []byte) ([]byte, error) {
	res, err := m.cache.Read(ctx, model.ReadRequest{Tenant: tenant, Key: key})
	if err != nil {
		return nil, err
	}
	if res.Hit {
		m.sketch.Record(model.NewKey(tenant, key))
		return res.Value, nil
	}

	m.forget(model.NewKey(tenant, key))
	m.Record(tenant, key)
	return m.store.Get(ctx, tenant, key)
}

// Write stores value and invalidates the cached copy: before returning under
// strict modes, in the background otherwise.
func (m *Manager) Write(ctx context.Context, tenant model.TenantID, key, value []byte) error {
	if err := m.store.Put(ctx, tenant, key, value); err != nil {
		return fmt.Errorf("store put: %w", err)
	}
	m.forget(model.NewKey(tenant, key))

	if m.cfg.SyncInvalidation() {
		return m.cache.Invalidate(ctx, tenant, key)
	}
	key = append([]byte(nil), key...)
	m.wg.Go(func() {
		if err := m.cache.Invalidate(context.WithoutCancel(ctx), tenant, key); err != nil {
			m.logger.Warn("[promoter] async invalidation failed", "tenant", tenant, "err", err)
		}
	})
	return nil
}

// Flush promotes up to one batch of pending candidates.
func (m *Manager) Flush(ctx context.Context) []model.PromoteResult {
	keys := m.takePending()
	if len(keys) == 0 {
		return nil
	}

	items := make([]model.PromoteItem, 0, len(keys))
	for _, k := range keys {
		it, err := m.item(ctx, k)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				m.logger.Warn("[promoter] store read failed", "key", k.String(), "err", err)
			}
			continue
		}
		items = append(items, it)
	}
	if len(items) == 0 {
		return nil
	}

	results := m.cache.BatchPromote(ctx, items)
	for _, r := range results {
		m.settle(r)
	}
	return results
}

func (m *Manager) takePending() []model.Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]model.Key, 0, min(len(m.pending), m.cfg.BatchSize))
	for k := range m.pending {
		if len(keys) == m.cfg.BatchSize {
			break
		}
		keys = append(keys, k)
		delete(m.pending, k)
	}
	return keys
}

func (m *Manager) item(ctx context.Context, k model.Key) (model.PromoteItem, error) {
	key := []byte(k.Name)
	value, err := m.store.Get(ctx, k.Tenant, key)
	if err != nil {
		return model.PromoteItem{}, err
	}
	return model.PromoteItem{
		Tenant:   k.Tenant,
		Key:      key,
		Value:    value,
		TTL:      m.cfg.TTL,
		Estimate: m.sketch.Estimate(k),
	}, nil
}

func (m *Manager) settle(r model.PromoteResult) {
	switch r.Status {
	case model.Admitted:
		m.promoted.Add(1)
		m.mu.Lock()
		m.resident[model.NewKey(r.Tenant, r.Key)] = struct{}{}
		m.mu.Unlock()
	case model.TransportFailure:
		m.failed.Add(1)
	default:
		m.refused.Add(1)
	}
}

func (m *Manager) forget(k model.Key) {
	m.mu.Lock()
	delete(m.resident, k)
	m.mu.Unlock()
}

// HandleEvent keeps the resident set in line with the data plane and answers
// refresh requests. Refreshes run in the background, one per key at a time.
func (m *Manager) HandleEvent(ctx context.Context, ev model.Event) {
	k := model.Key{Tenant: ev.Tenant, Name: ev.Key}
	switch ev.Kind {
	case model.EntryEvicted, model.EntryInvalidated:
		m.forget(k)
	case model.RefreshRequested:
		ch := m.flight.DoChan(k.String(), func() (any, error) {
			return m.refresh(context.WithoutCancel(ctx), k)
		})
		m.wg.Go(func() {
			if r := <-ch; r.Err != nil && !errors.Is(r.Err, ErrNotFound) {
				m.logger.Warn("[promoter] refresh failed", "key", k.String(), "err", r.Err)
			}
		})
	}
}

func (m *Manager) refresh(ctx context.Context, k model.Key) (model.PromoteStatus, error) {
	m.refreshes.Add(1)
	it, err := m.item(ctx, k)
	if err != nil {
		return model.Rejected, err
	}
	res := m.cache.BatchPromote(ctx, []model.PromoteItem{it})
	if len(res) != 1 {
		return model.TransportFailure, fmt.Errorf("refresh of %s: %d results", k, len(res))
	}
	m.settle(res[0])
	return res[0].Status, nil
}

// Run flushes on the configured pace and handles events until ctx is done or
// events is closed, then waits for background work.
func (m *Manager) Run(ctx context.Context, events <-chan model.Event) {
	defer m.wg.Wait()
	m.logger.Info("[promoter] running", "flush_per_sec", m.cfg.FlushPerSec, "threshold", m.cfg.Threshold)
	defer m.logger.Info("[promoter] stopped")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	jitter := rate.NewJitter(ctx, m.cfg.FlushPerSec)

	for {
		select {
		case <-ctx.Done():
			return
		case <-jitter.Chan():
			m.Flush(ctx)
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.HandleEvent(ctx, ev)
		}
	}
}

// Wait blocks until background invalidations and refreshes are done.
func (m *Manager) Wait() { m.wg.Wait() }

// Pending counts queued candidates.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Metrics returns counts of admitted and refused promotions, transport failures,
// refreshes run and candidates lost to a full queue.
func (m *Manager) Metrics() (promoted, refused, failed, refreshes, overflowed int64) {
	return m.promoted.Load(), m.refused.Load(), m.failed.Load(), m.refreshes.Load(), m.overflowed.Load()
}
