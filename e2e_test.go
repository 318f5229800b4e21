package hotkv

import (
	"context"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/metrics/prom"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/Borislavv/go-hotkv/promoter"
	"github.com/Borislavv/go-hotkv/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type mapStore struct {
	mu    sync.Mutex
	data  map[model.Key][]byte
	reads atomic.Int64
}

func (s *mapStore) Get(_ context.Context, tenant model.TenantID, key []byte) ([]byte, error) {
	s.reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[model.NewKey(tenant, key)]
	if !ok {
		return nil, promoter.ErrNotFound
	}
	return v, nil
}

func (s *mapStore) Put(_ context.Context, tenant model.TenantID, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[model.NewKey(tenant, key)] = value
	return nil
}

// TestControlChannel_OverZMQ runs the tenant quota scenario through the REQ/REP channel.
func TestControlChannel_OverZMQ(t *testing.T) {
	c, _ := newTestCache(t, 100, withQuotas)
	reg := prometheus.NewRegistry()
	metrics := prom.New(reg, "hotkv", c, nil)

	srv := transport.NewServer("tcp://127.0.0.1:0", metrics.Instrument(c), time.Second, discard)
	require.NoError(t, srv.Listen(context.Background()))
	go func() { _ = srv.Serve() }()
	defer func() { _ = srv.Close() }()

	client := transport.NewClient(transport.NewZMQChannel(srv.Addr(), time.Second, discard), discard)
	defer func() { _ = client.Close() }()
	ctx := context.Background()

	res := client.BatchPromote(ctx, []model.PromoteItem{item(1, "k1", 50), item(1, "k2", 20), item(2, "k1", 30)})
	require.Equal(t, []model.PromoteStatus{model.Admitted, model.CapacityExceeded, model.Admitted},
		[]model.PromoteStatus{res[0].Status, res[1].Status, res[2].Status})

	got, err := client.Read(ctx, model.ReadRequest{Tenant: 1, Key: []byte("k1")})
	require.NoError(t, err)
	require.True(t, got.Hit)
	require.Equal(t, item(1, "k1", 50).Value, got.Value)

	require.NoError(t, client.Invalidate(ctx, 1, []byte("k1")))
	got, err = client.Read(ctx, model.ReadRequest{Tenant: 1, Key: []byte("k1")})
	require.NoError(t, err)
	require.False(t, got.Hit)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "hotkv_command_duration_seconds")
	require.Contains(t, names, "hotkv_hits_total")
}

// TestEvents_OverZMQ forwards bus events to remote subscribers.
func TestEvents_OverZMQ(t *testing.T) {
	c, _ := newTestCache(t, 1<<20, func(cfg *config.Cache) { cfg.Consistency.TombstoneHold = -1 })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := transport.NewPublisher("tcp://127.0.0.1:0", discard)
	require.NoError(t, pub.Listen(ctx))
	defer func() { _ = pub.Close() }()
	local := c.Subscribe(64)
	go pub.Run(ctx, local.C())

	remote, err := transport.NewSubscriber(ctx, pub.Addr(), 64, discard, model.EntryInvalidated)
	require.NoError(t, err)
	defer func() { _ = remote.Close() }()

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-tick.C:
			c.BatchPromote(ctx, []model.PromoteItem{item(3, "k", 8)})
			require.NoError(t, c.Invalidate(ctx, 3, []byte("k")))
			continue
		case ev := <-remote.C():
			require.Equal(t, model.EntryInvalidated, ev.Kind)
			require.Equal(t, model.TenantID(3), ev.Tenant)
			require.Equal(t, "k", ev.Key)
		case <-deadline:
			t.Fatal("no event forwarded")
		}
		break
	}
}

// TestPromoter_ReadThrough promotes a key read often enough and then serves it
// from the cache.
func TestPromoter_ReadThrough(t *testing.T) {
	c, _ := newTestCache(t, 1<<20, nil)
	store := &mapStore{data: map[model.Key][]byte{model.NewKey(1, []byte("user:1")): []byte("alice")}}
	client := transport.NewClient(transport.NewLocal(c, time.Second), discard)
	m := promoter.New(&config.PromoterCfg{Threshold: 3}, discard, client, store)
	ctx := context.Background()

	for range 3 {
		v, err := m.ReadThrough(ctx, 1, []byte("user:1"))
		require.NoError(t, err)
		require.Equal(t, []byte("alice"), v)
	}
	require.Equal(t, int64(3), store.reads.Load())

	res := m.Flush(ctx)
	require.Len(t, res, 1)
	require.Equal(t, model.Admitted, res[0].Status)

	v, err := m.ReadThrough(ctx, 1, []byte("user:1"))
	require.NoError(t, err)
	require.Equal(t, []byte("alice"), v)
	require.Equal(t, int64(4), store.reads.Load())

	require.NoError(t, m.Write(ctx, 1, []byte("user:1"), []byte("bob")))
	v, err = m.ReadThrough(ctx, 1, []byte("user:1"))
	require.NoError(t, err)
	require.Equal(t, []byte("bob"), v)
}
