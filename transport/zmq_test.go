package transport

import (
	"context"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/Borislavv/go-hotkv/protocol"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func startServer(t *testing.T, h Handler) *Server {
	t.Helper()
	srv := NewServer("tcp://127.0.0.1:0", h, time.Second, discard)
	require.NoError(t, srv.Listen(context.Background()))
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// TestZMQ_RoundTrip sends every command through a REQ/REP pair.
func TestZMQ_RoundTrip(t *testing.T) {
	h := new(mockHandler)
	hit := model.ReadResult{Hit: true, Value: []byte("value"), Version: 7, Freshness: model.Fresh}
	h.On("Read", mock.Anything, model.ReadRequest{Tenant: 3, Key: []byte("k"), ExpectedVersion: 7}).Return(hit, nil)
	h.On("Invalidate", mock.Anything, model.TenantID(3), []byte("k")).Return(nil)
	h.On("BatchPromote", mock.Anything, mock.Anything).Return([]model.PromoteResult{
		{Status: model.Admitted, Version: 8},
		{Status: model.CapacityExceeded},
	})
	srv := startServer(t, h)

	client := NewClient(NewZMQChannel(srv.Addr(), time.Second, discard), discard)
	defer func() { require.NoError(t, client.Close()) }()
	ctx := context.Background()

	res, err := client.Read(ctx, model.ReadRequest{Tenant: 3, Key: []byte("k"), ExpectedVersion: 7})
	require.NoError(t, err)
	require.Equal(t, hit.Value, res.Value)
	require.Equal(t, hit.Version, res.Version)
	require.True(t, res.Hit)

	require.NoError(t, client.Invalidate(ctx, 3, []byte("k")))

	out := client.BatchPromote(ctx, []model.PromoteItem{
		{Tenant: 3, Key: []byte("a"), Value: []byte("1")},
		{Tenant: 4, Key: []byte("b"), Value: []byte("2")},
	})
	require.Len(t, out, 2)
	require.Equal(t, model.Admitted, out[0].Status)
	require.Equal(t, uint64(8), out[0].Version)
	require.Equal(t, []byte("a"), out[0].Key)
	require.Equal(t, model.CapacityExceeded, out[1].Status)
	require.Equal(t, model.TenantID(4), out[1].Tenant)

	reads, invalidations, batches := client.Failures()
	require.Zero(t, reads+invalidations+batches)
	h.AssertExpectations(t)
}

// TestZMQ_TimeoutResetsSocket drops a socket that missed its reply and recovers
// on the next call.
func TestZMQ_TimeoutResetsSocket(t *testing.T) {
	release := make(chan struct{})
	h := new(mockHandler)
	h.On("Invalidate", mock.Anything, model.TenantID(1), []byte("slow")).
		Run(func(mock.Arguments) { <-release }).
		Return(nil).Once()
	h.On("Invalidate", mock.Anything, model.TenantID(1), []byte("fast")).Return(nil)
	srv := startServer(t, h)

	ch := NewZMQChannel(srv.Addr(), time.Second, discard)
	defer func() { _ = ch.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	_, err := ch.Call(ctx, &protocol.Request{Command: protocol.CmdInvalidate, Tenant: 1, Key: []byte("slow")})
	cancel()
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, int64(1), ch.Resets())

	close(release)
	resp, err := ch.Call(context.Background(), &protocol.Request{Command: protocol.CmdInvalidate, Tenant: 1, Key: []byte("fast")})
	require.NoError(t, err)
	require.Equal(t, protocol.StatusOK, resp.Status)
}

// TestZMQ_ClosedChannel refuses calls after Close.
func TestZMQ_ClosedChannel(t *testing.T) {
	ch := NewZMQChannel("tcp://127.0.0.1:1", time.Second, discard)
	require.NoError(t, ch.Close())
	_, err := ch.Call(context.Background(), &protocol.Request{Command: protocol.CmdRead, Key: []byte("k")})
	require.ErrorIs(t, err, ErrClosed)
}

// TestEvents_PublishSubscribe delivers only the subscribed kinds.
func TestEvents_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := NewPublisher("tcp://127.0.0.1:0", discard)
	require.NoError(t, pub.Listen(ctx))
	defer func() { _ = pub.Close() }()

	sub, err := NewSubscriber(ctx, pub.Addr(), 16, discard, model.EntryEvicted)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	src := make(chan model.Event)
	go pub.Run(ctx, src)

	evicted := model.Event{Kind: model.EntryEvicted, Tenant: 2, Key: "k", Version: 5, Reason: model.ReasonPressure}
	invalidated := model.Event{Kind: model.EntryInvalidated, Tenant: 2, Key: "k"}

	// a subscription only takes effect once the connection is up, so keep publishing.
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-tick.C:
			src <- invalidated
			src <- evicted
			continue
		case got := <-sub.C():
			require.Equal(t, evicted, got)
		case <-deadline:
			t.Fatal("no event received")
		}
		break
	}

	sent, _ := pub.Metrics()
	require.Positive(t, sent)
	received, _, malformed := sub.Metrics()
	require.Positive(t, received)
	require.Zero(t, malformed)
}

// TestZMQ_ServerCloseWithoutServe returns from Close when Serve never ran.
func TestZMQ_ServerCloseWithoutServe(t *testing.T) {
	srv := NewServer("tcp://127.0.0.1:0", new(mockHandler), time.Second, discard)
	require.NoError(t, srv.Listen(context.Background()))

	closed := make(chan error, 1)
	go func() { closed <- srv.Close() }()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked")
	}
	require.ErrorIs(t, srv.Serve(), ErrClosed)
}
