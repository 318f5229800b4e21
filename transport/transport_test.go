package transport

import (
	"context"
	"errors"
	"fmt"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/Borislavv/go-hotkv/protocol"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"io"
	"log/slog"
	"testing"
	"time"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockHandler struct{ mock.Mock }

func (m *mockHandler) Read(ctx context.Context, req model.ReadRequest) (model.ReadResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.ReadResult), args.Error(1)
}

func (m *mockHandler) Invalidate(ctx context.Context, tenant model.TenantID, key []byte) error {
	return m.Called(ctx, tenant, key).Error(0)
}

func (m *mockHandler) BatchPromote(ctx context.Context, items []model.PromoteItem) []model.PromoteResult {
	return m.Called(ctx, items).Get(0).([]model.PromoteResult)
}

type mockChannel struct{ mock.Mock }

func (m *mockChannel) Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*protocol.Response)
	return resp, args.Error(1)
}

func (m *mockChannel) Close() error { return m.Called().Error(0) }

// TestDispatch routes every command to the handler and maps errors to statuses.
func TestDispatch(t *testing.T) {
	ctx := context.Background()
	h := new(mockHandler)
	hit := model.ReadResult{Hit: true, Value: []byte("v"), Version: 3}
	h.On("Read", mock.Anything, model.ReadRequest{Tenant: 1, Key: []byte("k")}).Return(hit, nil)
	h.On("Invalidate", mock.Anything, model.TenantID(1), []byte("bad")).Return(model.ErrInvalidKey)
	items := []model.PromoteItem{{Tenant: 1, Key: []byte("k"), Value: []byte("v")}}
	results := []model.PromoteResult{{Tenant: 1, Key: []byte("k"), Status: model.Admitted, Version: 1}}
	h.On("BatchPromote", mock.Anything, items).Return(results)

	resp := Dispatch(ctx, h, &protocol.Request{Command: protocol.CmdRead, Tenant: 1, Key: []byte("k")})
	require.Equal(t, protocol.StatusOK, resp.Status)
	require.Equal(t, hit, resp.Read)

	resp = Dispatch(ctx, h, &protocol.Request{Command: protocol.CmdInvalidate, Tenant: 1, Key: []byte("bad")})
	require.Equal(t, protocol.StatusInvalidInput, resp.Status)

	resp = Dispatch(ctx, h, &protocol.Request{Command: protocol.CmdBatchPromote, Items: items})
	require.Equal(t, protocol.StatusOK, resp.Status)
	require.Equal(t, results, resp.Results)

	resp = Dispatch(ctx, h, &protocol.Request{Command: 9})
	require.Equal(t, protocol.StatusUnsupportedCommand, resp.Status)
	h.AssertExpectations(t)
}

// TestStatusOf maps context errors and wrapped statuses.
func TestStatusOf(t *testing.T) {
	require.Equal(t, protocol.StatusOK, statusOf(nil))
	require.Equal(t, protocol.StatusTimeout, statusOf(context.DeadlineExceeded))
	require.Equal(t, protocol.StatusInterrupted, statusOf(context.Canceled))
	require.Equal(t, protocol.StatusTimeout, statusOf(ErrTimeout))
	require.Equal(t, protocol.StatusBusy, statusOf(fmt.Errorf("shard: %w", protocol.StatusBusy)))
	require.Equal(t, protocol.StatusInternalError, statusOf(errors.New("boom")))
}

// TestServeFrame answers undecodable frames with their protocol status.
func TestServeFrame(t *testing.T) {
	h := new(mockHandler)

	resp, err := protocol.DecodeResponse(ServeFrame(context.Background(), h, []byte{0x00, 0x01}))
	require.NoError(t, err)
	require.Equal(t, protocol.StatusProtocolViolation, resp.Status)

	frame, err := protocol.AppendRequest(nil, &protocol.Request{Command: protocol.CmdInvalidate, Tenant: 2, Key: []byte("k")})
	require.NoError(t, err)
	frame[1] = protocol.Version + 1
	resp, err = protocol.DecodeResponse(ServeFrame(context.Background(), h, frame))
	require.NoError(t, err)
	require.Equal(t, protocol.StatusVersionMismatch, resp.Status)
	h.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything, mock.Anything)
}

// TestLocal_Timeout bounds a stalled handler.
func TestLocal_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	h := new(mockHandler)
	h.On("Invalidate", mock.Anything, model.TenantID(1), []byte("k")).
		Run(func(mock.Arguments) { <-release }).
		Return(nil)

	local := NewLocal(h, 20*time.Millisecond)
	started := time.Now()
	_, err := local.Call(context.Background(), &protocol.Request{Command: protocol.CmdInvalidate, Tenant: 1, Key: []byte("k")})
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, protocol.StatusTimeout)
	require.Less(t, time.Since(started), time.Second)

	require.NoError(t, local.Close())
	_, err = local.Call(context.Background(), &protocol.Request{Command: protocol.CmdRead})
	require.ErrorIs(t, err, ErrClosed)
}

// TestClient_FailOpen turns transport failures into misses, dropped invalidations
// and TransportFailure statuses.
func TestClient_FailOpen(t *testing.T) {
	ch := new(mockChannel)
	ch.On("Call", mock.Anything, mock.Anything).Return(nil, ErrTimeout)
	c := NewClient(ch, discard)
	ctx := context.Background()

	res, err := c.Read(ctx, model.ReadRequest{Tenant: 1, Key: []byte("k")})
	require.NoError(t, err)
	require.False(t, res.Hit)

	require.NoError(t, c.Invalidate(ctx, 1, []byte("k")))

	items := []model.PromoteItem{
		{Tenant: 1, Key: []byte("a"), Value: []byte("1")},
		{Tenant: 2, Key: []byte("b"), Value: []byte("2")},
	}
	out := c.BatchPromote(ctx, items)
	require.Len(t, out, 2)
	for i, r := range out {
		require.Equal(t, model.TransportFailure, r.Status)
		require.Equal(t, items[i].Tenant, r.Tenant)
		require.Equal(t, items[i].Key, r.Key)
	}

	reads, invalidations, batches := c.Failures()
	require.Equal(t, int64(1), reads)
	require.Equal(t, int64(1), invalidations)
	require.Equal(t, int64(1), batches)
}

// TestClient_CallerFaults are returned instead of being absorbed.
func TestClient_CallerFaults(t *testing.T) {
	ch := new(mockChannel)
	ch.On("Call", mock.Anything, mock.MatchedBy(func(r *protocol.Request) bool { return r.Command == protocol.CmdRead })).
		Return(&protocol.Response{Command: protocol.CmdRead, Status: protocol.StatusKeyTooLong}, nil)
	ch.On("Call", mock.Anything, mock.MatchedBy(func(r *protocol.Request) bool { return r.Command == protocol.CmdInvalidate })).
		Return(&protocol.Response{Command: protocol.CmdInvalidate, Status: protocol.StatusInternalError}, nil)
	c := NewClient(ch, discard)

	_, err := c.Read(context.Background(), model.ReadRequest{Tenant: 1, Key: []byte("k")})
	require.ErrorIs(t, err, protocol.StatusKeyTooLong)

	require.NoError(t, c.Invalidate(context.Background(), 1, []byte("k")))
	_, invalidations, _ := c.Failures()
	require.Equal(t, int64(1), invalidations)
}

// TestClient_ShortBatchIsAFailure rejects answers that lost items.
func TestClient_ShortBatchIsAFailure(t *testing.T) {
	ch := new(mockChannel)
	ch.On("Call", mock.Anything, mock.Anything).
		Return(&protocol.Response{Command: protocol.CmdBatchPromote}, nil)
	c := NewClient(ch, discard)

	out := c.BatchPromote(context.Background(), []model.PromoteItem{{Tenant: 1, Key: []byte("a")}})
	require.Equal(t, model.TransportFailure, out[0].Status)
}
