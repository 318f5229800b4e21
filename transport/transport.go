// Package transport carries control commands between user-space collaborators
// and the data plane, and publishes data plane events to subscribers.
package transport

import (
	"context"
	"errors"
	"fmt"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/Borislavv/go-hotkv/protocol"
	"time"
)

var (
	ErrTimeout = fmt.Errorf("transport timeout: %w", protocol.StatusTimeout)
	ErrClosed  = errors.New("transport closed")
)

// DefaultTimeout bounds a call when the channel was built without one.
const DefaultTimeout = 50 * time.Millisecond

// Handler executes commands; the data plane implements it.
type Handler interface {
	Read(ctx context.Context, req model.ReadRequest) (model.ReadResult, error)
	Invalidate(ctx context.Context, tenant model.TenantID, key []byte) error
	BatchPromote(ctx context.Context, items []model.PromoteItem) []model.PromoteResult
}

// Channel is the synchronous side of the control plane. Every Call is bounded by
// the channel timeout or the ctx deadline, whichever comes first.
type Channel interface {
	Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
	Close() error
}

// Dispatch runs req against h and builds its response.
func Dispatch(ctx context.Context, h Handler, req *protocol.Request) *protocol.Response {
	resp := &protocol.Response{Command: req.Command}
	switch req.Command {
	case protocol.CmdRead:
		res, err := h.Read(ctx, model.ReadRequest{Tenant: req.Tenant, Key: req.Key, ExpectedVersion: req.ExpectedVersion})
		resp.Status, resp.Read = statusOf(err), res
	case protocol.CmdInvalidate:
		resp.Status = statusOf(h.Invalidate(ctx, req.Tenant, req.Key))
	case protocol.CmdBatchPromote:
		resp.Results = h.BatchPromote(ctx, req.Items)
	default:
		resp.Status = protocol.StatusUnsupportedCommand
	}
	return resp
}

func statusOf(err error) protocol.Status {
	var s protocol.Status
	switch {
	case err == nil:
		return protocol.StatusOK
	case errors.As(err, &s):
		return s
	case errors.Is(err, context.DeadlineExceeded):
		return protocol.StatusTimeout
	case errors.Is(err, context.Canceled):
		return protocol.StatusInterrupted
	case errors.Is(err, model.ErrInvalidKey):
		return protocol.StatusInvalidInput
	default:
		return protocol.StatusOf(err)
	}
}

// ServeFrame decodes a request frame, dispatches it and encodes the answer. An
// undecodable frame is answered with its protocol status.
func ServeFrame(ctx context.Context, h Handler, frame []byte) []byte {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		hdr, _ := protocol.ParseHeader(frame)
		return protocol.AppendResponse(nil, &protocol.Response{Command: hdr.Command, Status: protocol.StatusOf(err)})
	}
	return protocol.AppendResponse(nil, Dispatch(ctx, h, req))
}

// bounded runs call until it returns or ctx is done. call keeps running in the
// background after a timeout and its result is dropped.
func bounded[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
