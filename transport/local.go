package transport

import (
	"context"
	"github.com/Borislavv/go-hotkv/protocol"
	"sync/atomic"
	"time"
)

// Local calls an in-process Handler. Frames are not encoded, but calls are still
// bounded by the timeout so a stalled handler cannot block the caller.
type Local struct {
	h       Handler
	timeout time.Duration
	closed  atomic.Bool
}

func NewLocal(h Handler, timeout time.Duration) *Local {
	return &Local{h: h, timeout: timeout}
}

func (l *Local) Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()
	return bounded(ctx, func() (*protocol.Response, error) {
		return Dispatch(ctx, l.h, req), nil
	})
}

func (l *Local) Close() error {
	l.closed.Store(true)
	return nil
}
