package transport

import (
	"context"
	"errors"
	"fmt"
	"github.com/Borislavv/go-hotkv/protocol"
	"github.com/go-zeromq/zmq4"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ZMQChannel is a REQ socket client. A REQ socket that missed a reply cannot send
// again, so after any failure the socket is dropped and dialled anew on the next
// call.
type ZMQChannel struct {
	endpoint string
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	sock   zmq4.Socket
	cancel context.CancelFunc
	closed bool
	resets int64
}

func NewZMQChannel(endpoint string, timeout time.Duration, logger *slog.Logger) *ZMQChannel {
	return &ZMQChannel{endpoint: endpoint, timeout: timeout, logger: logger}
}

func (c *ZMQChannel) Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	frame, err := protocol.AppendRequest(nil, req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	sock, err := c.socket()
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	reply, err := bounded(ctx, func() ([]byte, error) {
		if err := sock.Send(zmq4.NewMsg(frame)); err != nil {
			return nil, fmt.Errorf("send: %w", err)
		}
		msg, err := sock.Recv()
		if err != nil {
			return nil, fmt.Errorf("recv: %w", err)
		}
		return msg.Bytes(), nil
	})
	if err != nil {
		c.reset(err)
		return nil, err
	}

	resp, err := protocol.DecodeResponse(reply)
	if err != nil {
		c.reset(err)
		return nil, err
	}
	if resp.Command != req.Command {
		c.reset(protocol.ErrMalformed)
		return nil, fmt.Errorf("%w: %s answered with %s", protocol.ErrMalformed, req.Command, resp.Command)
	}
	return resp, nil
}

// socket returns the live socket, dialling one if needed. c.mu must be held.
func (c *ZMQChannel) socket() (zmq4.Socket, error) {
	if c.sock != nil {
		return c.sock, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewReq(ctx)
	if err := sock.Dial(c.endpoint); err != nil {
		cancel()
		_ = sock.Close()
		return nil, fmt.Errorf("dial %s: %w", c.endpoint, err)
	}
	c.sock, c.cancel = sock, cancel
	return sock, nil
}

// reset drops the socket after a failed exchange. c.mu must be held.
func (c *ZMQChannel) reset(cause error) {
	if c.sock == nil {
		return
	}
	c.resets++
	c.logger.Warn("[transport] control socket reset", "endpoint", c.endpoint, "err", cause)
	c.cancel()
	_ = c.sock.Close()
	c.sock, c.cancel = nil, nil
}

// Resets counts sockets dropped after failures.
func (c *ZMQChannel) Resets() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

func (c *ZMQChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.sock == nil {
		return nil
	}
	c.cancel()
	err := c.sock.Close()
	c.sock, c.cancel = nil, nil
	return err
}

// Server answers control commands on a REP socket.
type Server struct {
	endpoint string
	h        Handler
	timeout  time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sock   zmq4.Socket

	// started is claimed by the first of Serve and Close; whoever claims it closes done.
	started atomic.Bool
	done    chan struct{}
}

func NewServer(endpoint string, h Handler, timeout time.Duration, logger *slog.Logger) *Server {
	return &Server{endpoint: endpoint, h: h, timeout: timeout, logger: logger, done: make(chan struct{})}
}

// Listen binds the socket. The bound address is available from Addr afterwards.
func (s *Server) Listen(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.sock = zmq4.NewRep(s.ctx)
	if err := s.sock.Listen(s.endpoint); err != nil {
		s.cancel()
		return fmt.Errorf("listen %s: %w", s.endpoint, err)
	}
	s.logger.Info("[transport] control channel listening", "endpoint", s.Addr())
	return nil
}

// Addr returns the bound endpoint, e.g. with the port chosen by the system.
func (s *Server) Addr() string {
	if s.sock == nil || s.sock.Addr() == nil {
		return s.endpoint
	}
	return "tcp://" + s.sock.Addr().String()
}

// Serve answers requests until ctx is done or Close is called. Listen must have succeeded.
func (s *Server) Serve() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrClosed
	}
	defer close(s.done)
	defer s.logger.Info("[transport] control channel stopped", "endpoint", s.endpoint)

	for {
		msg, err := s.sock.Recv()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			s.logger.Warn("[transport] recv failed", "err", err)
			continue
		}

		ctx, cancel := withTimeout(s.ctx, s.timeout)
		reply := ServeFrame(ctx, s.h, msg.Bytes())
		cancel()

		if err = s.sock.Send(zmq4.NewMsg(reply)); err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("[transport] send failed", "err", err)
		}
	}
}

func (s *Server) Close() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	err := s.sock.Close()
	if s.started.CompareAndSwap(false, true) {
		close(s.done)
	}
	<-s.done
	return err
}
