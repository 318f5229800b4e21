package transport

import (
	"context"
	"fmt"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/go-zeromq/zmq4"
	"github.com/goccy/go-json"
	"log/slog"
	"sync/atomic"
)

// Publisher forwards data plane events to a PUB socket. Each message has two
// frames: the kind name as topic and the JSON encoded event.
type Publisher struct {
	endpoint string
	logger   *slog.Logger
	sock     zmq4.Socket
	cancel   context.CancelFunc

	sent   atomic.Int64
	failed atomic.Int64
}

func NewPublisher(endpoint string, logger *slog.Logger) *Publisher {
	return &Publisher{endpoint: endpoint, logger: logger}
}

func (p *Publisher) Listen(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	p.sock = zmq4.NewPub(ctx)
	if err := p.sock.Listen(p.endpoint); err != nil {
		p.cancel()
		return fmt.Errorf("listen %s: %w", p.endpoint, err)
	}
	p.logger.Info("[transport] events publisher listening", "endpoint", p.Addr())
	return nil
}

func (p *Publisher) Addr() string {
	if p.sock == nil || p.sock.Addr() == nil {
		return p.endpoint
	}
	return "tcp://" + p.sock.Addr().String()
}

// Run sends events from src until it is closed or ctx is done.
func (p *Publisher) Run(ctx context.Context, src <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src:
			if !ok {
				return
			}
			if err := p.Publish(ev); err != nil {
				p.failed.Add(1)
				p.logger.Debug("[transport] event not published", "kind", ev.Kind, "err", err)
			}
		}
	}
}

func (p *Publisher) Publish(ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err = p.sock.Send(zmq4.NewMsgFrom([]byte(ev.Kind.String()), payload)); err != nil {
		return err
	}
	p.sent.Add(1)
	return nil
}

// Metrics returns published and failed event counts.
func (p *Publisher) Metrics() (sent, failed int64) {
	return p.sent.Load(), p.failed.Load()
}

func (p *Publisher) Close() error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return p.sock.Close()
}

// Subscriber receives published events of the chosen kinds, of every kind when
// none is given. Events that do not fit into the buffer are dropped and counted.
type Subscriber struct {
	logger *slog.Logger
	sock   zmq4.Socket
	cancel context.CancelFunc
	ch     chan model.Event
	done   chan struct{}

	received  atomic.Int64
	dropped   atomic.Int64
	malformed atomic.Int64
}

func NewSubscriber(ctx context.Context, endpoint string, buffer int, logger *slog.Logger, kinds ...model.EventKind) (*Subscriber, error) {
	if buffer <= 0 {
		buffer = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	sock := zmq4.NewSub(ctx)
	if err := sock.Dial(endpoint); err != nil {
		cancel()
		_ = sock.Close()
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	topics := []string{""}
	if len(kinds) > 0 {
		topics = topics[:0]
		for _, k := range kinds {
			topics = append(topics, k.String())
		}
	}
	for _, topic := range topics {
		if err := sock.SetOption(zmq4.OptionSubscribe, topic); err != nil {
			cancel()
			_ = sock.Close()
			return nil, fmt.Errorf("subscribe %q: %w", topic, err)
		}
	}

	s := &Subscriber{
		logger: logger,
		sock:   sock,
		cancel: cancel,
		ch:     make(chan model.Event, buffer),
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

// C is closed once the subscriber stops.
func (s *Subscriber) C() <-chan model.Event { return s.ch }

func (s *Subscriber) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)

	for {
		msg, err := s.sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("[transport] events recv failed", "err", err)
			continue
		}
		if len(msg.Frames) != 2 {
			s.malformed.Add(1)
			continue
		}
		var ev model.Event
		if err = json.Unmarshal(msg.Frames[1], &ev); err != nil {
			s.malformed.Add(1)
			continue
		}
		s.received.Add(1)
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

// Metrics returns received, dropped and undecodable event counts.
func (s *Subscriber) Metrics() (received, dropped, malformed int64) {
	return s.received.Load(), s.dropped.Load(), s.malformed.Load()
}

func (s *Subscriber) Close() error {
	s.cancel()
	err := s.sock.Close()
	<-s.done
	return err
}
