// Package events multicasts data plane notifications to subscribers.
//
// Producers hand events to a bounded queue without blocking; one dispatcher
// goroutine fans them out. A subscriber whose channel is full loses the event
// and the loss is counted, so a slow consumer never slows the cache down.
package events

import (
	"context"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/internal/shared/cachedtime"
	"github.com/Borislavv/go-hotkv/model"
	"log/slog"
	"sync"
	"sync/atomic"
)

type Bus struct {
	logger    *slog.Logger
	in        chan model.Event
	subBuffer int

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64

	published atomic.Int64
	dropped   atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
	running   atomic.Bool
	stopped   chan struct{}
}

func NewBus(cfg config.EventsCfg, logger *slog.Logger) *Bus {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 1
	}
	return &Bus{
		logger:    logger,
		in:        make(chan model.Event, cfg.Buffer),
		subBuffer: cfg.SubscriberBuffer,
		subs:      make(map[uint64]*Subscription),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Publish enqueues ev and reports whether it was accepted.
func (b *Bus) Publish(ev model.Event) bool {
	if b.closed.Load() {
		b.dropped.Add(1)
		return false
	}
	if ev.At == 0 {
		ev.At = cachedtime.UnixNano()
	}
	select {
	case b.in <- ev:
		b.published.Add(1)
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Subscribe registers a receiver of the given kinds, of every kind when none is given.
// A non-positive buffer selects the configured default.
func (b *Bus) Subscribe(buffer int, kinds ...model.EventKind) *Subscription {
	if buffer <= 0 {
		buffer = b.subBuffer
	}
	sub := &Subscription{bus: b, ch: make(chan model.Event, buffer)}
	for _, k := range kinds {
		sub.kinds |= 1 << k
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		sub.shut()
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe detaches sub and closes its channel. Repeated calls are no-ops.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()
	sub.shut()
}

// Run dispatches events until ctx is done or the bus is closed, then closes
// every subscription. It must be called at most once.
func (b *Bus) Run(ctx context.Context) {
	b.running.Store(true)
	defer close(b.stopped)
	defer b.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case ev := <-b.in:
			b.dispatch(ev)
		}
	}
}

func (b *Bus) dispatch(ev model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.wants(ev.Kind) {
			continue
		}
		if !sub.deliver(ev) {
			b.dropped.Add(1)
		}
	}
}

func (b *Bus) shutdown() {
	b.closed.Store(true)
	for drained := false; !drained; {
		select {
		case ev := <-b.in:
			b.dispatch(ev)
		default:
			drained = true
		}
	}

	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*Subscription)
	b.mu.Unlock()
	for _, sub := range subs {
		sub.shut()
	}
	b.logger.Info("[events] bus stopped", "published", b.published.Load(), "dropped", b.dropped.Load())
}

// Close stops the dispatcher and waits for it. Safe to call more than once.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.done)
		if b.running.Load() {
			<-b.stopped
		} else {
			b.shutdown()
		}
	})
}

// Published counts accepted events.
func (b *Bus) Published() int64 { return b.published.Load() }

// Dropped counts events lost either on a full queue or on a full subscriber.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
