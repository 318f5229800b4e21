package events

import (
	"github.com/Borislavv/go-hotkv/model"
	"sync"
	"sync/atomic"
)

type Subscription struct {
	bus   *Bus
	id    uint64
	kinds uint64

	mu      sync.RWMutex
	closed  bool
	ch      chan model.Event
	dropped atomic.Int64
}

// C is closed when the subscription or the bus is closed.
func (s *Subscription) C() <-chan model.Event { return s.ch }

// Dropped counts events this subscriber missed because its buffer was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

func (s *Subscription) Close() { s.bus.Unsubscribe(s) }

func (s *Subscription) wants(k model.EventKind) bool {
	return s.kinds == 0 || s.kinds&(1<<k) != 0
}

func (s *Subscription) deliver(ev model.Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *Subscription) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
