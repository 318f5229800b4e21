// Package eviction holds the victim selection strategies of a single tenant domain.
//
// A Policy only tracks keys and their costs; it never touches the data. The data plane
// serializes all calls into one instance, asks it for victims and removes them itself,
// then confirms each removal with OnRemove.
package eviction

import (
	"container/list"
	"fmt"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/model"
)

type Policy interface {
	Name() string
	// OnInsert registers a resident key; inserting a known key behaves like OnUpdate.
	OnInsert(k model.Key, cost int64)
	// OnUpdate records a new value for a resident key.
	OnUpdate(k model.Key, cost int64)
	OnAccess(k model.Key)
	// OnRemove forgets a key; evicted tells a policy-driven eviction from any other removal.
	OnRemove(k model.Key, evicted bool)
	// Victims returns resident keys in eviction order: the shortest prefix whose costs
	// reach bytes and whose length reaches entries, or every key if the domain is smaller.
	// It must not change the policy state and must be deterministic.
	Victims(bytes int64, entries int) []model.Key
	Len() int
	Bytes() int64
}

func New(cfg *config.EvictionCfg) (Policy, error) {
	kind := config.EvictionLRU
	if cfg.Enabled() && cfg.Policy != "" {
		kind = cfg.Policy
	}
	switch kind {
	case config.EvictionLRU:
		return NewLRU(), nil
	case config.EvictionFIFO:
		return NewFIFO(), nil
	case config.EvictionLFU:
		return NewLFU(), nil
	case config.EvictionSLRU:
		return NewSLRU(cfg.ProtectedRatio), nil
	case config.EvictionTwoQ:
		return NewTwoQ(cfg.TwoQInRatio, cfg.TwoQGhostEntries), nil
	default:
		return nil, fmt.Errorf("unknown eviction policy %q", kind)
	}
}

type item struct {
	key  model.Key
	cost int64
}

// segment is an MRU-at-front list of items with byte accounting.
type segment struct {
	l     *list.List
	bytes int64
}

func newSegment() *segment {
	return &segment{l: list.New()}
}

func (s *segment) pushFront(it *item) *list.Element {
	s.bytes += it.cost
	return s.l.PushFront(it)
}

func (s *segment) remove(el *list.Element) *item {
	it := s.l.Remove(el).(*item)
	s.bytes -= it.cost
	return it
}

func (s *segment) resize(el *list.Element, cost int64) {
	it := el.Value.(*item)
	s.bytes += cost - it.cost
	it.cost = cost
}

// collector accumulates victims until both targets are met.
type collector struct {
	bytes   int64
	entries int
	out     []model.Key
	got     int64
}

func newCollector(bytes int64, entries int) *collector {
	return &collector{bytes: bytes, entries: entries}
}

func (c *collector) done() bool {
	return c.got >= c.bytes && len(c.out) >= c.entries
}

func (c *collector) add(it *item) {
	c.out = append(c.out, it.key)
	c.got += it.cost
}

// drainBack takes items from the LRU end of s until the collector is satisfied.
func (c *collector) drainBack(s *segment, skip func(*item) bool) {
	for el := s.l.Back(); el != nil && !c.done(); el = el.Prev() {
		it := el.Value.(*item)
		if skip != nil && skip(it) {
			continue
		}
		c.add(it)
	}
}
