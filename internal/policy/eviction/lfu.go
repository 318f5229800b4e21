package eviction

import (
	"container/list"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/model"
)

type freqNode struct {
	freq       uint64
	items      *segment
	prev, next *freqNode
}

type lfuEntry struct {
	node *freqNode
	el   *list.Element
}

// LFU evicts the least frequently used key; ties go to the key that reached its
// frequency first. Frequencies live in an ascending doubly linked list of buckets,
// so every operation is O(1).
type LFU struct {
	head  *freqNode
	index map[model.Key]*lfuEntry
	bytes int64
}

func NewLFU() *LFU {
	return &LFU{index: make(map[model.Key]*lfuEntry)}
}

func (p *LFU) Name() string { return string(config.EvictionLFU) }

// bucketAfter returns the node of frequency freq placed right after prev (nil for head).
func (p *LFU) bucketAfter(prev *freqNode, freq uint64) *freqNode {
	next := p.head
	if prev != nil {
		next = prev.next
	}
	if next != nil && next.freq == freq {
		return next
	}
	n := &freqNode{freq: freq, items: newSegment(), prev: prev, next: next}
	if prev != nil {
		prev.next = n
	} else {
		p.head = n
	}
	if next != nil {
		next.prev = n
	}
	return n
}

func (p *LFU) unlinkIfEmpty(n *freqNode) {
	if n.items.l.Len() > 0 {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		p.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
}

func (p *LFU) OnInsert(k model.Key, cost int64) {
	if _, ok := p.index[k]; ok {
		p.OnUpdate(k, cost)
		return
	}
	n := p.bucketAfter(nil, 1)
	p.index[k] = &lfuEntry{node: n, el: n.items.pushFront(&item{key: k, cost: cost})}
	p.bytes += cost
}

func (p *LFU) OnUpdate(k model.Key, cost int64) {
	e, ok := p.index[k]
	if !ok {
		p.OnInsert(k, cost)
		return
	}
	p.bytes += cost - e.el.Value.(*item).cost
	e.node.items.resize(e.el, cost)
	p.OnAccess(k)
}

func (p *LFU) OnAccess(k model.Key) {
	e, ok := p.index[k]
	if !ok {
		return
	}
	cur := e.node
	next := p.bucketAfter(cur, cur.freq+1)
	it := cur.items.remove(e.el)
	e.node, e.el = next, next.items.pushFront(it)
	p.unlinkIfEmpty(cur)
}

func (p *LFU) OnRemove(k model.Key, _ bool) {
	e, ok := p.index[k]
	if !ok {
		return
	}
	it := e.node.items.remove(e.el)
	p.bytes -= it.cost
	p.unlinkIfEmpty(e.node)
	delete(p.index, k)
}

func (p *LFU) Victims(bytes int64, entries int) []model.Key {
	c := newCollector(bytes, entries)
	for n := p.head; n != nil && !c.done(); n = n.next {
		c.drainBack(n.items, nil)
	}
	return c.out
}

func (p *LFU) Len() int { return len(p.index) }

func (p *LFU) Bytes() int64 { return p.bytes }
