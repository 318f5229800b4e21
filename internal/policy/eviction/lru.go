package eviction

import (
	"container/list"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/model"
)

// LRU evicts the least recently used key first.
type LRU struct {
	seg   *segment
	index map[model.Key]*list.Element
	// touch is false for FIFO, which ignores accesses and updates.
	touch bool
	name  string
}

func NewLRU() *LRU {
	return &LRU{seg: newSegment(), index: make(map[model.Key]*list.Element), touch: true, name: string(config.EvictionLRU)}
}

// NewFIFO evicts in insertion order. Accesses and value updates do not reorder keys.
func NewFIFO() *LRU {
	return &LRU{seg: newSegment(), index: make(map[model.Key]*list.Element), name: string(config.EvictionFIFO)}
}

func (p *LRU) Name() string { return p.name }

func (p *LRU) OnInsert(k model.Key, cost int64) {
	if el, ok := p.index[k]; ok {
		p.seg.resize(el, cost)
		if p.touch {
			p.seg.l.MoveToFront(el)
		}
		return
	}
	p.index[k] = p.seg.pushFront(&item{key: k, cost: cost})
}

func (p *LRU) OnUpdate(k model.Key, cost int64) { p.OnInsert(k, cost) }

func (p *LRU) OnAccess(k model.Key) {
	if !p.touch {
		return
	}
	if el, ok := p.index[k]; ok {
		p.seg.l.MoveToFront(el)
	}
}

func (p *LRU) OnRemove(k model.Key, _ bool) {
	if el, ok := p.index[k]; ok {
		p.seg.remove(el)
		delete(p.index, k)
	}
}

func (p *LRU) Victims(bytes int64, entries int) []model.Key {
	c := newCollector(bytes, entries)
	c.drainBack(p.seg, nil)
	return c.out
}

func (p *LRU) Len() int { return len(p.index) }

func (p *LRU) Bytes() int64 { return p.seg.bytes }
