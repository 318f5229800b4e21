package eviction

import (
	"container/list"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/model"
)

type twoQEntry struct {
	el   *list.Element
	main bool
}

// TwoQ admits new keys into a FIFO queue (A1in) and moves them to an LRU main queue (Am)
// when they are accessed again. Keys evicted from A1in are remembered in a bounded ghost
// history (A1out); a ghost that is inserted again goes straight to Am.
type TwoQ struct {
	in       *segment
	main     *segment
	index    map[model.Key]*twoQEntry
	inRatio  float64
	ghost    *list.List
	ghostIdx map[model.Key]*list.Element
	ghostCap int
}

func NewTwoQ(inRatio float64, ghostCap int) *TwoQ {
	if inRatio <= 0 || inRatio >= 1 {
		inRatio = 0.25
	}
	if ghostCap < 1 {
		ghostCap = 1
	}
	return &TwoQ{
		in:       newSegment(),
		main:     newSegment(),
		index:    make(map[model.Key]*twoQEntry),
		inRatio:  inRatio,
		ghost:    list.New(),
		ghostIdx: make(map[model.Key]*list.Element),
		ghostCap: ghostCap,
	}
}

func (p *TwoQ) Name() string { return string(config.EvictionTwoQ) }

func (p *TwoQ) OnInsert(k model.Key, cost int64) {
	if _, ok := p.index[k]; ok {
		p.OnUpdate(k, cost)
		return
	}
	it := &item{key: k, cost: cost}
	if g, ok := p.ghostIdx[k]; ok {
		p.ghost.Remove(g)
		delete(p.ghostIdx, k)
		p.index[k] = &twoQEntry{el: p.main.pushFront(it), main: true}
		return
	}
	p.index[k] = &twoQEntry{el: p.in.pushFront(it)}
}

func (p *TwoQ) OnUpdate(k model.Key, cost int64) {
	e, ok := p.index[k]
	if !ok {
		p.OnInsert(k, cost)
		return
	}
	if e.main {
		p.main.resize(e.el, cost)
		p.main.l.MoveToFront(e.el)
		return
	}
	p.in.resize(e.el, cost)
}

func (p *TwoQ) OnAccess(k model.Key) {
	e, ok := p.index[k]
	if !ok {
		return
	}
	if e.main {
		p.main.l.MoveToFront(e.el)
		return
	}
	it := p.in.remove(e.el)
	e.el, e.main = p.main.pushFront(it), true
}

func (p *TwoQ) OnRemove(k model.Key, evicted bool) {
	e, ok := p.index[k]
	if !ok {
		return
	}
	delete(p.index, k)
	if e.main {
		p.main.remove(e.el)
		return
	}
	p.in.remove(e.el)
	if evicted {
		p.remember(k)
	}
}

func (p *TwoQ) remember(k model.Key) {
	if old, ok := p.ghostIdx[k]; ok {
		p.ghost.Remove(old)
	}
	p.ghostIdx[k] = p.ghost.PushFront(k)
	for p.ghost.Len() > p.ghostCap {
		tail := p.ghost.Back()
		delete(p.ghostIdx, tail.Value.(model.Key))
		p.ghost.Remove(tail)
	}
}

// Victims drains A1in while it holds more than its byte share, then Am.
func (p *TwoQ) Victims(bytes int64, entries int) []model.Key {
	c := newCollector(bytes, entries)
	inEl, mainEl := p.in.l.Back(), p.main.l.Back()
	inBytes, total := p.in.bytes, p.in.bytes+p.main.bytes

	for !c.done() && (inEl != nil || mainEl != nil) {
		fromIn := inEl != nil && (mainEl == nil || float64(inBytes) > p.inRatio*float64(total))
		var it *item
		if fromIn {
			it, inEl = inEl.Value.(*item), inEl.Prev()
			inBytes -= it.cost
		} else {
			it, mainEl = mainEl.Value.(*item), mainEl.Prev()
		}
		total -= it.cost
		c.add(it)
	}
	return c.out
}

func (p *TwoQ) Len() int { return len(p.index) }

func (p *TwoQ) Bytes() int64 { return p.in.bytes + p.main.bytes }

// Ghosts returns the size of the eviction history.
func (p *TwoQ) Ghosts() int { return p.ghost.Len() }
