package eviction

import (
	"container/list"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/model"
)

type slruEntry struct {
	el        *list.Element
	protected bool
}

// SLRU keeps new keys in a probation segment and promotes them to a protected segment
// on their second access. Victims come from the probation tail first. The protected
// segment holds at most ratio of the resident keys (at least one); overflow is demoted
// back to probation.
type SLRU struct {
	probation *segment
	protected *segment
	index     map[model.Key]*slruEntry
	ratio     float64
}

func NewSLRU(ratio float64) *SLRU {
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.8
	}
	return &SLRU{
		probation: newSegment(),
		protected: newSegment(),
		index:     make(map[model.Key]*slruEntry),
		ratio:     ratio,
	}
}

func (p *SLRU) Name() string { return string(config.EvictionSLRU) }

func (p *SLRU) segmentOf(e *slruEntry) *segment {
	if e.protected {
		return p.protected
	}
	return p.probation
}

func (p *SLRU) OnInsert(k model.Key, cost int64) {
	if _, ok := p.index[k]; ok {
		p.OnUpdate(k, cost)
		return
	}
	p.index[k] = &slruEntry{el: p.probation.pushFront(&item{key: k, cost: cost})}
}

func (p *SLRU) OnUpdate(k model.Key, cost int64) {
	e, ok := p.index[k]
	if !ok {
		p.OnInsert(k, cost)
		return
	}
	seg := p.segmentOf(e)
	seg.resize(e.el, cost)
	seg.l.MoveToFront(e.el)
}

func (p *SLRU) OnAccess(k model.Key) {
	e, ok := p.index[k]
	if !ok {
		return
	}
	if e.protected {
		p.protected.l.MoveToFront(e.el)
		return
	}
	it := p.probation.remove(e.el)
	e.el, e.protected = p.protected.pushFront(it), true
	p.demote()
}

func (p *SLRU) demote() {
	limit := int(p.ratio * float64(len(p.index)))
	if limit < 1 {
		limit = 1
	}
	for p.protected.l.Len() > limit {
		it := p.protected.remove(p.protected.l.Back())
		p.index[it.key] = &slruEntry{el: p.probation.pushFront(it)}
	}
}

func (p *SLRU) OnRemove(k model.Key, _ bool) {
	e, ok := p.index[k]
	if !ok {
		return
	}
	p.segmentOf(e).remove(e.el)
	delete(p.index, k)
}

func (p *SLRU) Victims(bytes int64, entries int) []model.Key {
	c := newCollector(bytes, entries)
	c.drainBack(p.probation, nil)
	c.drainBack(p.protected, nil)
	return c.out
}

func (p *SLRU) Len() int { return len(p.index) }

func (p *SLRU) Bytes() int64 { return p.probation.bytes + p.protected.bytes }
