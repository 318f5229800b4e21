// Package slab stores values in size-classed, preallocated chunks.
//
// A value lives in exactly one chunk of the smallest class that fits it. Chunks are
// identified by a Ref carrying a generation: once a chunk is freed its generation
// changes, so a stale Ref is detected instead of reading someone else's value.
// Free must only be called when no reader can still hold the Ref.
package slab

import (
	"errors"
	"github.com/Borislavv/go-hotkv/internal/shared/queue"
	"sync"
	"sync/atomic"
)

var (
	ErrTooLarge = errors.New("slab: value exceeds max item size")
	ErrNoSpace  = errors.New("slab: arena capacity exhausted")
)

type Config struct {
	MinChunkSize int
	GrowthFactor float64
	MaxItemSize  int
	// Capacity bounds the bytes of all chunk buffers together.
	Capacity int64
}

// Ref addresses a stored value. The zero Ref addresses nothing.
type Ref struct {
	class uint16
	slot  uint32
	gen   uint32
	size  uint32
}

func (r Ref) IsZero() bool { return r.gen == 0 }

func (r Ref) Len() int { return int(r.size) }

type chunk struct {
	buf atomic.Pointer[[]byte]
	gen atomic.Uint32
}

type class struct {
	mu     sync.Mutex
	size   int
	chunks atomic.Pointer[[]*chunk]
	free   queue.Queue[uint32]
	vacant []uint32
	inUse  atomic.Int64
}

type Store struct {
	classes  []*class
	maxItem  int
	capacity int64
	reserved atomic.Int64
	allocs   atomic.Int64
	frees    atomic.Int64
	trims    atomic.Int64
}

func New(cfg Config) *Store {
	if cfg.MinChunkSize < 8 {
		cfg.MinChunkSize = 8
	}
	if cfg.GrowthFactor <= 1 {
		cfg.GrowthFactor = 1.25
	}
	if cfg.MaxItemSize < cfg.MinChunkSize {
		cfg.MaxItemSize = cfg.MinChunkSize
	}

	s := &Store{maxItem: cfg.MaxItemSize, capacity: cfg.Capacity}
	for _, size := range classSizes(cfg.MinChunkSize, cfg.GrowthFactor, cfg.MaxItemSize) {
		c := &class{size: size}
		c.free.Init(64)
		empty := make([]*chunk, 0, 64)
		c.chunks.Store(&empty)
		s.classes = append(s.classes, c)
	}
	return s
}

func classSizes(minSize int, factor float64, maxSize int) []int {
	var sizes []int
	for size := minSize; size < maxSize; {
		sizes = append(sizes, size)
		next := (int(float64(size)*factor) + 7) &^ 7
		if next <= size {
			next = size + 8
		}
		size = next
	}
	return append(sizes, maxSize)
}

func (s *Store) classFor(n int) int {
	lo, hi := 0, len(s.classes)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if s.classes[mid].size >= n {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Alloc copies p into a chunk. When the arena is at capacity, free chunks of other
// classes are released to make room before giving up with ErrNoSpace.
func (s *Store) Alloc(p []byte) (Ref, error) {
	if len(p) > s.maxItem {
		return Ref{}, ErrTooLarge
	}
	idx := s.classFor(len(p))
	c := s.classes[idx]

	slot, ch, ok := s.take(c)
	if !ok {
		s.trim(int64(c.size), c)
		if slot, ch, ok = s.take(c); !ok {
			return Ref{}, ErrNoSpace
		}
	}

	copy(*ch.buf.Load(), p)
	c.inUse.Add(1)
	s.allocs.Add(1)
	return Ref{class: uint16(idx), slot: slot, gen: ch.gen.Load(), size: uint32(len(p))}, nil
}

func (s *Store) take(c *class) (uint32, *chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chunks := *c.chunks.Load()
	if slot, ok := c.free.TryPop(); ok {
		return slot, chunks[slot], true
	}
	if !s.reserve(int64(c.size)) {
		return 0, nil, false
	}
	buf := make([]byte, c.size)

	if n := len(c.vacant); n > 0 {
		slot := c.vacant[n-1]
		c.vacant = c.vacant[:n-1]
		chunks[slot].buf.Store(&buf)
		return slot, chunks[slot], true
	}

	ch := &chunk{}
	ch.buf.Store(&buf)
	ch.gen.Store(1)
	next := append(chunks, ch)
	c.chunks.Store(&next)
	return uint32(len(next) - 1), ch, true
}

func (s *Store) reserve(n int64) bool {
	for {
		cur := s.reserved.Load()
		if cur+n > s.capacity {
			return false
		}
		if s.reserved.CompareAndSwap(cur, cur+n) {
			return true
		}
	}
}

// trim drops buffers of free chunks in classes other than except until want bytes are released.
func (s *Store) trim(want int64, except *class) {
	var released int64
	for _, c := range s.classes {
		if c == except || released >= want {
			continue
		}
		c.mu.Lock()
		chunks := *c.chunks.Load()
		for released < want {
			slot, ok := c.free.TryPop()
			if !ok {
				break
			}
			chunks[slot].buf.Store(nil)
			c.vacant = append(c.vacant, slot)
			s.reserved.Add(-int64(c.size))
			released += int64(c.size)
			s.trims.Add(1)
		}
		c.mu.Unlock()
	}
}

// Read appends the value addressed by ref to dst. It reports false when the chunk
// was freed or reused since ref was issued.
func (s *Store) Read(ref Ref, dst []byte) ([]byte, bool) {
	if ref.IsZero() || int(ref.class) >= len(s.classes) {
		return dst, false
	}
	chunks := *s.classes[ref.class].chunks.Load()
	if int(ref.slot) >= len(chunks) {
		return dst, false
	}
	ch := chunks[ref.slot]
	if ch.gen.Load() != ref.gen {
		return dst, false
	}
	bp := ch.buf.Load()
	if bp == nil {
		return dst, false
	}
	n := len(dst)
	dst = append(dst, (*bp)[:ref.size]...)
	if ch.gen.Load() != ref.gen {
		return dst[:n], false
	}
	return dst, true
}

// Free returns the chunk to its class. Freeing a stale Ref is a no-op.
func (s *Store) Free(ref Ref) bool {
	if ref.IsZero() || int(ref.class) >= len(s.classes) {
		return false
	}
	c := s.classes[ref.class]

	c.mu.Lock()
	defer c.mu.Unlock()

	chunks := *c.chunks.Load()
	if int(ref.slot) >= len(chunks) {
		return false
	}
	ch := chunks[ref.slot]
	if !ch.gen.CompareAndSwap(ref.gen, nextGen(ref.gen)) {
		return false
	}
	c.free.Push(ref.slot)
	c.inUse.Add(-1)
	s.frees.Add(1)
	return true
}

func nextGen(g uint32) uint32 {
	if g++; g == 0 {
		g = 1
	}
	return g
}

func (s *Store) MaxItemSize() int { return s.maxItem }

func (s *Store) Capacity() int64 { return s.capacity }

// Reserved is the number of bytes held by chunk buffers, used or free.
func (s *Store) Reserved() int64 { return s.reserved.Load() }

type ClassStats struct {
	Size   int
	Chunks int
	InUse  int64
	Free   int
}

func (s *Store) Classes() []ClassStats {
	out := make([]ClassStats, 0, len(s.classes))
	for _, c := range s.classes {
		out = append(out, ClassStats{
			Size:   c.size,
			Chunks: len(*c.chunks.Load()),
			InUse:  c.inUse.Load(),
			Free:   c.free.Len(),
		})
	}
	return out
}

func (s *Store) Metrics() (allocs, frees, trims int64) {
	return s.allocs.Load(), s.frees.Load(), s.trims.Load()
}
