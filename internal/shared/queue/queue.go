package queue

import "sync"

// Queue is a mutex guarded FIFO ring. TryPush respects the initial capacity,
// Push grows the ring instead of failing.
type Queue[T any] struct {
	mu         sync.Mutex
	buf        []T
	head, tail int
	n          int
}

func (q *Queue[T]) Init(size int) {
	if size < 2 {
		size = 2
	}
	q.mu.Lock()
	q.buf = make([]T, size)
	q.head, q.tail, q.n = 0, 0, 0
	q.mu.Unlock()
}

func (q *Queue[T]) TryPush(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == len(q.buf) {
		return false
	}
	q.put(v)
	return true
}

func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == len(q.buf) {
		q.grow()
	}
	q.put(v)
}

func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.n == 0 {
		return zero, false
	}
	v := q.buf[q.tail]
	q.buf[q.tail] = zero
	q.tail = (q.tail + 1) % len(q.buf)
	q.n--
	return v, true
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

func (q *Queue[T]) put(v T) {
	q.buf[q.head] = v
	q.head = (q.head + 1) % len(q.buf)
	q.n++
}

func (q *Queue[T]) grow() {
	size := len(q.buf) * 2
	if size < 2 {
		size = 2
	}
	next := make([]T, size)
	for i := 0; i < q.n; i++ {
		next[i] = q.buf[(q.tail+i)%len(q.buf)]
	}
	q.buf = next
	q.tail = 0
	q.head = q.n
}
