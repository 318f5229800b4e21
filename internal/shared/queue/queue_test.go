package queue

import (
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
)

// TestQueue_Init_MinSize verifies that Init enforces minimum size.
func TestQueue_Init_MinSize(t *testing.T) {
	var q Queue[uint32]
	q.Init(1)

	require.True(t, q.TryPush(1))
	require.True(t, q.TryPush(2))
	require.False(t, q.TryPush(3))
}

// TestQueue_TryPushTryPop verifies FIFO order.
func TestQueue_TryPushTryPop(t *testing.T) {
	var q Queue[uint64]
	q.Init(10)

	for i := uint64(1); i <= 3; i++ {
		require.True(t, q.TryPush(i))
	}
	require.Equal(t, 3, q.Len())

	for i := uint64(1); i <= 3; i++ {
		v, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}

	_, ok := q.TryPop()
	require.False(t, ok)
}

// TestQueue_WrapAround verifies circular buffer behavior.
func TestQueue_WrapAround(t *testing.T) {
	var q Queue[int]
	q.Init(3)

	require.True(t, q.TryPush(1))
	require.True(t, q.TryPush(2))
	v, _ := q.TryPop()
	require.Equal(t, 1, v)

	require.True(t, q.TryPush(3))
	require.True(t, q.TryPush(4))
	require.False(t, q.TryPush(5))

	for _, want := range []int{2, 3, 4} {
		v, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
}

// TestQueue_PushGrows keeps order across a resize of a wrapped ring.
func TestQueue_PushGrows(t *testing.T) {
	var q Queue[int]
	q.Init(2)

	q.Push(1)
	q.Push(2)
	v, _ := q.TryPop()
	require.Equal(t, 1, v)
	q.Push(3)
	q.Push(4)
	q.Push(5)
	require.Equal(t, 4, q.Len())

	for _, want := range []int{2, 3, 4, 5} {
		v, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
}

// TestQueue_Concurrent pushes and pops from many goroutines without losing values.
func TestQueue_Concurrent(t *testing.T) {
	var q Queue[int]
	q.Init(4)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 8000, q.Len())

	popped := 0
	for {
		if _, ok := q.TryPop(); !ok {
			break
		}
		popped++
	}
	require.Equal(t, 8000, popped)
}
