package events

import (
	"context"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/stretchr/testify/require"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestBus(t *testing.T, buffer, subBuffer int) *Bus {
	t.Helper()
	b := NewBus(config.EventsCfg{Buffer: buffer, SubscriberBuffer: subBuffer}, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	t.Cleanup(func() {
		cancel()
		b.Close()
	})
	return b
}

func recv(t *testing.T, sub *Subscription) model.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	return model.Event{}
}

// TestBus_Multicast checks that every subscriber receives every event.
func TestBus_Multicast(t *testing.T) {
	b := newTestBus(t, 16, 16)
	s1 := b.Subscribe(0)
	s2 := b.Subscribe(0)

	require.True(t, b.Publish(model.Event{Kind: model.EntryEvicted, Tenant: 1, Key: "k", Reason: model.ReasonCapacity}))

	for _, s := range []*Subscription{s1, s2} {
		ev := recv(t, s)
		require.Equal(t, model.EntryEvicted, ev.Kind)
		require.Equal(t, "k", ev.Key)
		require.NotZero(t, ev.At)
	}
	require.Equal(t, int64(1), b.Published())
}

// TestBus_KindFilter checks that a subscription only receives the kinds it asked for.
func TestBus_KindFilter(t *testing.T) {
	b := newTestBus(t, 16, 16)
	s := b.Subscribe(4, model.PressureWarning)

	b.Publish(model.Event{Kind: model.EntryInvalidated, Key: "a"})
	b.Publish(model.Event{Kind: model.PressureWarning, Level: model.PressureSoft})

	ev := recv(t, s)
	require.Equal(t, model.PressureWarning, ev.Kind)
	require.Equal(t, model.PressureSoft, ev.Level)
}

// TestBus_SlowSubscriberDropsAndIsCounted checks that a full subscriber loses events without blocking others.
func TestBus_SlowSubscriberDropsAndIsCounted(t *testing.T) {
	b := newTestBus(t, 64, 64)
	slow := b.Subscribe(1)
	fast := b.Subscribe(64)

	for i := 0; i < 10; i++ {
		require.True(t, b.Publish(model.Event{Kind: model.EntryEvicted}))
	}
	for i := 0; i < 10; i++ {
		recv(t, fast)
	}
	require.Eventually(t, func() bool { return slow.Dropped() == 9 && b.Dropped() == 9 }, time.Second, time.Millisecond)
	require.Len(t, slow.C(), 1)
}

// TestBus_PublishNeverBlocks checks that a full queue drops instead of blocking the producer.
func TestBus_PublishNeverBlocks(t *testing.T) {
	b := NewBus(config.EventsCfg{Buffer: 2, SubscriberBuffer: 1}, slog.Default())
	defer b.Close()

	require.True(t, b.Publish(model.Event{Kind: model.EntryEvicted}))
	require.True(t, b.Publish(model.Event{Kind: model.EntryEvicted}))
	require.False(t, b.Publish(model.Event{Kind: model.EntryEvicted}))
	require.Equal(t, int64(1), b.Dropped())
}

// TestBus_Unsubscribe checks that an unsubscribed channel is closed and stops receiving.
func TestBus_Unsubscribe(t *testing.T) {
	b := newTestBus(t, 16, 16)
	s := b.Subscribe(4)
	require.Equal(t, 1, b.Subscribers())

	s.Close()
	s.Close()
	require.Equal(t, 0, b.Subscribers())

	b.Publish(model.Event{Kind: model.EntryEvicted})
	_, ok := <-s.C()
	require.False(t, ok)
}

// TestBus_CloseClosesSubscriptions checks that closing the bus releases subscribers and rejects publishes.
func TestBus_CloseClosesSubscriptions(t *testing.T) {
	b := NewBus(config.EventsCfg{Buffer: 16, SubscriberBuffer: 16}, slog.Default())
	go b.Run(context.Background())
	s := b.Subscribe(0)

	b.Close()
	b.Close()

	_, ok := <-s.C()
	require.False(t, ok)
	require.False(t, b.Publish(model.Event{Kind: model.EntryEvicted}))

	late := b.Subscribe(0)
	_, ok = <-late.C()
	require.False(t, ok)
}

// TestBus_ConcurrentPublishAndChurn checks that publishing races safely with subscribe and unsubscribe.
func TestBus_ConcurrentPublishAndChurn(t *testing.T) {
	b := newTestBus(t, 1024, 8)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Go(func() {
			for i := 0; i < 2_000; i++ {
				b.Publish(model.Event{Kind: model.EntryInvalidated})
			}
		})
	}
	wg.Go(func() {
		for i := 0; i < 200; i++ {
			s := b.Subscribe(2)
			s.Close()
		}
	})
	wg.Wait()
	require.GreaterOrEqual(t, b.Published()+b.Dropped(), int64(8_000))
	require.Positive(t, b.Published())
}
