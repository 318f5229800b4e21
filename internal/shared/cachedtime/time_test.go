package cachedtime

import (
	"context"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

// TestUnixNano_Disabled returns real time when the coarse clock is not running.
func TestUnixNano_Disabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	RunIfEnabled(ctx, false)

	nano1 := UnixNano()
	time.Sleep(10 * time.Millisecond)
	nano2 := UnixNano()

	require.Greater(t, nano2, nano1, "UnixNano should advance when disabled")
}

// TestSince_CalculatesDuration verifies Since calculates duration correctly.
func TestSince_CalculatesDuration(t *testing.T) {
	start := Now()
	time.Sleep(50 * time.Millisecond)
	duration := Since(start)

	require.GreaterOrEqual(t, duration, 40*time.Millisecond)
	require.Less(t, duration, 200*time.Millisecond)
}

// TestRunIfEnabled_StopsOnContextCancel falls back to real time once the last runner stops.
func TestRunIfEnabled_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	RunIfEnabled(ctx, true)

	time.Sleep(25 * time.Millisecond)
	nano1 := UnixNano()
	require.GreaterOrEqual(t, UnixNano(), nano1)

	cancel()
	require.Eventually(t, func() bool { return running.Load() == 0 }, time.Second, 5*time.Millisecond)

	nano1 = UnixNano()
	time.Sleep(time.Millisecond)
	require.Greater(t, UnixNano(), nano1)
}

// TestManual advances only when told to.
func TestManual(t *testing.T) {
	start := time.Unix(100, 0)
	m := NewManual(start)
	require.Equal(t, start.UnixNano(), m.UnixNano())

	m.Advance(time.Second)
	require.Equal(t, start.Add(time.Second).UnixNano(), m.UnixNano())
}
