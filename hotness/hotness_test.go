package hotness

import (
	"fmt"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
)

var testCfg = &config.HotnessCfg{
	Capacity:            100_000,
	Shards:              64,
	MinTableLenPerShard: 1024,
	SampleMultiplier:    12,
	DoorBitsPerCounter:  16,
}

func key(tenant model.TenantID, i int) model.Key {
	return model.Key{Tenant: tenant, Name: fmt.Sprintf("key-%d", i)}
}

// TestSketch_FirstSightOnlyHitsDoorkeeper checks that a single access never reaches the counters.
func TestSketch_FirstSightOnlyHitsDoorkeeper(t *testing.T) {
	s := NewSketch(testCfg)
	k := key(1, 1)

	require.Equal(t, uint8(0), s.Estimate(k))
	s.Record(k)
	require.Equal(t, uint8(1), s.Estimate(k))
	s.Record(k)
	require.Equal(t, uint8(2), s.Estimate(k))
}

// TestSketch_Saturates checks that estimates never exceed MaxEstimate.
func TestSketch_Saturates(t *testing.T) {
	s := NewSketch(testCfg)
	k := key(1, 7)
	for i := 0; i < 100; i++ {
		s.Record(k)
	}
	require.Equal(t, uint8(MaxEstimate), s.Estimate(k))
}

// TestSketch_TenantsCountedApart checks that equal names of different tenants do not share counts.
func TestSketch_TenantsCountedApart(t *testing.T) {
	s := NewSketch(testCfg)
	for i := 0; i < 10; i++ {
		s.Record(key(1, 3))
	}
	require.GreaterOrEqual(t, s.Estimate(key(1, 3)), uint8(10))
	require.LessOrEqual(t, s.Estimate(key(2, 3)), uint8(1))
}

// TestSketch_PrefersHotOverCold checks comparative decisions between hot and cold sets.
func TestSketch_PrefersHotOverCold(t *testing.T) {
	s := NewSketch(testCfg)

	const hotN, coldN = 500, 5_000
	for round := 0; round < 6; round++ {
		for i := 0; i < hotN; i++ {
			s.Record(key(1, i))
		}
	}
	for i := 0; i < coldN; i++ {
		s.Record(key(1, hotN+i))
	}

	var hotWins, coldWins int
	for i := 0; i < hotN; i++ {
		if s.Prefer(key(1, i), key(1, hotN+i)) {
			hotWins++
		}
		if s.Prefer(key(1, hotN+i), key(1, i)) {
			coldWins++
		}
	}
	require.Greater(t, hotWins, hotN*9/10)
	require.Less(t, coldWins, hotN/10)
}

// TestSketch_UnseenCandidateRejected checks that a never recorded candidate loses against anyone.
func TestSketch_UnseenCandidateRejected(t *testing.T) {
	s := NewSketch(testCfg)
	require.False(t, s.Prefer(key(1, 1), key(1, 2)))
	require.True(t, s.Prefer(key(1, 1), key(1, 1)))
}

// TestSketch_AgingHalvesCounters checks that crossing the sample window halves estimates.
func TestSketch_AgingHalvesCounters(t *testing.T) {
	s := NewSketch(&config.HotnessCfg{Capacity: 1024, Shards: 1, MinTableLenPerShard: 1024, SampleMultiplier: 1, DoorBitsPerCounter: 8})
	hot := key(1, 0)
	for i := 0; i < 15; i++ {
		s.Record(hot)
	}
	before := s.Estimate(hot)
	require.Equal(t, uint8(MaxEstimate), before)

	for i := 1; i <= 1_015; i++ {
		s.Record(key(1, i))
		s.Record(key(1, i))
	}
	require.Less(t, s.Estimate(hot), before)
}

// TestSketch_Reset checks that Reset forgets keys.
func TestSketch_Reset(t *testing.T) {
	s := NewSketch(testCfg)
	k := key(3, 3)
	s.Record(k)
	s.Record(k)
	s.Reset()
	require.Equal(t, uint8(0), s.Estimate(k))
}

// TestSketch_ConcurrentRecord checks that parallel recording keeps estimates bounded and positive.
func TestSketch_ConcurrentRecord(t *testing.T) {
	s := NewSketch(testCfg)
	k := key(1, 42)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Go(func() {
			for i := 0; i < 1_000; i++ {
				s.Record(k)
				_ = s.Estimate(key(1, i))
			}
		})
	}
	wg.Wait()
	require.Equal(t, uint8(MaxEstimate), s.Estimate(k))
}

// TestNew_NilConfigIsNoOp checks that a nil config disables estimation.
func TestNew_NilConfigIsNoOp(t *testing.T) {
	e := New(nil)
	e.Record(key(1, 1))
	require.Equal(t, uint8(0), e.Estimate(key(1, 1)))
	require.True(t, e.Prefer(key(1, 1), key(1, 2)))
	require.IsType(t, &NoOp{}, e)
}
