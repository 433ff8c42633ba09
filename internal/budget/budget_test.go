package budget

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReserve_WithinLimit(t *testing.T) {
	b := New(3, 0)

	assert.True(t, b.TryConsume(KindClassify))
	assert.True(t, b.TryConsume(KindSearch))
	assert.True(t, b.TryConsume(KindSearch))
	assert.False(t, b.TryConsume(KindQuality))

	assert.Equal(t, 3, b.Used())
	assert.Equal(t, 0, b.Remaining())
	assert.True(t, b.Exhausted())
	assert.Equal(t, ReasonOps, b.StopReason())
	assert.Equal(t, map[string]int{KindClassify: 1, KindSearch: 2}, b.Counts())
}

func TestReserve_AllOrNothing(t *testing.T) {
	b := New(3, 0)
	assert.True(t, b.Reserve(KindClassify, 2))
	assert.False(t, b.Reserve(KindClassify, 2))
	assert.Equal(t, 2, b.Used())
	assert.True(t, b.TryConsume(KindSearch))
}

func TestUnlimited(t *testing.T) {
	b := Unlimited()
	for i := 0; i < 1000; i++ {
		assert.True(t, b.TryConsume(KindSearch))
	}
	assert.False(t, b.Exhausted())
	assert.Equal(t, -1, b.Remaining())
	assert.Empty(t, b.StopReason())
}

func TestDeadline(t *testing.T) {
	b := New(0, time.Minute)
	start := time.Now()
	b.now = func() time.Time { return start.Add(30 * time.Second) }
	assert.True(t, b.TryConsume(KindClassify))

	b.now = func() time.Time { return start.Add(2 * time.Minute) }
	assert.False(t, b.TryConsume(KindClassify))
	assert.True(t, b.Exhausted())
	assert.Equal(t, ReasonDeadline, b.StopReason())
}

func TestStopReason_FirstWins(t *testing.T) {
	b := New(1, time.Minute)
	start := time.Now()
	b.now = func() time.Time { return start }
	assert.True(t, b.TryConsume(KindClassify))
	assert.False(t, b.TryConsume(KindClassify))

	b.now = func() time.Time { return start.Add(time.Hour) }
	assert.False(t, b.TryConsume(KindClassify))
	assert.Equal(t, ReasonOps, b.StopReason())
}

func TestConcurrentReserveNeverExceedsLimit(t *testing.T) {
	b := New(10, 0)
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryConsume(KindSearch) {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, granted)
	assert.Equal(t, 10, b.Used())
}

func TestAddCost(t *testing.T) {
	b := Unlimited()
	b.AddCost(0.25)
	b.AddCost(0.5)
	assert.InDelta(t, 0.75, b.CostUSD(), 1e-9)
}
