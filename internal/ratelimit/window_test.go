package ratelimit_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/serroba/keythrottle/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock starting at the Unix epoch.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = time.UnixMilli(ms)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newTestWindowLimiter(clock ratelimit.Clock) *ratelimit.WindowLimiter {
	return ratelimit.NewWindowLimiter(ratelimit.DefaultConfig(), clock)
}

func TestNewWindowLimiter(t *testing.T) {
	t.Run("applies defaults to zero config", func(t *testing.T) {
		l := ratelimit.NewWindowLimiter(ratelimit.Config{}, nil)

		assert.Equal(t, 10*time.Second, l.Config().Window)
		assert.Equal(t, 500, l.Config().Capacity)
	})

	t.Run("keeps explicit config", func(t *testing.T) {
		l := ratelimit.NewWindowLimiter(ratelimit.Config{Window: time.Minute, Capacity: 10}, nil)

		assert.Equal(t, time.Minute, l.Config().Window)
		assert.Equal(t, 10, l.Config().Capacity)
	})
}

func TestWindowLimiter_Scenarios(t *testing.T) {
	t.Run("five calls fill the window, sixth is denied, recovers after window", func(t *testing.T) {
		clock := newFakeClock()
		l := newTestWindowLimiter(clock)

		results := make([]bool, 0, 5)
		for i := 0; i < 5; i++ {
			results = append(results, l.Check(5, "ip1"))
		}

		assert.Equal(t, []bool{true, true, true, true, true}, results)
		assert.False(t, l.Check(5, "ip1"))

		clock.Set(10_001)

		assert.True(t, l.Check(5, "ip1"))
	})

	t.Run("limit of one denies the second call inside the window", func(t *testing.T) {
		clock := newFakeClock()
		l := newTestWindowLimiter(clock)

		assert.True(t, l.Check(1, "a"))

		clock.Set(9_999)

		assert.False(t, l.Check(1, "a"))
	})

	t.Run("partial expiry frees only the expired slots", func(t *testing.T) {
		clock := newFakeClock()
		l := newTestWindowLimiter(clock)

		assert.True(t, l.Check(3, "k"))
		assert.True(t, l.Check(3, "k"))

		clock.Set(5_000)
		assert.True(t, l.Check(3, "k"))

		clock.Set(5_001)
		assert.False(t, l.Check(3, "k"))

		clock.Set(10_001)
		assert.True(t, l.Check(3, "k"))
		assert.True(t, l.Check(3, "k"))
		assert.False(t, l.Check(3, "k"), "the t=5000 request is still inside the window")
	})

	t.Run("distinct keys beyond capacity are all admitted and bounded", func(t *testing.T) {
		clock := newFakeClock()
		l := newTestWindowLimiter(clock)

		for i := 0; i < 600; i++ {
			assert.True(t, l.Check(1, fmt.Sprintf("key-%d", i)))
		}

		assert.LessOrEqual(t, l.Len(), 500)
	})

	t.Run("zero and negative limits deny", func(t *testing.T) {
		l := newTestWindowLimiter(newFakeClock())

		assert.False(t, l.Check(0, "x"))
		assert.False(t, l.Check(-5, "x"))
	})
}

func TestWindowLimiter_Properties(t *testing.T) {
	t.Run("same instant is denied once the limit is reached", func(t *testing.T) {
		for _, limit := range []int{1, 2, 7, 50} {
			clock := newFakeClock()
			clock.Set(1_000)
			l := newTestWindowLimiter(clock)

			for i := 0; i < limit; i++ {
				require.True(t, l.Check(limit, "k"))
			}

			assert.False(t, l.Check(limit, "k"), "limit %d", limit)

			clock.Set(1_000 + 10_000 + 1)

			assert.True(t, l.Check(limit, "k"), "limit %d", limit)
		}
	})

	t.Run("keys do not affect each other", func(t *testing.T) {
		l := newTestWindowLimiter(newFakeClock())

		for i := 0; i < 3; i++ {
			assert.True(t, l.Check(3, "a"))
		}

		assert.False(t, l.Check(3, "a"))

		for i := 0; i < 3; i++ {
			assert.True(t, l.Check(3, "b"))
		}
	})

	t.Run("non-positive limits deny regardless of history", func(t *testing.T) {
		clock := newFakeClock()
		l := newTestWindowLimiter(clock)

		assert.True(t, l.Check(10, "k"))

		for _, limit := range []int{0, -1, -100} {
			assert.False(t, l.Check(limit, "k"))
			assert.False(t, l.Check(limit, "fresh"))
		}

		clock.Advance(time.Hour)

		assert.False(t, l.Check(0, "k"))
	})

	t.Run("tracked keys never exceed capacity", func(t *testing.T) {
		l := ratelimit.NewWindowLimiter(ratelimit.Config{Window: time.Second, Capacity: 25}, newFakeClock())

		for i := 0; i < 200; i++ {
			l.Check(3, fmt.Sprintf("key-%d", i))
			assert.LessOrEqual(t, l.Len(), 25)
		}
	})

	t.Run("repeated denials do not delay recovery", func(t *testing.T) {
		clock := newFakeClock()
		l := newTestWindowLimiter(clock)

		assert.True(t, l.Check(2, "k"))
		assert.True(t, l.Check(2, "k"))

		for ms := int64(1); ms < 10_000; ms += 500 {
			clock.Set(ms)
			assert.False(t, l.Check(2, "k"))
		}

		clock.Set(10_000)

		assert.True(t, l.Check(2, "k"))
	})
}

func TestWindowLimiter_Boundaries(t *testing.T) {
	t.Run("timestamp exactly one window old is expired", func(t *testing.T) {
		clock := newFakeClock()
		l := newTestWindowLimiter(clock)

		assert.True(t, l.Check(1, "k"))

		clock.Set(10_000)

		assert.True(t, l.Check(1, "k"))
	})

	t.Run("timestamp one millisecond inside the window still counts", func(t *testing.T) {
		clock := newFakeClock()
		l := newTestWindowLimiter(clock)

		assert.True(t, l.Check(1, "k"))

		clock.Set(9_999)

		assert.False(t, l.Check(1, "k"))
	})

	t.Run("high limits admit up to the literal count", func(t *testing.T) {
		l := newTestWindowLimiter(newFakeClock())

		for i := 0; i < 1000; i++ {
			require.True(t, l.Check(1000, "k"))
		}

		assert.False(t, l.Check(1000, "k"))
	})

	t.Run("keys are compared as opaque strings", func(t *testing.T) {
		l := newTestWindowLimiter(newFakeClock())
		keys := []string{"", "用户", "user\n\t\x00", "USER", "user"}

		for _, key := range keys {
			assert.True(t, l.Check(1, key), "key %q", key)
		}

		for _, key := range keys {
			assert.False(t, l.Check(1, key), "key %q", key)
		}
	})

	t.Run("different limits on the same key share history", func(t *testing.T) {
		l := newTestWindowLimiter(newFakeClock())

		assert.True(t, l.Check(5, "k"))
		assert.True(t, l.Check(5, "k"))

		assert.False(t, l.Check(2, "k"))
		assert.True(t, l.Check(3, "k"))
	})
}

func TestWindowLimiter_Eviction(t *testing.T) {
	t.Run("burst of new keys evicts an active key's history", func(t *testing.T) {
		l := ratelimit.NewWindowLimiter(ratelimit.Config{Window: time.Minute, Capacity: 3}, newFakeClock())

		assert.True(t, l.Check(1, "victim"))
		assert.False(t, l.Check(1, "victim"))

		l.Check(1, "a")
		l.Check(1, "b")
		l.Check(1, "c")

		assert.True(t, l.Check(1, "victim"), "evicted history is forgotten")
	})

	t.Run("denied checks refresh recency", func(t *testing.T) {
		l := ratelimit.NewWindowLimiter(ratelimit.Config{Window: time.Minute, Capacity: 3}, newFakeClock())

		assert.True(t, l.Check(1, "busy"))
		l.Check(1, "a")
		l.Check(1, "b")

		assert.False(t, l.Check(1, "busy"))

		l.Check(1, "c")

		assert.False(t, l.Check(1, "busy"), "busy was touched more recently than a")
		assert.True(t, l.Check(1, "a"), "a was the least recently touched and got evicted")
	})
}

func TestWindowLimiter_Reset(t *testing.T) {
	l := newTestWindowLimiter(newFakeClock())

	assert.True(t, l.Check(1, "k"))
	assert.False(t, l.Check(1, "k"))

	l.Reset()

	assert.Equal(t, 0, l.Len())
	assert.True(t, l.Check(1, "k"))
}

func TestWindowLimiter_Allow(t *testing.T) {
	l := newTestWindowLimiter(newFakeClock())

	allowed, err := l.Allow(context.Background(), 1, "k")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = l.Allow(context.Background(), 1, "k")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestWindowLimiter_Concurrent(t *testing.T) {
	l := newTestWindowLimiter(newFakeClock())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := 0; i < 10; i++ {
				if l.Check(100, "shared") {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 100, admitted)
}
