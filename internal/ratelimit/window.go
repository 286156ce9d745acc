package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/serroba/keythrottle/internal/recency"
)

const (
	// DefaultWindow is the trailing admission window used when none is configured.
	DefaultWindow = 10 * time.Second
	// DefaultCapacity is the number of distinct keys tracked when none is configured.
	DefaultCapacity = 500
)

// Config holds the construction-time settings of a WindowLimiter.
type Config struct {
	// Window is the length of the trailing admission window.
	Window time.Duration
	// Capacity is the maximum number of distinct keys retained before the
	// least recently touched key is evicted.
	Capacity int
}

// DefaultConfig returns a 10 second window over at most 500 keys.
func DefaultConfig() Config {
	return Config{
		Window:   DefaultWindow,
		Capacity: DefaultCapacity,
	}
}

func (c Config) withDefaults() Config {
	if c.Window < time.Millisecond {
		c.Window = DefaultWindow
	}

	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}

	return c
}

// WindowLimiter is an in-memory sliding log limiter.
//
// Each key maps to the ascending list of its admitted request times in Unix
// milliseconds. Keys live in a recency store, so once Capacity distinct keys
// are tracked a new key evicts the key that has gone longest without a
// check, discarding its history even if it is still inside its window.
type WindowLimiter struct {
	mu       sync.Mutex
	clock    Clock
	windowMS int64
	cfg      Config
	keys     *recency.Store[string, []int64]
}

// NewWindowLimiter creates a limiter from cfg. Zero fields take their defaults
// and a nil clock uses the system clock.
func NewWindowLimiter(cfg Config, clock Clock) *WindowLimiter {
	cfg = cfg.withDefaults()

	if clock == nil {
		clock = SystemClock{}
	}

	return &WindowLimiter{
		clock:    clock,
		windowMS: cfg.Window.Milliseconds(),
		cfg:      cfg,
		keys:     recency.New[string, []int64](cfg.Capacity),
	}
}

// Check reports whether one more request for key fits under limit within
// the trailing window, recording it when it does. A limit of zero or less
// always denies.
func (l *WindowLimiter) Check(limit int, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now().UnixMilli()

	timestamps, _ := l.keys.Get(key)
	timestamps = prune(timestamps, now-l.windowMS)

	allowed := limit > 0 && len(timestamps) < limit
	if allowed {
		timestamps = append(timestamps, now)
	}

	// Written back on denial too: keeps the pruning and refreshes recency.
	l.keys.Set(key, timestamps)

	return allowed
}

// Allow implements Backend. The in-memory path never fails.
func (l *WindowLimiter) Allow(_ context.Context, limit int, key string) (bool, error) {
	return l.Check(limit, key), nil
}

// Reset drops the history of every key.
func (l *WindowLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.keys.Clear()
}

// Len returns the number of keys currently tracked.
func (l *WindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.keys.Len()
}

// Config returns the effective configuration.
func (l *WindowLimiter) Config() Config {
	return l.cfg
}

// minShrinkCap is the smallest backing array prune will reallocate.
const minShrinkCap = 64

// prune drops the expired prefix of an ascending timestamp list. A timestamp
// equal to windowStart is expired. Survivors using under a quarter of a
// large backing array are moved to a right-sized one.
func prune(timestamps []int64, windowStart int64) []int64 {
	first := sort.Search(len(timestamps), func(i int) bool {
		return timestamps[i] > windowStart
	})
	if first == 0 {
		return timestamps
	}

	live := timestamps[first:]

	if c := cap(timestamps); c > minShrinkCap && len(live)*4 < c {
		return append(make([]int64, 0, max(len(live)*2, 1)), live...)
	}

	n := copy(timestamps, live)

	return timestamps[:n]
}
