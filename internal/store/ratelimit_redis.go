package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/keythrottle/internal/ratelimit"
)

// slidingLogScript keeps one sorted set per key scored by request time in
// milliseconds. Scores at or before the window start are removed, matching
// the in-memory limiter's boundary.
//
// KEYS[1] set key, ARGV: now, window, limit, member. Returns 1 when admitted.
var slidingLogScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)

if limit <= 0 then
	return 0
end

local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
	redis.call('PEXPIRE', KEYS[1], window)
	return 0
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)

return 1
`)

// resetBatch bounds both the SCAN page size and the keys unlinked per
// pipeline during Reset.
const resetBatch = 500

// RedisBackend is a ratelimit.Backend that shares sliding-log state between
// processes through Redis.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
	clock  ratelimit.Clock
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithClock sets the clock whose time is sent with every Allow. Processes
// sharing a backend should agree on it to within a few milliseconds.
func WithClock(clock ratelimit.Clock) RedisOption {
	return func(r *RedisBackend) {
		r.clock = clock
	}
}

// WithKeyPrefix namespaces every key the backend writes. Reset only touches
// keys under the prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisBackend) {
		r.prefix = prefix
	}
}

// NewRedisBackend creates a Redis-backed limiter using the given window.
func NewRedisBackend(client redis.UniversalClient, window time.Duration, opts ...RedisOption) *RedisBackend {
	r := &RedisBackend{
		client: client,
		prefix: "ratelimit:",
		window: window,
		clock:  ratelimit.SystemClock{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Allow runs one sliding-log check for key in a single script call, so
// concurrent callers on any process see a consistent count. A denied call
// records nothing. Errors come from Redis itself and leave the decision to
// the caller.
func (r *RedisBackend) Allow(ctx context.Context, limit int, key string) (bool, error) {
	res, err := slidingLogScript.Run(ctx, r.client, []string{r.prefix + key},
		r.clock.Now().UnixMilli(),
		r.window.Milliseconds(),
		limit,
		uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis sliding log: %w", err)
	}

	return res == 1, nil
}

// Reset deletes every key under the backend's prefix. On a cluster each
// master is scanned separately, and keys are unlinked one command each so
// no command spans hash slots.
func (r *RedisBackend) Reset(ctx context.Context) error {
	if cluster, ok := r.client.(*redis.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return r.resetNode(ctx, node)
		})
	}

	return r.resetNode(ctx, r.client)
}

func (r *RedisBackend) resetNode(ctx context.Context, node redis.Cmdable) error {
	iter := node.Scan(ctx, 0, r.prefix+"*", resetBatch).Iterator()
	batch := make([]string, 0, resetBatch)

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())

		if len(batch) == resetBatch {
			if err := unlinkKeys(ctx, node, batch); err != nil {
				return err
			}

			batch = batch[:0]
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan rate limit keys: %w", err)
	}

	return unlinkKeys(ctx, node, batch)
}

func unlinkKeys(ctx context.Context, node redis.Cmdable, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := node.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Unlink(ctx, key)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("unlink %d rate limit keys: %w", len(keys), err)
	}

	return nil
}

// Compile-time checks.
var (
	_ ratelimit.Backend  = (*RedisBackend)(nil)
	_ ratelimit.Resetter = (*RedisBackend)(nil)
)
