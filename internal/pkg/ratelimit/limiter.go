// Package ratelimit implements fixed-window counters used to throttle SMS
// code sends per phone number and per client IP.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Result describes the outcome of a single Allow call.
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

// Limiter counts hits for a key inside a window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter is a fixed window counter (INCR + EXPIRE) shared by every
// API replica.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	max    int64
	window time.Duration
}

// NewRedisLimiter creates a limiter allowing max hits per window. Keys are
// stored as "<prefix>:<key>:<window start>".
func NewRedisLimiter(client *redis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := time.Now().UTC().Truncate(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	hits := incr.Val()
	res := Result{Allowed: hits <= l.max, Remaining: l.max - hits, CurrentHits: hits}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		ttl, err := l.client.TTL(ctx, redisKey).Result()
		if err != nil || ttl < 0 {
			ttl = time.Duration(math.Ceil(l.window.Seconds())) * time.Second
		}
		res.RetryAfter = ttl
	}
	return res, nil
}

// MemoryLimiter is the single-process fallback used when Redis is not
// configured.
type MemoryLimiter struct {
	mu     sync.Mutex
	hits   *cache.Cache
	max    int64
	window time.Duration
}

// NewMemoryLimiter creates an in-process limiter allowing max hits per window.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		hits:   cache.New(window, 2*window),
		max:    int64(max),
		window: window,
	}
}

type memWindow struct {
	count int64
	start time.Time
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w := &memWindow{start: now}
	if v, ok := l.hits.Get(key); ok {
		w = v.(*memWindow)
	}
	w.count++
	left := l.window - now.Sub(w.start)
	if left <= 0 {
		left = time.Millisecond
	}
	l.hits.Set(key, w, left)

	res := Result{Allowed: w.count <= l.max, Remaining: l.max - w.count, CurrentHits: w.count}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = left
	}
	return res, nil
}

// New picks the Redis limiter when a client is available.
func New(client *redis.Client, prefix string, max int, window time.Duration) Limiter {
	if client != nil {
		return NewRedisLimiter(client, prefix, max, window)
	}
	return NewMemoryLimiter(max, window)
}
