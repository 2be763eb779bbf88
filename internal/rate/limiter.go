// Package rate provides fixed-window rate limiting with redis and in-memory
// backends.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Result describes one limiter decision.
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

// Limiter is the minimal rate-limiting interface.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter is a fixed window counter (INCR + EXPIRE) keyed on the window
// start, so every replica increments the same bucket. Shared state is what
// makes it the production backend.
type RedisLimiter struct {
	client *rdb.Client
	prefix string
	max    int64
	window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	start := now.Truncate(l.window)
	bucket := fmt.Sprintf("%s%s:%d", l.prefix, sanitizeKey(key), start.Unix())

	hits, err := l.client.Incr(ctx, bucket).Result()
	if err != nil {
		return Result{}, err
	}
	if hits == 1 {
		// The bucket name already pins the window, so the expiry only has to
		// cover the window plus a grace second for boundary stragglers.
		if err := l.client.Expire(ctx, bucket, l.window+time.Second).Err(); err != nil {
			return Result{}, err
		}
	}

	remaining := l.max - hits
	if remaining < 0 {
		remaining = 0
	}
	ttl := start.Add(l.window).Sub(now)

	res := Result{
		Allowed:     hits <= l.max,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}

// sanitizeKey keeps caller-supplied keys (IPs, user ids) from producing
// bucket names with separators redis tooling chokes on.
func sanitizeKey(k string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' {
			return '_'
		}
		return r
	}, k)
}
