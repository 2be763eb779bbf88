package redis

import (
	"context"
	"errors"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/skillsync/toolbridge/internal/cache"
)

type Cache struct {
	c      *rdb.Client
	prefix string
}

func New(addr string, db int, prefix string) *Cache {
	return &Cache{
		c:      rdb.NewClient(&rdb.Options{Addr: addr, DB: db}),
		prefix: prefix,
	}
}

// NewFromClient wraps an existing client (shared with the rate limiter).
func NewFromClient(c *rdb.Client, prefix string) *Cache {
	return &Cache{c: c, prefix: prefix}
}

var _ cache.Cache = (*Cache)(nil)

func (r *Cache) Get(ctx context.Context, k string) ([]byte, error) {
	b, err := r.c.Get(ctx, r.prefix+k).Bytes()
	if errors.Is(err, rdb.Nil) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Cache) Set(ctx context.Context, k string, v []byte, ttl time.Duration) error {
	return r.c.Set(ctx, r.prefix+k, v, ttl).Err()
}

func (r *Cache) Add(ctx context.Context, k string, v []byte, ttl time.Duration) (bool, error) {
	ok, err := r.c.SetNX(ctx, r.prefix+k, v, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *Cache) Delete(ctx context.Context, k string) error {
	return r.c.Del(ctx, r.prefix+k).Err()
}

func (r *Cache) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

func (r *Cache) Close() error { return r.c.Close() }
