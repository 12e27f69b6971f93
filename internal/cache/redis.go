package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victorgambert/repoindex/internal/errors"
)

// RedisCache implements QueryCache on a shared redis instance, letting
// multiple retriever processes share one result cache.
type RedisCache struct {
	client *redis.Client
}

var _ QueryCache = (*RedisCache)(nil)

// NewRedisCache connects to redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.New(errors.ErrCodeCache, "connect to redis", err).WithDetail("addr", addr)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.New(errors.ErrCodeCache, "cache read", err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.New(errors.ErrCodeCache, "cache write", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
