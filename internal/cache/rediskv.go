package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisKV backs the history window with Redis lists.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(ctx context.Context, addr string) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{Addr: strings.TrimSpace(addr)})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisKV{client: client}, nil
}

func (r *RedisKV) PushTrim(ctx context.Context, key, value string, keep int) error {
	// RPUSH and LTRIM ship as one pipelined transaction so a concurrent
	// writer can never observe the list above its cap.
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, value)
	if keep > 0 {
		pipe.LTrim(ctx, key, int64(-keep), -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push trim %q: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Range(ctx context.Context, key string) ([]string, error) {
	vals, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("range %q: %w", key, err)
	}
	return vals, nil
}

func (r *RedisKV) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %q: %w", key, err)
	}
	return n > 0, nil
}

func (r *RedisKV) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %q: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := r.client.Keys(ctx, prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("keys %q: %w", prefix, err)
	}
	return keys, nil
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}
