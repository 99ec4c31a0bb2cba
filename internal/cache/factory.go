package cache

import (
	"context"
	"strings"
)

// NewKV creates a redis-backed KV when configured, otherwise in-memory.
func NewKV(ctx context.Context, redisAddr string) (KV, error) {
	if strings.TrimSpace(redisAddr) == "" {
		return NewMemKV(), nil
	}
	return NewRedisKV(ctx, redisAddr)
}
