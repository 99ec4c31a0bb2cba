package cache

import "context"

// KV is the minimal list-shaped key/value contract the history window
// needs: append to tail, trim to the last N, enumerate, delete.
type KV interface {
	// PushTrim appends value to the list at key and trims the list to its
	// last keep elements, as one atomic unit per key.
	PushTrim(ctx context.Context, key, value string, keep int) error
	Range(ctx context.Context, key string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
