package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/antoniostano/scenegen/internal/chat"
)

const keyPrefix = "user:"

// Key identifies one cached session window.
type Key struct {
	UserID    string
	SessionID string
}

func (k Key) String() string {
	return fmt.Sprintf("user:%s:session:%s:history", k.UserID, k.SessionID)
}

// ParseKey inverts Key.String. Non-history keys are rejected so a shared
// store does not confuse the reconciliation sweep.
func ParseKey(raw string) (Key, bool) {
	parts := strings.Split(raw, ":")
	if len(parts) != 5 || parts[0] != "user" || parts[2] != "session" || parts[4] != "history" {
		return Key{}, false
	}
	if parts[1] == "" || parts[3] == "" {
		return Key{}, false
	}
	return Key{UserID: parts[1], SessionID: parts[3]}, true
}

// record is the wire form of one cached turn.
type record struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// History is the capped per-session sliding window over a KV store. It is
// a view of the tail of the durable log, never a source of truth, and it
// carries no ownership logic: callers check ownership before reaching it.
type History struct {
	kv  KV
	cap int
}

func NewHistory(kv KV) *History {
	return &History{kv: kv, cap: chat.WindowCap}
}

// Push appends a turn to the session window, evicting from the front once
// the window is full.
func (h *History) Push(ctx context.Context, key Key, turn chat.Turn) error {
	raw, err := json.Marshal(record{Type: string(turn.Role), Content: turn.Content})
	if err != nil {
		return fmt.Errorf("encode cached turn: %w", err)
	}
	return h.kv.PushTrim(ctx, key.String(), string(raw), h.cap)
}

// Get returns the cached window in append order. A missing window is an
// empty result, not an error.
func (h *History) Get(ctx context.Context, key Key) ([]chat.Turn, error) {
	raws, err := h.kv.Range(ctx, key.String())
	if err != nil {
		return nil, err
	}

	turns := make([]chat.Turn, 0, len(raws))
	for _, raw := range raws {
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode cached turn: %w", err)
		}
		role, err := chat.ParseRole(rec.Type)
		if err != nil {
			return nil, fmt.Errorf("decode cached turn: %w", err)
		}
		turns = append(turns, chat.Turn{
			SessionID: key.SessionID,
			Role:      role,
			Content:   rec.Content,
		})
	}
	return turns, nil
}

func (h *History) Exists(ctx context.Context, key Key) (bool, error) {
	return h.kv.Exists(ctx, key.String())
}

func (h *History) Clear(ctx context.Context, key Key) error {
	return h.kv.Del(ctx, key.String())
}

// Keys enumerates every cached session window for the reconciliation sweep.
func (h *History) Keys(ctx context.Context) ([]Key, error) {
	raws, err := h.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0, len(raws))
	for _, raw := range raws {
		if k, ok := ParseKey(raw); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
