package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/antoniostano/scenegen/internal/chat"
)

func TestHistoryPushTrimsToWindowCap(t *testing.T) {
	ctx := context.Background()
	h := NewHistory(NewMemKV())
	key := Key{UserID: "u1", SessionID: "s1"}

	total := chat.WindowCap + 5
	for i := 0; i < total; i++ {
		turn := chat.Turn{Role: chat.RoleHuman, Content: fmt.Sprintf("turn %d", i)}
		if err := h.Push(ctx, key, turn); err != nil {
			t.Fatalf("Push(%d) error = %v", i, err)
		}
	}

	turns, err := h.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(turns) != chat.WindowCap {
		t.Fatalf("window size = %d, want %d", len(turns), chat.WindowCap)
	}
	if turns[0].Content != "turn 5" {
		t.Fatalf("oldest surviving turn = %q, want %q", turns[0].Content, "turn 5")
	}
	if turns[len(turns)-1].Content != fmt.Sprintf("turn %d", total-1) {
		t.Fatalf("newest turn = %q, want %q", turns[len(turns)-1].Content, fmt.Sprintf("turn %d", total-1))
	}
}

func TestHistoryRoundTripPreservesRolesAndOrder(t *testing.T) {
	ctx := context.Background()
	h := NewHistory(NewMemKV())
	key := Key{UserID: "u1", SessionID: "s1"}

	if err := h.Push(ctx, key, chat.Turn{Role: chat.RoleHuman, Content: "draw a circle"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := h.Push(ctx, key, chat.Turn{Role: chat.RoleAI, Content: "class CircleScene(Scene): ..."}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	turns, err := h.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	if turns[0].Role != chat.RoleHuman || turns[1].Role != chat.RoleAI {
		t.Fatalf("roles = %q, %q, want human then ai", turns[0].Role, turns[1].Role)
	}
	if turns[0].SessionID != "s1" {
		t.Fatalf("SessionID = %q, want %q", turns[0].SessionID, "s1")
	}
}

func TestHistoryGetMissingWindowIsEmpty(t *testing.T) {
	h := NewHistory(NewMemKV())
	turns, err := h.Get(context.Background(), Key{UserID: "u", SessionID: "nope"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("len(turns) = %d, want 0", len(turns))
	}
}

func TestHistoryClear(t *testing.T) {
	ctx := context.Background()
	h := NewHistory(NewMemKV())
	key := Key{UserID: "u1", SessionID: "s1"}

	if err := h.Push(ctx, key, chat.Turn{Role: chat.RoleHuman, Content: "hi"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := h.Clear(ctx, key); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	exists, err := h.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Fatalf("window still exists after Clear")
	}
}

func TestHistoryLongConversationThenClear(t *testing.T) {
	ctx := context.Background()
	h := NewHistory(NewMemKV())
	key := Key{UserID: "u1", SessionID: "s1"}

	// 25 prompt/answer pairs, far past the window.
	for i := 0; i < 25; i++ {
		if err := h.Push(ctx, key, chat.Turn{Role: chat.RoleHuman, Content: fmt.Sprintf("prompt %d", i)}); err != nil {
			t.Fatalf("Push(human %d) error = %v", i, err)
		}
		if err := h.Push(ctx, key, chat.Turn{Role: chat.RoleAI, Content: fmt.Sprintf("answer %d", i)}); err != nil {
			t.Fatalf("Push(ai %d) error = %v", i, err)
		}
	}

	turns, err := h.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(turns) != chat.WindowCap {
		t.Fatalf("window size = %d, want %d", len(turns), chat.WindowCap)
	}
	if turns[len(turns)-1].Content != "answer 24" {
		t.Fatalf("newest turn = %q, want %q", turns[len(turns)-1].Content, "answer 24")
	}

	if err := h.Clear(ctx, key); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	turns, err = h.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() after clear error = %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("window not empty after clear: %d turns", len(turns))
	}
}

func TestHistoryKeysSkipsForeignEntries(t *testing.T) {
	ctx := context.Background()
	kv := NewMemKV()
	h := NewHistory(kv)

	if err := h.Push(ctx, Key{UserID: "u1", SessionID: "s1"}, chat.Turn{Role: chat.RoleHuman, Content: "a"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := h.Push(ctx, Key{UserID: "u2", SessionID: "s9"}, chat.Turn{Role: chat.RoleAI, Content: "b"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	// A shared store may hold keys this service never wrote.
	if err := kv.PushTrim(ctx, "user:u1:profile", "x", 0); err != nil {
		t.Fatalf("PushTrim() error = %v", err)
	}

	keys, err := h.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("len(keys) = %d, want 2", len(keys))
	}
	for _, k := range keys {
		if k.UserID == "" || k.SessionID == "" {
			t.Fatalf("parsed key has empty fields: %+v", k)
		}
	}
}

func TestParseKey(t *testing.T) {
	k, ok := ParseKey("user:u1:session:s1:history")
	if !ok {
		t.Fatalf("ParseKey rejected a valid key")
	}
	if k.UserID != "u1" || k.SessionID != "s1" {
		t.Fatalf("ParseKey = %+v, want u1/s1", k)
	}

	for _, raw := range []string{
		"",
		"user:u1:session:s1",
		"user::session:s1:history",
		"user:u1:session::history",
		"session:u1:user:s1:history",
		"user:u1:session:s1:profile",
	} {
		if _, ok := ParseKey(raw); ok {
			t.Fatalf("ParseKey accepted %q", raw)
		}
	}
}
