package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/antoniostano/scenegen/internal/cache"
	"github.com/antoniostano/scenegen/internal/chat"
	"github.com/antoniostano/scenegen/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store *store.MemStore
	kv    *cache.MemKV
	hist  *cache.History
	coord *Coordinator
	user  chat.User
	sess  chat.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemStore()
	kv := cache.NewMemKV()
	hist := cache.NewHistory(kv)

	u, err := st.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	sess, err := st.CreateSession(ctx, u.ID, "main")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	return &fixture{
		store: st,
		kv:    kv,
		hist:  hist,
		coord: NewCoordinator(st, hist, nil, testLogger()),
		user:  u,
		sess:  sess,
	}
}

func TestSaveTurnWritesThroughToBothTiers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	turn, err := f.coord.SaveTurn(ctx, f.sess.ID, f.user.ID, chat.RoleHuman, "draw a circle")
	if err != nil {
		t.Fatalf("SaveTurn() error = %v", err)
	}
	if turn.ID == "" {
		t.Fatalf("saved turn has no ID")
	}

	durable, err := f.store.ListTurns(ctx, f.sess.ID, f.user.ID)
	if err != nil {
		t.Fatalf("ListTurns() error = %v", err)
	}
	if len(durable) != 1 || durable[0].Content != "draw a circle" {
		t.Fatalf("durable turns = %+v, want the saved turn", durable)
	}

	cached, err := f.hist.Get(ctx, cache.Key{UserID: f.user.ID, SessionID: f.sess.ID})
	if err != nil {
		t.Fatalf("cache Get() error = %v", err)
	}
	if len(cached) != 1 || cached[0].Content != "draw a circle" {
		t.Fatalf("cached turns = %+v, want the saved turn", cached)
	}
}

// failingStore rejects appends so the write-through ordering can be
// observed: a failed durable write must leave the cache untouched.
type failingStore struct {
	store.Store
}

func (f *failingStore) AppendTurn(context.Context, string, string, chat.Role, string) (chat.Turn, error) {
	return chat.Turn{}, errors.New("durable write refused")
}

func TestSaveTurnDoesNotCacheWhenDurableWriteFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	coord := NewCoordinator(&failingStore{Store: f.store}, f.hist, nil, testLogger())

	if _, err := coord.SaveTurn(ctx, f.sess.ID, f.user.ID, chat.RoleHuman, "lost"); err == nil {
		t.Fatalf("SaveTurn() succeeded, want error")
	}

	cached, err := f.hist.Get(ctx, cache.Key{UserID: f.user.ID, SessionID: f.sess.ID})
	if err != nil {
		t.Fatalf("cache Get() error = %v", err)
	}
	if len(cached) != 0 {
		t.Fatalf("cache holds %d turns after failed durable write, want 0", len(cached))
	}
}

func TestLoadHistoryBackfillsCacheOnMiss(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Turns written directly to the durable log, bypassing the cache.
	for i := 0; i < 3; i++ {
		if _, err := f.store.AppendTurn(ctx, f.sess.ID, f.user.ID, chat.RoleHuman, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("AppendTurn(%d) error = %v", i, err)
		}
	}

	turns, err := f.coord.LoadHistory(ctx, f.sess.ID, f.user.ID)
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("len(turns) = %d, want 3", len(turns))
	}

	cached, err := f.hist.Get(ctx, cache.Key{UserID: f.user.ID, SessionID: f.sess.ID})
	if err != nil {
		t.Fatalf("cache Get() error = %v", err)
	}
	if len(cached) != 3 {
		t.Fatalf("cache holds %d turns after backfill, want 3", len(cached))
	}
	if cached[0].Content != "turn 0" || cached[2].Content != "turn 2" {
		t.Fatalf("backfill out of order: %+v", cached)
	}
}

func TestLoadHistoryServesFromCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	key := cache.Key{UserID: f.user.ID, SessionID: f.sess.ID}
	if err := f.hist.Push(ctx, key, chat.Turn{Role: chat.RoleAI, Content: "cached only"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	// Nothing durable exists, so a result proves the cache answered.
	turns, err := f.coord.LoadHistory(ctx, f.sess.ID, f.user.ID)
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "cached only" {
		t.Fatalf("turns = %+v, want the cached turn", turns)
	}
}

// brokenKV fails every operation, standing in for an unreachable cache.
type brokenKV struct{}

func (brokenKV) PushTrim(context.Context, string, string, int) error { return errors.New("kv down") }
func (brokenKV) Range(context.Context, string) ([]string, error)     { return nil, errors.New("kv down") }
func (brokenKV) Exists(context.Context, string) (bool, error)        { return false, errors.New("kv down") }
func (brokenKV) Del(context.Context, string) error                   { return errors.New("kv down") }
func (brokenKV) Keys(context.Context, string) ([]string, error)      { return nil, errors.New("kv down") }
func (brokenKV) Close() error                                        { return nil }

func TestLoadHistoryFallsBackWhenCacheUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	coord := NewCoordinator(f.store, cache.NewHistory(brokenKV{}), nil, testLogger())

	if _, err := f.store.AppendTurn(ctx, f.sess.ID, f.user.ID, chat.RoleHuman, "survives"); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	turns, err := coord.LoadHistory(ctx, f.sess.ID, f.user.ID)
	if err != nil {
		t.Fatalf("LoadHistory() error = %v, want durable fallback", err)
	}
	if len(turns) != 1 || turns[0].Content != "survives" {
		t.Fatalf("turns = %+v, want the durable turn", turns)
	}
}

func TestLoadHistoryOwnershipStillEnforcedOnMiss(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mallory, err := f.store.CreateUser(ctx, "mallory", "hash")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if _, err := f.coord.LoadHistory(ctx, f.sess.ID, mallory.ID); !errors.Is(err, chat.ErrOwnership) {
		t.Fatalf("LoadHistory as non-owner error = %v, want ErrOwnership", err)
	}
}

func TestClearSessionEmptiesBothTiers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.coord.SaveTurn(ctx, f.sess.ID, f.user.ID, chat.RoleHuman, "hi"); err != nil {
		t.Fatalf("SaveTurn() error = %v", err)
	}
	if err := f.coord.ClearSession(ctx, f.sess.ID, f.user.ID); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}

	turns, err := f.store.ListTurns(ctx, f.sess.ID, f.user.ID)
	if err != nil {
		t.Fatalf("ListTurns() error = %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("durable turns remain after clear: %+v", turns)
	}
	exists, err := f.hist.Exists(ctx, cache.Key{UserID: f.user.ID, SessionID: f.sess.ID})
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Fatalf("cache window remains after clear")
	}
}

func TestSlidingWindowBoundsCacheButNotDurableLog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// More turns than the window holds. The durable prompt quota is reset
	// midway the way the reconciler does, so only the cache bound applies.
	total := chat.WindowCap + 6
	for i := 0; i < total; i++ {
		if i == chat.PromptLimit {
			if err := f.store.DeleteTurns(ctx, f.sess.ID, f.user.ID); err != nil {
				t.Fatalf("DeleteTurns() error = %v", err)
			}
		}
		if _, err := f.coord.SaveTurn(ctx, f.sess.ID, f.user.ID, chat.RoleHuman, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("SaveTurn(%d) error = %v", i, err)
		}
	}

	cached, err := f.hist.Get(ctx, cache.Key{UserID: f.user.ID, SessionID: f.sess.ID})
	if err != nil {
		t.Fatalf("cache Get() error = %v", err)
	}
	if len(cached) != chat.WindowCap {
		t.Fatalf("cache window = %d turns, want %d", len(cached), chat.WindowCap)
	}
	if cached[len(cached)-1].Content != fmt.Sprintf("turn %d", total-1) {
		t.Fatalf("newest cached turn = %q, want %q", cached[len(cached)-1].Content, fmt.Sprintf("turn %d", total-1))
	}
}

func TestSyncToDurableRewritesFromWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Durable log holds stale turns; the cache window is fresher.
	if _, err := f.store.AppendTurn(ctx, f.sess.ID, f.user.ID, chat.RoleHuman, "stale"); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	key := cache.Key{UserID: f.user.ID, SessionID: f.sess.ID}
	for i := 0; i < 4; i++ {
		if err := f.hist.Push(ctx, key, chat.Turn{Role: chat.RoleHuman, Content: fmt.Sprintf("fresh %d", i)}); err != nil {
			t.Fatalf("Push(%d) error = %v", i, err)
		}
	}

	if err := f.coord.SyncToDurable(ctx); err != nil {
		t.Fatalf("SyncToDurable() error = %v", err)
	}

	turns, err := f.store.ListTurns(ctx, f.sess.ID, f.user.ID)
	if err != nil {
		t.Fatalf("ListTurns() error = %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("durable turns = %d, want 4", len(turns))
	}
	if turns[0].Content != "fresh 0" {
		t.Fatalf("durable log still stale: %+v", turns)
	}
}

func TestSyncToDurableIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		if _, err := f.coord.SaveTurn(ctx, f.sess.ID, f.user.ID, chat.RoleAI, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("SaveTurn(%d) error = %v", i, err)
		}
	}

	for pass := 0; pass < 3; pass++ {
		if err := f.coord.SyncToDurable(ctx); err != nil {
			t.Fatalf("SyncToDurable() pass %d error = %v", pass, err)
		}
	}

	turns, err := f.store.ListTurns(ctx, f.sess.ID, f.user.ID)
	if err != nil {
		t.Fatalf("ListTurns() error = %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("durable turns = %d after repeated syncs, want 3", len(turns))
	}
}

func TestSyncToDurableRestoresMissingSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// A window for a session the durable store has never seen, as happens
	// when the database was reset while the cache survived.
	key := cache.Key{UserID: f.user.ID, SessionID: "orphan-session"}
	if err := f.hist.Push(ctx, key, chat.Turn{Role: chat.RoleHuman, Content: "orphaned"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	if err := f.coord.SyncToDurable(ctx); err != nil {
		t.Fatalf("SyncToDurable() error = %v", err)
	}

	turns, err := f.store.ListTurns(ctx, "orphan-session", f.user.ID)
	if err != nil {
		t.Fatalf("ListTurns() error = %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "orphaned" {
		t.Fatalf("restored turns = %+v, want the orphaned turn", turns)
	}
}

func TestSyncToDurableSkipsEmptyWindows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.coord.SyncToDurable(ctx); err != nil {
		t.Fatalf("SyncToDurable() on empty cache error = %v", err)
	}
}

func TestSyncToDurableReportsPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// One good window and one owned by an unknown user, which cannot be
	// restored.
	goodKey := cache.Key{UserID: f.user.ID, SessionID: f.sess.ID}
	if err := f.hist.Push(ctx, goodKey, chat.Turn{Role: chat.RoleHuman, Content: "good"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	badKey := cache.Key{UserID: "ghost-user", SessionID: "ghost-session"}
	if err := f.hist.Push(ctx, badKey, chat.Turn{Role: chat.RoleHuman, Content: "bad"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	err := f.coord.SyncToDurable(ctx)
	if err == nil {
		t.Fatalf("SyncToDurable() succeeded, want partial failure")
	}

	// The good window still landed.
	turns, listErr := f.store.ListTurns(ctx, f.sess.ID, f.user.ID)
	if listErr != nil {
		t.Fatalf("ListTurns() error = %v", listErr)
	}
	if len(turns) != 1 || turns[0].Content != "good" {
		t.Fatalf("good session not synced: %+v", turns)
	}
}
