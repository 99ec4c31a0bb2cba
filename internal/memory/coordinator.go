package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/antoniostano/scenegen/internal/cache"
	"github.com/antoniostano/scenegen/internal/chat"
	"github.com/antoniostano/scenegen/internal/observability"
	"github.com/antoniostano/scenegen/internal/store"
)

// Coordinator mediates between the history cache and the durable log:
// cache-aside reads, write-through writes. Ownership and quota enforcement
// live in the durable store; the cache never sees an unauthorized key.
type Coordinator struct {
	store   store.Store
	cache   *cache.History
	metrics *observability.Metrics
	log     *slog.Logger
}

func NewCoordinator(st store.Store, hist *cache.History, metrics *observability.Metrics, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{store: st, cache: hist, metrics: metrics, log: log}
}

// LoadHistory returns the session's recent turns. The cache is consulted
// first; on a miss the durable log is read (ownership-checked) and the
// cache back-filled in order. Cache read errors are non-fatal: the read
// falls through to the durable store.
func (c *Coordinator) LoadHistory(ctx context.Context, sessionID, userID string) ([]chat.Turn, error) {
	key := cache.Key{UserID: userID, SessionID: sessionID}

	cached, err := c.cache.Get(ctx, key)
	if err != nil {
		c.metrics.ObserveCacheRead("error")
		c.log.Warn("history cache read failed, falling back to durable log",
			"session_id", sessionID, "error", err)
	} else if len(cached) > 0 {
		c.metrics.ObserveCacheRead("hit")
		return cached, nil
	} else {
		c.metrics.ObserveCacheRead("miss")
	}

	turns, err := c.store.ListTurns(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	for _, turn := range turns {
		if err := c.cache.Push(ctx, key, turn); err != nil {
			c.log.Warn("history cache backfill failed", "session_id", sessionID, "error", err)
			break
		}
	}
	return turns, nil
}

// SaveTurn writes through: the durable append must commit before the cache
// is touched, so a crash between the two steps can only lose a cache entry,
// never a durable record. Ownership and quota errors propagate unchanged.
func (c *Coordinator) SaveTurn(ctx context.Context, sessionID, userID string, role chat.Role, content string) (chat.Turn, error) {
	turn, err := c.store.AppendTurn(ctx, sessionID, userID, role, content)
	if err != nil {
		return chat.Turn{}, err
	}
	if c.metrics != nil {
		c.metrics.TurnsSaved.WithLabelValues(string(role)).Inc()
	}

	key := cache.Key{UserID: userID, SessionID: sessionID}
	if err := c.cache.Push(ctx, key, turn); err != nil {
		// The durable write already committed; the window will be rebuilt
		// on the next cache miss.
		c.log.Warn("history cache push failed after durable write",
			"session_id", sessionID, "error", err)
	}
	return turn, nil
}

// ClearSession empties both the cache window and the durable log for the
// session (ownership-checked).
func (c *Coordinator) ClearSession(ctx context.Context, sessionID, userID string) error {
	if err := c.store.DeleteTurns(ctx, sessionID, userID); err != nil {
		return err
	}
	key := cache.Key{UserID: userID, SessionID: sessionID}
	if err := c.cache.Clear(ctx, key); err != nil {
		return fmt.Errorf("clear cached history: %w", err)
	}
	return nil
}

// SyncToDurable folds every cached window into the durable log. Each
// window is treated as the freshest known state for its session: the
// session's durable turns are deleted and rewritten from the window. Turns
// that had already fallen out of the window are lost; that matches how the
// service has always reconciled and is pinned by tests.
//
// Per-session failures are logged and skipped so one bad key cannot stall
// the sweep.
func (c *Coordinator) SyncToDurable(ctx context.Context) error {
	keys, err := c.cache.Keys(ctx)
	if err != nil {
		return fmt.Errorf("enumerate cached sessions: %w", err)
	}

	var failed int
	for _, key := range keys {
		if err := c.syncSession(ctx, key); err != nil {
			failed++
			c.log.Error("session sync failed",
				"session_id", key.SessionID, "user_id", key.UserID, "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("sync completed with %d of %d sessions failed", failed, len(keys))
	}
	return nil
}

func (c *Coordinator) syncSession(ctx context.Context, key cache.Key) error {
	turns, err := c.cache.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read cached window: %w", err)
	}
	if len(turns) == 0 {
		return nil
	}

	_, err = c.store.GetSession(ctx, key.SessionID, key.UserID)
	switch {
	case errors.Is(err, chat.ErrNotFound):
		if err := c.store.RestoreSession(ctx, key.SessionID, key.UserID, key.SessionID); err != nil {
			return fmt.Errorf("restore session: %w", err)
		}
	case err != nil:
		return err
	default:
		if err := c.store.DeleteTurns(ctx, key.SessionID, key.UserID); err != nil {
			return fmt.Errorf("clear durable turns: %w", err)
		}
	}

	for _, turn := range turns {
		if _, err := c.store.AppendTurn(ctx, key.SessionID, key.UserID, turn.Role, turn.Content); err != nil {
			return fmt.Errorf("rewrite turn: %w", err)
		}
	}
	return nil
}
