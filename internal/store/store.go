package store

import (
	"context"

	"github.com/antoniostano/scenegen/internal/chat"
)

// Store is the authoritative, ordered, per-session turn log. Every
// operation that touches an owned resource verifies ownership before
// mutating; quota checks happen atomically with the insert.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (chat.User, error)
	GetUserByUsername(ctx context.Context, username string) (chat.User, error)

	CreateSession(ctx context.Context, userID, name string) (chat.Session, error)
	// RestoreSession re-inserts a session under a known ID during
	// reconciliation. Idempotent; not quota-gated.
	RestoreSession(ctx context.Context, sessionID, userID, name string) error
	GetSession(ctx context.Context, sessionID, userID string) (chat.Session, error)
	ListSessions(ctx context.Context, userID string) ([]chat.Session, error)
	DeleteSession(ctx context.Context, sessionID, userID string) error

	AppendTurn(ctx context.Context, sessionID, userID string, role chat.Role, content string) (chat.Turn, error)
	ListTurns(ctx context.Context, sessionID, userID string) ([]chat.Turn, error)
	DeleteTurns(ctx context.Context, sessionID, userID string) error

	Close() error
}
