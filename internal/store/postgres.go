package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antoniostano/scenegen/internal/chat"
)

const pgUniqueViolation = "23505"

// PostgresStore persists users, sessions and turns in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			session_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			name TEXT NOT NULL,
			prompt_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, name)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_seq ON messages (session_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) (chat.User, error) {
	u := chat.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return chat.User{}, chat.ErrAlreadyExists
		}
		return chat.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (chat.User, error) {
	var u chat.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, session_count, created_at FROM users WHERE username=$1`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.SessionCount, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.User{}, chat.ErrNotFound
		}
		return chat.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// CreateSession inserts a session and bumps the owner's counter in one
// transaction. The counter update is conditional on the current count so
// two concurrent creators cannot jointly exceed the limit.
func (s *PostgresStore) CreateSession(ctx context.Context, userID, name string) (chat.Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return chat.Session{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE users SET session_count = session_count + 1 WHERE id=$1 AND session_count < $2`,
		userID, chat.SessionLimit,
	)
	if err != nil {
		return chat.Session{}, fmt.Errorf("bump session count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&exists); err != nil {
			return chat.Session{}, fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return chat.Session{}, chat.ErrNotFound
		}
		return chat.Session{}, chat.ErrQuotaExceeded
	}

	sess := chat.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (id, user_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		sess.ID, sess.UserID, sess.Name, sess.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return chat.Session{}, chat.ErrAlreadyExists
		}
		return chat.Session{}, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return chat.Session{}, fmt.Errorf("commit tx: %w", err)
	}
	return sess, nil
}

// RestoreSession re-creates a session row that exists in the cache but not
// in the durable log. The insert keeps the cached session ID and counts
// against the owner without being quota-gated: the session already exists
// from the caller's point of view.
func (s *PostgresStore) RestoreSession(ctx context.Context, sessionID, userID, name string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return chat.ErrNotFound
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO sessions (id, user_id, name, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		sessionID, userID, name, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if tag.RowsAffected() > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET session_count = session_count + 1 WHERE id=$1`, userID,
		); err != nil {
			return fmt.Errorf("bump session count: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID, userID string) (chat.Session, error) {
	var sess chat.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, name, prompt_count, created_at FROM sessions WHERE id=$1`,
		sessionID,
	).Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.PromptCount, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.Session{}, chat.ErrNotFound
		}
		return chat.Session{}, fmt.Errorf("get session: %w", err)
	}
	if sess.UserID != userID {
		return chat.Session{}, chat.ErrOwnership
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, userID string) ([]chat.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, prompt_count, created_at FROM sessions WHERE user_id=$1 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]chat.Session, 0, 8)
	for rows.Next() {
		var sess chat.Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.PromptCount, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

// DeleteSession removes the session and its turns (FK cascade) and restores
// the owner's quota headroom.
func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ownerID, err := sessionOwner(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	if ownerID != userID {
		return chat.ErrOwnership
	}

	if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET session_count = GREATEST(session_count - 1, 0) WHERE id=$1`, userID,
	); err != nil {
		return fmt.Errorf("restore session count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// AppendTurn verifies ownership, bumps the session's prompt counter under
// the cap and inserts the turn, all in one transaction.
func (s *PostgresStore) AppendTurn(ctx context.Context, sessionID, userID string, role chat.Role, content string) (chat.Turn, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return chat.Turn{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ownerID, err := sessionOwner(ctx, tx, sessionID)
	if err != nil {
		return chat.Turn{}, err
	}
	if ownerID != userID {
		return chat.Turn{}, chat.ErrOwnership
	}

	tag, err := tx.Exec(ctx,
		`UPDATE sessions SET prompt_count = prompt_count + 1 WHERE id=$1 AND prompt_count < $2`,
		sessionID, chat.PromptLimit,
	)
	if err != nil {
		return chat.Turn{}, fmt.Errorf("bump prompt count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.Turn{}, chat.ErrQuotaExceeded
	}

	turn := chat.Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		turn.ID, turn.SessionID, string(turn.Role), turn.Content, turn.CreatedAt,
	)
	if err != nil {
		return chat.Turn{}, fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return chat.Turn{}, fmt.Errorf("commit tx: %w", err)
	}
	return turn, nil
}

func (s *PostgresStore) ListTurns(ctx context.Context, sessionID, userID string) ([]chat.Turn, error) {
	if _, err := s.GetSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	// Ordered by the insert sequence, not created_at: rewrites during a
	// reconcile pass can stamp many turns within one clock tick.
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages WHERE session_id=$1 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	out := make([]chat.Turn, 0, chat.WindowCap)
	for rows.Next() {
		var (
			turn chat.Turn
			role string
		)
		if err := rows.Scan(&turn.ID, &turn.SessionID, &role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turn.Role = chat.Role(role)
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return out, nil
}

// DeleteTurns clears the session's log and resets the prompt counter so a
// cleared or rewritten session can accept appends again.
func (s *PostgresStore) DeleteTurns(ctx context.Context, sessionID, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ownerID, err := sessionOwner(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	if ownerID != userID {
		return chat.ErrOwnership
	}

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE session_id=$1`, sessionID); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE sessions SET prompt_count = 0 WHERE id=$1`, sessionID); err != nil {
		return fmt.Errorf("reset prompt count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func sessionOwner(ctx context.Context, tx pgx.Tx, sessionID string) (string, error) {
	var ownerID string
	err := tx.QueryRow(ctx, `SELECT user_id FROM sessions WHERE id=$1`, sessionID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", chat.ErrNotFound
		}
		return "", fmt.Errorf("lookup session owner: %w", err)
	}
	return ownerID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
