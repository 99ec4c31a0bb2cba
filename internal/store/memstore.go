package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/scenegen/internal/chat"
)

// MemStore is an in-process Store for local/dev use and tests. The single
// mutex gives it the same check-and-increment atomicity the Postgres
// implementation gets from conditional updates.
type MemStore struct {
	mu          sync.Mutex
	users       map[string]*chat.User
	usersByName map[string]string
	sessions    map[string]*chat.Session
	turns       map[string][]chat.Turn
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:       make(map[string]*chat.User),
		usersByName: make(map[string]string),
		sessions:    make(map[string]*chat.Session),
		turns:       make(map[string][]chat.Turn),
	}
}

func (s *MemStore) CreateUser(_ context.Context, username, passwordHash string) (chat.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByName[username]; ok {
		return chat.User{}, chat.ErrAlreadyExists
	}
	u := &chat.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[u.ID] = u
	s.usersByName[username] = u.ID
	return *u, nil
}

func (s *MemStore) GetUserByUsername(_ context.Context, username string) (chat.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByName[username]
	if !ok {
		return chat.User{}, chat.ErrNotFound
	}
	return *s.users[id], nil
}

func (s *MemStore) CreateSession(_ context.Context, userID, name string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return chat.Session{}, chat.ErrNotFound
	}
	if u.SessionCount >= chat.SessionLimit {
		return chat.Session{}, chat.ErrQuotaExceeded
	}
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Name == name {
			return chat.Session{}, chat.ErrAlreadyExists
		}
	}

	sess := &chat.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	s.sessions[sess.ID] = sess
	u.SessionCount++
	return *sess, nil
}

func (s *MemStore) RestoreSession(_ context.Context, sessionID, userID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return chat.ErrNotFound
	}
	if _, ok := s.sessions[sessionID]; ok {
		return nil
	}
	s.sessions[sessionID] = &chat.Session{
		ID:        sessionID,
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	u.SessionCount++
	return nil
}

func (s *MemStore) GetSession(_ context.Context, sessionID, userID string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.ownedSession(sessionID, userID)
	if err != nil {
		return chat.Session{}, err
	}
	return *sess, nil
}

func (s *MemStore) ListSessions(_ context.Context, userID string) ([]chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chat.Session, 0, 8)
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, *sess)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *MemStore) DeleteSession(_ context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.ownedSession(sessionID, userID)
	if err != nil {
		return err
	}
	delete(s.sessions, sessionID)
	delete(s.turns, sessionID)
	if u, ok := s.users[sess.UserID]; ok && u.SessionCount > 0 {
		u.SessionCount--
	}
	return nil
}

func (s *MemStore) AppendTurn(_ context.Context, sessionID, userID string, role chat.Role, content string) (chat.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.ownedSession(sessionID, userID)
	if err != nil {
		return chat.Turn{}, err
	}
	if sess.PromptCount >= chat.PromptLimit {
		return chat.Turn{}, chat.ErrQuotaExceeded
	}

	turn := chat.Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	sess.PromptCount++
	return turn, nil
}

func (s *MemStore) ListTurns(_ context.Context, sessionID, userID string) ([]chat.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedSession(sessionID, userID); err != nil {
		return nil, err
	}
	arr := s.turns[sessionID]
	out := make([]chat.Turn, len(arr))
	copy(out, arr)
	return out, nil
}

func (s *MemStore) DeleteTurns(_ context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.ownedSession(sessionID, userID)
	if err != nil {
		return err
	}
	delete(s.turns, sessionID)
	sess.PromptCount = 0
	return nil
}

func (s *MemStore) ownedSession(sessionID, userID string) (*chat.Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, chat.ErrNotFound
	}
	if sess.UserID != userID {
		return nil, chat.ErrOwnership
	}
	return sess, nil
}

func (s *MemStore) Close() error { return nil }
