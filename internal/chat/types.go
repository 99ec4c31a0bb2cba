package chat

import (
	"fmt"
	"time"
)

// Role tags one side of a conversation. The set is closed: a turn is
// either something the user said or something the model answered.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

// ParseRole validates a wire-level role tag.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleHuman, RoleAI:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Limits enforced at the durable-store write boundary.
const (
	// SessionLimit caps the number of sessions a single user may hold.
	SessionLimit = 10
	// PromptLimit caps the number of turns persisted per session.
	PromptLimit = 20
	// WindowCap bounds the per-session fast-cache window.
	WindowCap = 20
)

// Turn is a single role-tagged utterance within a session. Turns are
// immutable once created; they are only appended or bulk-deleted when a
// session is cleared or rewritten during reconciliation.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a named, owned, bounded conversation thread.
type Session struct {
	ID          string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	PromptCount int       `json:"prompt_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// User is an account record. Only the counters ever change after signup.
type User struct {
	ID           string    `json:"user_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	SessionCount int       `json:"session_count"`
	CreatedAt    time.Time `json:"created_at"`
}
