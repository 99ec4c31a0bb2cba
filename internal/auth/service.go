// Package auth supplies signup/login and bearer-token verification. The
// core trusts whatever identity this layer resolves; ownership enforcement
// stays in the stores.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/antoniostano/scenegen/internal/chat"
	"github.com/antoniostano/scenegen/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type Service struct {
	store  store.Store
	secret []byte
	ttl    time.Duration
}

func NewService(st store.Store, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{store: st, secret: []byte(secret), ttl: ttl}
}

func (s *Service) Signup(ctx context.Context, username, password string) (chat.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return chat.User{}, errors.New("username cannot be empty")
	}
	if len(password) < 8 {
		return chat.User{}, errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return chat.User{}, fmt.Errorf("hash password: %w", err)
	}
	return s.store.CreateUser(ctx, username, string(hash))
}

func (s *Service) Login(ctx context.Context, username, password string) (string, chat.User, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return "", chat.User{}, ErrInvalidCredentials
		}
		return "", chat.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", chat.User{}, ErrInvalidCredentials
	}

	token := s.IssueToken(u.ID, time.Now().Add(s.ttl))
	return token, u, nil
}

// IssueToken signs "userID|expiry" with HMAC-SHA256. Tokens are opaque to
// clients and verified locally without store access.
func (s *Service) IssueToken(userID string, expiry time.Time) string {
	payload := fmt.Sprintf("%s|%d", userID, expiry.Unix())
	sig := s.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(payload + "|" + sig))
}

// VerifyToken returns the user ID carried by a valid, unexpired token.
func (s *Service) VerifyToken(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return "", ErrInvalidToken
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}
	userID, expStr, sig := parts[0], parts[1], parts[2]

	payload := userID + "|" + expStr
	if !hmac.Equal([]byte(s.sign(payload)), []byte(sig)) {
		return "", ErrInvalidToken
	}

	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil || time.Now().Unix() > exp {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func (s *Service) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
