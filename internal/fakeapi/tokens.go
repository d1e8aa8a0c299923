package fakeapi

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// TokenType represents different types of emailed tokens
type TokenType string

const (
	TokenTypeEmailVerification TokenType = "email_verification"
	TokenTypePasswordReset     TokenType = "password_reset"
)

// Default token expiry durations
const (
	TokenExpiryEmailVerification = 24 * time.Hour
	TokenExpiryPasswordReset     = 1 * time.Hour
	TokenExpiryAccessToken       = 15 * time.Minute
)

var errTokenNotFound = errors.New("token not found")

// AuthToken is an emailed verification or reset token
type AuthToken struct {
	Token     string
	Type      TokenType
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// IsValid checks the token is unexpired and of the expected type
func (t *AuthToken) IsValid(expectedType TokenType) bool {
	return t.Type == expectedType && time.Now().Before(t.ExpiresAt)
}

// tokenStore keeps emailed tokens in memory
type tokenStore struct {
	mu     sync.Mutex
	tokens map[string]*AuthToken
}

func newTokenStore() *tokenStore {
	return &tokenStore{tokens: make(map[string]*AuthToken)}
}

func (s *tokenStore) create(userID, email string, tokenType TokenType, expiry time.Duration) (*AuthToken, error) {
	value, err := generateSecureToken()
	if err != nil {
		return nil, err
	}
	t := &AuthToken{
		Token:     value,
		Type:      tokenType,
		UserID:    userID,
		Email:     email,
		ExpiresAt: time.Now().Add(expiry),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[value] = t
	return t, nil
}

// consume returns the token and deletes it (one-time use)
func (s *tokenStore) consume(value string, tokenType TokenType) (*AuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok || !t.IsValid(tokenType) {
		return nil, errTokenNotFound
	}
	delete(s.tokens, value)
	return t, nil
}

// generateSecureToken generates a cryptographically secure random token
func generateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
