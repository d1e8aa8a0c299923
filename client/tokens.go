// Package client is the HTTP JSON client for the auth API.
// It covers every auth endpoint, keeps the bearer credential in a
// TokenStore, and streams server-sent-event tasks with explicit cancel.
package client

import (
	"sync"

	"github.com/panyam/authflow"
)

// TokenStore defines where the client keeps its bearer credential.
// store.Store implements it so the credential is persisted next to the
// auth state.
type TokenStore interface {
	// Credential returns the stored credential.
	// Returns nil, nil if none exists.
	Credential() (*authflow.Credential, error)

	// SetCredential replaces the stored credential
	SetCredential(cred *authflow.Credential) error

	// ClearCredential removes the stored credential
	ClearCredential() error
}

// MemoryTokenStore keeps the credential in memory only
type MemoryTokenStore struct {
	mu   sync.RWMutex
	cred *authflow.Credential
}

// NewMemoryTokenStore creates an empty in-memory token store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Credential() (*authflow.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred == nil {
		return nil, nil
	}
	c := *m.cred
	return &c, nil
}

func (m *MemoryTokenStore) SetCredential(cred *authflow.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cred == nil {
		m.cred = nil
		return nil
	}
	c := *cred
	m.cred = &c
	return nil
}

func (m *MemoryTokenStore) ClearCredential() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = nil
	return nil
}
