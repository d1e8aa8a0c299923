// Package store is the durable auth state container.
//
// A Store holds one authflow.AuthState together with the bearer credential
// issued for it. Every mutation replaces the state in one step under a lock,
// is persisted to the Backend before returning and is then announced to
// subscribers. Reads return copies and never touch the backend.
//
// Several Stores may be opened on the same Backend (for example two CLI
// processes sharing one file). A Store opened later starts from the latest
// persisted record, and Refresh re-reads it for long lived readers.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panyam/authflow"
)

// ErrInconsistentTwoFactor is returned when a mutation would mark 2FA as
// verified while it is not enabled.
var ErrInconsistentTwoFactor = errors.New("two-factor cannot be verified while disabled")

// ErrClosed is returned by mutations on a closed store
var ErrClosed = errors.New("store is closed")

// Mutation edits a working copy of the state. Mutations passed to Apply
// together are committed as one update or not at all.
type Mutation func(s *authflow.AuthState) error

// Store is the auth state container
type Store struct {
	mu      sync.RWMutex
	backend Backend
	logger  *slog.Logger
	state   authflow.AuthState
	cred    *authflow.Credential
	closed  bool

	subMu    sync.Mutex
	subs     map[int]func(authflow.AuthState)
	nextSub  int
	onLogout []func()
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open loads the persisted record from backend. A missing record yields the
// initial anonymous state.
func Open(backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		subs:    make(map[int]func(authflow.AuthState)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := s.backend.Load(RecordKey)
	if err != nil {
		return fmt.Errorf("failed to load auth state: %w", err)
	}
	if data == nil {
		s.state = authflow.AuthState{}
		s.cred = nil
		return nil
	}
	state, cred, err := decodeRecord(data)
	if err != nil {
		return err
	}
	s.state = state
	s.cred = cred
	return nil
}

// State returns a copy of the current state
func (s *Store) State() authflow.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Refresh re-reads the persisted record, picking up writes made by other
// stores on the same backend. Subscribers are notified if the state changed.
func (s *Store) Refresh() error {
	s.mu.Lock()
	before := s.state.Clone()
	if err := s.load(); err != nil {
		s.mu.Unlock()
		return err
	}
	after := s.state.Clone()
	s.mu.Unlock()

	if !sameState(before, after) {
		s.notify(after)
	}
	return nil
}

// Apply runs mutations against a copy of the state, checks the invariants,
// persists the result and only then makes it visible.
func (s *Store) Apply(mutations ...Mutation) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	next := s.state.Clone()
	for _, m := range mutations {
		if err := m(&next); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	if next.TwoFactorVerified && !next.TwoFactorEnabled {
		s.mu.Unlock()
		return ErrInconsistentTwoFactor
	}
	if !next.IsAuthenticated {
		next.User = nil
	}
	if err := s.persist(next, s.cred); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	snapshot := next.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// Login marks the session authenticated for user
func (s *Store) Login(user *authflow.User, opts ...LoginOption) error {
	return s.Apply(LoginUser(user, opts...))
}

// SetTwoFactorStatus sets all three 2FA flags together
func (s *Store) SetTwoFactorStatus(enabled, verified, requiresSetup bool) error {
	return s.Apply(TwoFactorStatus(enabled, verified, requiresSetup))
}

// SetEmailVerified updates only the email verification flag
func (s *Store) SetEmailVerified(verified bool) error {
	return s.Apply(EmailVerified(verified))
}

// Logout resets the state, drops the credential and runs the OnLogout hooks
// so cached server data is purged.
func (s *Store) Logout() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err := s.backend.Delete(RecordKey); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to clear auth state: %w", err)
	}
	s.state = authflow.AuthState{}
	s.cred = nil
	s.mu.Unlock()

	s.subMu.Lock()
	hooks := append([]func(){}, s.onLogout...)
	s.subMu.Unlock()
	for _, h := range hooks {
		h()
	}

	s.notify(authflow.AuthState{})
	s.logger.Info("logged out", "component", "store")
	return nil
}

// OnLogout registers fn to run after every Logout
func (s *Store) OnLogout(fn func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

// Subscribe registers fn to receive every committed state. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(authflow.AuthState)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(state authflow.AuthState) {
	s.subMu.Lock()
	fns := make([]func(authflow.AuthState), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(state.Clone())
	}
}

// Credential implements client.TokenStore
func (s *Store) Credential() (*authflow.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return nil, nil
	}
	c := *s.cred
	return &c, nil
}

// SetCredential implements client.TokenStore
func (s *Store) SetCredential(cred *authflow.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	var next *authflow.Credential
	if cred != nil {
		c := *cred
		next = &c
	}
	if err := s.persist(s.state, next); err != nil {
		return err
	}
	s.cred = next
	return nil
}

// ClearCredential implements client.TokenStore
func (s *Store) ClearCredential() error {
	return s.SetCredential(nil)
}

// Close closes the backend
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}

// persist must be called with s.mu held
func (s *Store) persist(state authflow.AuthState, cred *authflow.Credential) error {
	data, err := encodeRecord(state, cred)
	if err != nil {
		return fmt.Errorf("failed to encode auth state: %w", err)
	}
	if err := s.backend.Save(RecordKey, data); err != nil {
		s.logger.Error("failed to persist auth state", "component", "store", "err", err)
		return fmt.Errorf("failed to persist auth state: %w", err)
	}
	return nil
}

func sameState(a, b authflow.AuthState) bool {
	ua, ub := a.User, b.User
	a.User, b.User = nil, nil
	if a != b {
		return false
	}
	if ua == nil || ub == nil {
		return ua == ub
	}
	return ua.ID == ub.ID && ua.Email == ub.Email && ua.EmailVerified == ub.EmailVerified && ua.Name() == ub.Name()
}
