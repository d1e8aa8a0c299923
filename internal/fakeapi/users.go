package fakeapi

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/panyam/authflow"
)

// account is a user as the stub server sees it
type account struct {
	user         authflow.User
	passwordHash []byte

	twoFactorEnabled bool
	// setupRequired forces 2FA enrollment at the next login
	setupRequired bool
	pendingSecret string
	secret        string
	backupCodes   map[string]bool
}

type accounts struct {
	mu      sync.RWMutex
	byID    map[string]*account
	byEmail map[string]*account
}

func newAccounts() *accounts {
	return &accounts{
		byID:    make(map[string]*account),
		byEmail: make(map[string]*account),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *accounts) create(email, password string) (*account, error) {
	key := normalizeEmail(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byEmail[key]; ok {
		return nil, errEmailExists
	}
	acct := &account{
		user:         authflow.User{ID: uuid.NewString(), Email: key},
		passwordHash: hash,
		backupCodes:  map[string]bool{},
	}
	a.byID[acct.user.ID] = acct
	a.byEmail[key] = acct
	return acct, nil
}

func (a *accounts) get(id string) (*account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acct, ok := a.byID[id]
	return acct, ok
}

func (a *accounts) find(email string) (*account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acct, ok := a.byEmail[normalizeEmail(email)]
	return acct, ok
}

// update runs fn with the write lock held
func (a *accounts) update(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn()
}

func checkPassword(acct *account, password string) bool {
	return bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)) == nil
}

// UserOption adjusts an account created by SeedUser
type UserOption func(*account)

// WithVerifiedEmail marks the seeded user's email verified
func WithVerifiedEmail() UserOption {
	return func(a *account) { a.user.EmailVerified = true }
}

// WithTwoFactor enables 2FA for the seeded user
func WithTwoFactor() UserOption {
	return func(a *account) {
		a.twoFactorEnabled = true
		a.secret = newSecret()
		for _, c := range newBackupCodes(BackupCodeCount) {
			a.backupCodes[normalizeBackupCode(c)] = true
		}
	}
}

// WithSetupRequired makes the seeded user enroll in 2FA at login
func WithSetupRequired() UserOption {
	return func(a *account) { a.setupRequired = true }
}

// WithName sets the seeded user's first and last name
func WithName(first, last string) UserOption {
	return func(a *account) {
		a.user.FirstName = &first
		a.user.LastName = &last
	}
}

// BackupCodeCount is how many backup codes enrollment issues
const BackupCodeCount = 10

const backupAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newBackupCodes returns n codes shaped XXXX-XXXX
func newBackupCodes(n int) []string {
	codes := make([]string, n)
	buf := make([]byte, 8)
	for i := range codes {
		rand.Read(buf)
		var b strings.Builder
		for k, c := range buf {
			if k == 4 {
				b.WriteByte('-')
			}
			b.WriteByte(backupAlphabet[int(c)%len(backupAlphabet)])
		}
		codes[i] = b.String()
	}
	return codes
}

func normalizeBackupCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

func newSecret() string {
	b := make([]byte, 20)
	rand.Read(b)
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)
}

func (a *accounts) rehash(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
}
