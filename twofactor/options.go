// Package twofactor holds the two screens of TOTP two-factor auth: the
// enrollment wizard (scan the QR code, confirm a code, save backup codes)
// and the login-time verification step.
package twofactor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panyam/authflow"
	"github.com/panyam/authflow/cache"
	"github.com/panyam/authflow/otp"
)

// DefaultCopiedReset is how long a copied backup code stays flagged
const DefaultCopiedReset = 2 * time.Second

var (
	// ErrNotStarted is returned when the QR step is left before setup data arrived
	ErrNotStarted = errors.New("two-factor setup has not started")

	// ErrCodesNotConfirmed is returned by Finish until the user confirms the
	// backup codes are saved
	ErrCodesNotConfirmed = errors.New("backup codes have not been confirmed as saved")

	// ErrWrongStep is returned by actions that do not belong to the current step
	ErrWrongStep = errors.New("action not available on this step")

	// ErrBusy is returned when a request is already in flight
	ErrBusy = errors.New("another request is in progress")

	// ErrNoClipboard is returned by CopyCode when no clipboard is configured
	ErrNoClipboard = errors.New("no clipboard available")
)

// Clipboard receives copied backup codes
type Clipboard interface {
	WriteText(text string) error
}

// ClipboardFunc adapts a function to Clipboard
type ClipboardFunc func(text string) error

func (f ClipboardFunc) WriteText(text string) error { return f(text) }

type settings struct {
	clipboard   Clipboard
	copiedReset time.Duration
	submitDelay time.Duration
	codeLength  int
	logger      *slog.Logger
	cache       cache.Cache[*authflow.User]
}

func defaults() settings {
	return settings{
		copiedReset: DefaultCopiedReset,
		submitDelay: otp.DefaultSubmitDelay,
		codeLength:  otp.DefaultLength,
		logger:      slog.Default(),
	}
}

// Option configures a SetupWizard or VerifyFlow
type Option func(*settings)

// WithClipboard sets where CopyCode writes
func WithClipboard(c Clipboard) Option {
	return func(s *settings) { s.clipboard = c }
}

// WithCopiedReset sets how long the copied flag stays on
func WithCopiedReset(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.copiedReset = d
		}
	}
}

// WithSubmitDelay sets the OTP auto-submit delay. Zero submits immediately.
func WithSubmitDelay(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.submitDelay = d
		}
	}
}

// WithCodeLength sets the number of digits in an authenticator code
func WithCodeLength(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.codeLength = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCache sets the current-user cache invalidated when 2FA completes
func WithCache(c cache.Cache[*authflow.User]) Option {
	return func(s *settings) { s.cache = c }
}

func (s settings) invalidateUser() {
	if s.cache != nil {
		s.cache.Del(cache.KeyCurrentUser)
	}
}

// validTOTP reports whether code is exactly codeLength digits
func (s settings) validTOTP(code string) bool {
	return len(code) == s.codeLength && otp.Digits(code) == code
}

func (s settings) invalidTOTP() error {
	msg := fmt.Sprintf("Please enter the %d-digit code from your authenticator app", s.codeLength)
	return authflow.NewAuthError(authflow.ErrCodeInvalidCode, msg, "code")
}
