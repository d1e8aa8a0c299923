package store

import (
	"errors"

	"github.com/panyam/authflow"
)

// LoginOption adjusts a LoginUser mutation
type LoginOption func(*loginOptions)

type loginOptions struct {
	provider      string
	emailVerified *bool
}

// WithProvider tags the session with the OAuth provider that issued it
func WithProvider(provider string) LoginOption {
	return func(o *loginOptions) { o.provider = provider }
}

// WithEmailVerified overrides the email flag taken from the user record
func WithEmailVerified(verified bool) LoginOption {
	return func(o *loginOptions) { o.emailVerified = &verified }
}

// LoginUser authenticates the state as user. The setup-pending flag is
// cleared since a full login means no second factor is owed.
func LoginUser(user *authflow.User, opts ...LoginOption) Mutation {
	var o loginOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(s *authflow.AuthState) error {
		if user == nil {
			return errors.New("login requires a user")
		}
		s.IsAuthenticated = true
		s.User = user.Clone()
		s.OAuthProvider = o.provider
		s.EmailVerified = user.EmailVerified
		if o.emailVerified != nil {
			s.EmailVerified = *o.emailVerified
		}
		s.RequiresTwoFactorSetup = false
		return nil
	}
}

// PendingProvider records the OAuth provider of a sign-in that is still
// waiting on a second factor, so the eventual login keeps the tag.
func PendingProvider(provider string) Mutation {
	return func(s *authflow.AuthState) error {
		s.OAuthProvider = provider
		return nil
	}
}

// TwoFactorStatus sets the three 2FA flags together
func TwoFactorStatus(enabled, verified, requiresSetup bool) Mutation {
	return func(s *authflow.AuthState) error {
		if verified && !enabled {
			return ErrInconsistentTwoFactor
		}
		s.TwoFactorEnabled = enabled
		s.TwoFactorVerified = verified
		s.RequiresTwoFactorSetup = requiresSetup
		return nil
	}
}

// EmailVerified sets the email flag, mirroring it on the stored user
func EmailVerified(verified bool) Mutation {
	return func(s *authflow.AuthState) error {
		s.EmailVerified = verified
		if s.User != nil {
			s.User.EmailVerified = verified
		}
		return nil
	}
}
