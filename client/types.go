package client

import (
	"github.com/panyam/authflow"
)

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe *bool  `json:"remember_me,omitempty"`
}

// LoginResponse is returned by POST /auth/login and the OAuth callback
type LoginResponse struct {
	AccessToken            string         `json:"access_token"`
	User                   *authflow.User `json:"user"`
	EmailVerified          bool           `json:"email_verified"`
	RequiresTwoFactor      bool           `json:"requires_two_factor"`
	TwoFactorEnabled       bool           `json:"two_factor_enabled"`
	TwoFactorSetupRequired bool           `json:"two_factor_setup_required"`
	TempToken              string         `json:"temp_token,omitempty"`
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// RegisterResponse is returned by POST /auth/register
type RegisterResponse struct {
	User    *authflow.User `json:"user"`
	Message string         `json:"message"`
}

// SetupResponse is returned by POST /two-factor/setup.
// QRCode is a data URI (data:image/png;base64,...).
type SetupResponse struct {
	Secret string `json:"secret"`
	QRCode string `json:"qr_code"`
}

// CodeRequest is the body of the 2FA enable and verify calls
type CodeRequest struct {
	Code string `json:"code"`
}

// EnableResponse is returned by POST /two-factor/enable
type EnableResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// VerifyTwoFactorResponse is returned by POST /auth/verify-2fa
type VerifyTwoFactorResponse struct {
	AccessToken      string         `json:"access_token,omitempty"`
	User             *authflow.User `json:"user"`
	EmailVerified    bool           `json:"email_verified"`
	TwoFactorEnabled bool           `json:"two_factor_enabled"`
}

// EmailRequest is the body of forgot-password and resend-verification
type EmailRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of POST /auth/reset-password
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// TokenRequest is the body of POST /auth/verify-email
type TokenRequest struct {
	Token string `json:"token"`
}

// MessageResponse is the generic acknowledgement body
type MessageResponse struct {
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// errorResponse covers the error body shapes the API sends
type errorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  any    `json:"detail,omitempty"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

func (e errorResponse) text() string {
	if e.Error != "" {
		return e.Error
	}
	if e.Message != "" {
		return e.Message
	}
	switch d := e.Detail.(type) {
	case string:
		return d
	case map[string]any:
		if m, ok := d["message"].(string); ok {
			return m
		}
	}
	return ""
}
