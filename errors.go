package authflow

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies failures by how the UI reacts to them
type ErrorKind int

const (
	// KindValidation errors are detected client side and never reach the network
	KindValidation ErrorKind = iota
	// KindRejected errors are expected server rejections (bad credentials, bad code, ...)
	KindRejected
	// KindTransport errors are network failures and 5xx responses
	KindTransport
	// KindUnexpected errors are malformed or unparseable responses
	KindUnexpected
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRejected:
		return "rejected"
	case KindTransport:
		return "transport"
	case KindUnexpected:
		return "unexpected"
	}
	return "unknown"
}

// Error codes. Server supplied codes are passed through unchanged.
const (
	ErrCodeMissingField       = "missing_field"
	ErrCodeInvalidEmail       = "invalid_email"
	ErrCodeWeakPassword       = "weak_password"
	ErrCodePasswordMismatch   = "password_mismatch"
	ErrCodeTermsNotAccepted   = "terms_not_accepted"
	ErrCodeInvalidCode        = "invalid_code"
	ErrCodeInvalidCreds       = "invalid_credentials"
	ErrCodeEmailExists        = "email_exists"
	ErrCodeInvalidToken       = "invalid_token"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeTwoFactorEnabled   = "two_factor_already_enabled"
	ErrCodeConnection         = "connection_error"
	ErrCodeMalformedResponse  = "malformed_response"
	ErrCodeUnauthenticated    = "unauthenticated"
	ErrCodeTwoFactorRequired  = "two_factor_required"
	ErrCodeOAuthStateMismatch = "oauth_state_mismatch"
)

// Generic user facing messages for failures that carry no server message
const (
	MsgConnectionError = "Connection error. Please check your network and try again."
	MsgUnexpectedError = "Something went wrong. Please try again."
)

// AuthError is the single error type surfaced by flows and the API client.
type AuthError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Field   string
	Status  int
	Err     error
}

// NewAuthError creates a validation error for a field
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Kind: KindValidation, Code: code, Message: message, Field: field}
}

func (e *AuthError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, msg, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the user in a notification
func (e *AuthError) UserMessage() string {
	switch e.Kind {
	case KindTransport:
		if e.Status >= 500 && e.Message != "" {
			return e.Message
		}
		return MsgConnectionError
	case KindUnexpected:
		return MsgUnexpectedError
	}
	return e.Message
}

// Retryable is true for failures where re-submitting the same input may succeed
func (e *AuthError) Retryable() bool {
	return e.Kind == KindTransport
}

// AsAuthError unwraps err into an AuthError if it carries one
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// MessageFor returns the notification text for any error, falling back to
// fallback when the error carries no server message.
func MessageFor(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if ae, ok := AsAuthError(err); ok {
		if msg := ae.UserMessage(); msg != "" {
			return msg
		}
	}
	return fallback
}

// HasCode reports whether err is an AuthError with the given code
func HasCode(err error, code string) bool {
	ae, ok := AsAuthError(err)
	return ok && ae.Code == code
}

// KindForStatus maps an HTTP status code to an error kind
func KindForStatus(status int) ErrorKind {
	switch {
	case status >= 500:
		return KindTransport
	case status >= 400:
		return KindRejected
	}
	return KindUnexpected
}

// CodeForStatus guesses an error code when the server did not send one
func CodeForStatus(status int, message string) string {
	lower := strings.ToLower(message)
	switch {
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case status == http.StatusConflict, strings.Contains(lower, "already exists"), strings.Contains(lower, "already registered"):
		return ErrCodeEmailExists
	case strings.Contains(lower, "already enabled"):
		return ErrCodeTwoFactorEnabled
	case strings.Contains(lower, "invalid") && strings.Contains(lower, "code"):
		return ErrCodeInvalidCode
	case strings.Contains(lower, "token"):
		return ErrCodeInvalidToken
	case status == http.StatusUnauthorized:
		return ErrCodeInvalidCreds
	}
	return ""
}
