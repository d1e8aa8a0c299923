package authflow

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// PasswordPolicy decides which passwords are accepted at registration and reset.
// Strength (see PasswordStrength) is advisory; the policy is enforced.
type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPasswordPolicy requires 8 characters with mixed case and a digit.
// Special characters are not required.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:    8,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

// GetMinLength returns the minimum length, defaulting to 8
func (p PasswordPolicy) GetMinLength() int {
	if p.MinLength <= 0 {
		return 8
	}
	return p.MinLength
}

// Describe returns the human readable rule list, used as the field hint
func (p PasswordPolicy) Describe() string {
	parts := []string{fmt.Sprintf("at least %d characters", p.GetMinLength())}
	if p.RequireUpper {
		parts = append(parts, "an uppercase letter")
	}
	if p.RequireLower {
		parts = append(parts, "a lowercase letter")
	}
	if p.RequireDigit {
		parts = append(parts, "a number")
	}
	if p.RequireSpecial {
		parts = append(parts, "a special character")
	}
	return "Password must contain " + strings.Join(parts, ", ")
}

// charClasses summarises which character classes appear in s
type charClasses struct {
	upper, lower, digit, special bool
}

func classify(s string) charClasses {
	var c charClasses
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			c.special = true
		}
	}
	return c
}

// ValidateEmail checks the address shape
func ValidateEmail(email string) *AuthError {
	email = strings.TrimSpace(email)
	if email == "" {
		return NewAuthError(ErrCodeMissingField, "Email is required", "email")
	}
	if !emailRegex.MatchString(email) {
		return NewAuthError(ErrCodeInvalidEmail, "Invalid email format", "email")
	}
	return nil
}

// ValidatePassword checks password against the policy
func ValidatePassword(password string, policy PasswordPolicy) *AuthError {
	if password == "" {
		return NewAuthError(ErrCodeMissingField, "Password is required", "password")
	}
	if len(password) < policy.GetMinLength() {
		return NewAuthError(ErrCodeWeakPassword, fmt.Sprintf("Password must be at least %d characters", policy.GetMinLength()), "password")
	}
	c := classify(password)
	if policy.RequireUpper && !c.upper {
		return NewAuthError(ErrCodeWeakPassword, "Password must contain an uppercase letter", "password")
	}
	if policy.RequireLower && !c.lower {
		return NewAuthError(ErrCodeWeakPassword, "Password must contain a lowercase letter", "password")
	}
	if policy.RequireDigit && !c.digit {
		return NewAuthError(ErrCodeWeakPassword, "Password must contain a number", "password")
	}
	if policy.RequireSpecial && !c.special {
		return NewAuthError(ErrCodeWeakPassword, "Password must contain a special character", "password")
	}
	return nil
}

// ValidateConfirmPassword checks that both password fields match
func ValidateConfirmPassword(password, confirm string) *AuthError {
	if confirm == "" {
		return NewAuthError(ErrCodeMissingField, "Please confirm your password", "confirmPassword")
	}
	if password != confirm {
		return NewAuthError(ErrCodePasswordMismatch, "Passwords do not match", "confirmPassword")
	}
	return nil
}

// FieldErrors maps field names to their first validation error
type FieldErrors map[string]*AuthError

// Add records err for its field unless the field already has an error
func (fe FieldErrors) Add(err *AuthError) {
	if err == nil {
		return
	}
	if _, ok := fe[err.Field]; !ok {
		fe[err.Field] = err
	}
}

// Err returns nil when there are no errors, else the first error by field name
// so messages are stable.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fe[fields[0]]
}

// LoginForm is the input of the login screen
type LoginForm struct {
	Email      string
	Password   string
	RememberMe bool
}

// Validate checks the login form. Login does not apply the password policy:
// accounts created under an older policy must still be able to sign in.
func (f LoginForm) Validate() FieldErrors {
	errs := FieldErrors{}
	errs.Add(ValidateEmail(f.Email))
	if f.Password == "" {
		errs.Add(NewAuthError(ErrCodeMissingField, "Password is required", "password"))
	}
	return errs
}

// RegisterForm is the input of the registration screen
type RegisterForm struct {
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
	AcceptTerms     bool
}

// Validate checks every registration rule
func (f RegisterForm) Validate(policy PasswordPolicy) FieldErrors {
	errs := FieldErrors{}
	errs.Add(ValidateEmail(f.Email))
	errs.Add(ValidatePassword(f.Password, policy))
	errs.Add(ValidateConfirmPassword(f.Password, f.ConfirmPassword))
	if !f.AcceptTerms {
		errs.Add(NewAuthError(ErrCodeTermsNotAccepted, "You must accept the terms and conditions", "acceptTerms"))
	}
	return errs
}

// ResetPasswordForm is the input of the reset-password screen
type ResetPasswordForm struct {
	Token           string
	Password        string
	ConfirmPassword string
}

// Validate checks the reset form
func (f ResetPasswordForm) Validate(policy PasswordPolicy) FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(f.Token) == "" {
		errs.Add(NewAuthError(ErrCodeInvalidToken, "Reset link is missing its token", "token"))
	}
	errs.Add(ValidatePassword(f.Password, policy))
	errs.Add(ValidateConfirmPassword(f.Password, f.ConfirmPassword))
	return errs
}
