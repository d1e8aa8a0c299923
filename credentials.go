package authflow

import (
	"time"
)

// Credential holds the bearer tokens issued by the API.
// TempToken is only set between a password login that requires a second
// factor and the completion of that factor.
type Credential struct {
	AccessToken string    `json:"access_token,omitempty"`
	TempToken   string    `json:"temp_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsExpired returns true if the access token has a known expiry that has passed
func (c *Credential) IsExpired() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(c.ExpiresAt)
}

// IsExpiringSoon returns true if the token expires within the given duration
func (c *Credential) IsExpiringSoon(within time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(within).After(c.ExpiresAt)
}

// HasAccessToken returns true if a usable access token is present
func (c *Credential) HasAccessToken() bool {
	return c != nil && c.AccessToken != "" && !c.IsExpired()
}

// Bearer returns the token to present: the temp token while a second factor
// is pending, else the access token.
func (c *Credential) Bearer() string {
	if c == nil {
		return ""
	}
	if c.TempToken != "" {
		return c.TempToken
	}
	if c.IsExpired() {
		return ""
	}
	return c.AccessToken
}
