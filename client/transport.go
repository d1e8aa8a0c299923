package client

import (
	"net/http"
)

// AuthTransport wraps an http.RoundTripper to add Authorization headers
// from a TokenStore.
type AuthTransport struct {
	Base   http.RoundTripper
	Tokens TokenStore
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") == "" && t.Tokens != nil {
		if cred, err := t.Tokens.Credential(); err == nil {
			if token := cred.Bearer(); token != "" {
				// Clone the request to avoid mutating the original
				req2 := req.Clone(req.Context())
				req2.Header.Set("Authorization", "Bearer "+token)
				req = req2
			}
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	return base.RoundTrip(req)
}

// NewAuthTransport creates an AuthTransport over the default transport
func NewAuthTransport(tokens TokenStore) *AuthTransport {
	return &AuthTransport{
		Base:   http.DefaultTransport,
		Tokens: tokens,
	}
}
