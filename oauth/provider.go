// Package oauth starts OAuth sign-in from a terminal: it builds the
// provider's authorization URL (with state and PKCE) and catches the
// redirect on a loopback callback server. The code and state are then handed
// to the auth API, which performs the provider exchange.
package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// Provider is one configured OAuth provider
type Provider struct {
	Name   string
	config oauth2.Config
}

// ProviderConfig describes a provider. Empty credentials fall back to
// OAUTH2_<NAME>_CLIENT_ID and OAUTH2_<NAME>_CLIENT_SECRET.
type ProviderConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// AuthURL and TokenURL are required for providers other than github and google
	AuthURL  string
	TokenURL string
}

// NewProvider creates a provider whose redirects go to redirectURL
func NewProvider(cfg ProviderConfig, redirectURL string) (*Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" {
		return nil, fmt.Errorf("provider name is required")
	}

	envPrefix := "OAUTH2_" + strings.ToUpper(name)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = strings.TrimSpace(os.Getenv(envPrefix + "_CLIENT_ID"))
	}
	clientSecret := cfg.ClientSecret
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv(envPrefix + "_CLIENT_SECRET"))
	}
	if clientID == "" {
		return nil, fmt.Errorf("no client id for provider %s", name)
	}

	oc := oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       cfg.Scopes,
	}
	switch name {
	case "github":
		oc.Endpoint = github.Endpoint
		if len(oc.Scopes) == 0 {
			oc.Scopes = []string{"read:user", "user:email"}
		}
	case "google":
		oc.Endpoint = google.Endpoint
		if len(oc.Scopes) == 0 {
			oc.Scopes = []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			}
		}
	default:
		if cfg.AuthURL == "" || cfg.TokenURL == "" {
			return nil, fmt.Errorf("provider %s needs auth_url and token_url", name)
		}
		oc.Endpoint = oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
	}

	return &Provider{Name: name, config: oc}, nil
}

// Session is one sign-in attempt
type Session struct {
	Provider string
	State    string
	Verifier string
	URL      string
}

// Begin creates a session with a fresh state and PKCE verifier
func (p *Provider) Begin() (*Session, error) {
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()
	return &Session{
		Provider: p.Name,
		State:    state,
		Verifier: verifier,
		URL:      p.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
	}, nil
}

// GenerateState returns 16 random bytes, base64url encoded
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error generating state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
