package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/panyam/authflow"
)

// RefreshThreshold is how close to expiry a token is reported as expiring
const RefreshThreshold = 5 * time.Minute

// Client is the HTTP JSON client for the auth API. It keeps the bearer
// credential in a TokenStore so a session survives restarts.
type Client struct {
	mu            sync.Mutex
	serverURL     string
	tokens        TokenStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
	logger        *slog.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithTokenStore sets where credentials are kept (defaults to memory)
func WithTokenStore(store TokenStore) ClientOption {
	return func(c *Client) {
		if store != nil {
			c.tokens = store
		}
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// The transport from this client will be wrapped with auth handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil && client.Transport != nil {
			c.baseTransport = client.Transport
		}
		if client != nil {
			c.httpClient.Timeout = client.Timeout
			c.httpClient.CheckRedirect = client.CheckRedirect
			c.httpClient.Jar = client.Jar
		}
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.baseTransport = transport
	}
}

// WithTimeout sets the transport timeout for every call
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the API rooted at serverURL. Unlike a bare host,
// a path prefix (e.g. https://example.com/api) is kept.
func New(serverURL string, opts ...ClientOption) *Client {
	serverURL = strings.TrimRight(serverURL, "/")

	c := &Client{
		serverURL:     serverURL,
		tokens:        NewMemoryTokenStore(),
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.httpClient.Transport = &AuthTransport{
		Base:   c.baseTransport,
		Tokens: c.tokens,
	}

	return c
}

// HTTPClient returns the underlying HTTP client with auth handling
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// ServerURL returns the API root this client talks to
func (c *Client) ServerURL() string {
	return c.serverURL
}

// Credential returns the stored credential, or nil
func (c *Client) Credential() (*authflow.Credential, error) {
	return c.tokens.Credential()
}

// IsLoggedIn returns true if there is a valid (non-expired) access token
func (c *Client) IsLoggedIn() bool {
	cred, err := c.tokens.Credential()
	if err != nil || cred == nil {
		return false
	}
	return cred.HasAccessToken()
}

// Login posts the password credentials. A full login stores the access
// token; a login that requires a second factor stores the temp token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	if err := checkLoginResponse(&resp); err != nil {
		return nil, err
	}
	if err := c.saveLoginTokens(resp.AccessToken, resp.TempToken, resp.RequiresTwoFactor); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetupTwoFactor starts 2FA enrollment and returns the secret and QR image
func (c *Client) SetupTwoFactor(ctx context.Context) (*SetupResponse, error) {
	var resp SetupResponse
	if err := c.do(ctx, http.MethodPost, "/two-factor/setup", struct{}{}, &resp); err != nil {
		return nil, err
	}
	if resp.Secret == "" && resp.QRCode == "" {
		return nil, malformed("two-factor setup returned no secret", nil)
	}
	return &resp, nil
}

// EnableTwoFactor confirms enrollment with a TOTP code and returns the backup codes
func (c *Client) EnableTwoFactor(ctx context.Context, code string) (*EnableResponse, error) {
	var resp EnableResponse
	if err := c.do(ctx, http.MethodPost, "/two-factor/enable", CodeRequest{Code: code}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyTwoFactor completes a login with a TOTP or backup code
func (c *Client) VerifyTwoFactor(ctx context.Context, code string) (*VerifyTwoFactorResponse, error) {
	var resp VerifyTwoFactorResponse
	if err := c.do(ctx, http.MethodPost, "/auth/verify-2fa", CodeRequest{Code: code}, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, malformed("verify-2fa response has no user", nil)
	}
	if err := c.promoteTempToken(resp.AccessToken); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForgotPassword asks the API to mail a reset link
func (c *Client) ForgotPassword(ctx context.Context, email string) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.do(ctx, http.MethodPost, "/auth/forgot-password", EmailRequest{Email: email}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResetPassword sets a new password using the emailed token
func (c *Client) ResetPassword(ctx context.Context, token, password string) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.do(ctx, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{Token: token, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyEmail confirms an email address using the emailed token
func (c *Client) VerifyEmail(ctx context.Context, token string) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.do(ctx, http.MethodPost, "/auth/verify-email", TokenRequest{Token: token}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResendVerification asks the API to mail a new verification link
func (c *Client) ResendVerification(ctx context.Context, email string) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.do(ctx, http.MethodPost, "/auth/resend-verification", EmailRequest{Email: email}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OAuthCallback exchanges the provider's code and state for a login
func (c *Client) OAuthCallback(ctx context.Context, provider, code, state string) (*LoginResponse, error) {
	q := url.Values{}
	q.Set("code", code)
	q.Set("state", state)
	path := "/oauth/callback/" + url.PathEscape(provider) + "?" + q.Encode()

	var resp LoginResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if err := checkLoginResponse(&resp); err != nil {
		return nil, err
	}
	if err := c.saveLoginTokens(resp.AccessToken, resp.TempToken, resp.RequiresTwoFactor); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CurrentUser fetches the signed in user
func (c *Client) CurrentUser(ctx context.Context) (*authflow.User, error) {
	var user authflow.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, malformed("current user response has no id", nil)
	}
	return &user, nil
}

// Logout ends the server session (best effort) and always drops the local
// credential.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", struct{}{}, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	if clearErr := c.tokens.ClearCredential(); clearErr != nil {
		return fmt.Errorf("failed to clear credential: %w", clearErr)
	}
	return err
}

// checkLoginResponse rejects login-shaped bodies that cannot drive a decision
func checkLoginResponse(resp *LoginResponse) error {
	if !resp.RequiresTwoFactor && resp.User == nil {
		return malformed("login response has no user", nil)
	}
	return nil
}

func (c *Client) saveLoginTokens(accessToken, tempToken string, pending bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred := &authflow.Credential{CreatedAt: time.Now()}
	if pending {
		cred.TempToken = tempToken
		if cred.TempToken == "" {
			// some servers reuse the access token as the pending-2FA token
			cred.TempToken = accessToken
		}
	} else {
		cred.AccessToken = accessToken
		cred.ExpiresAt = tokenExpiry(accessToken)
	}
	if cred.AccessToken == "" && cred.TempToken == "" {
		return nil
	}
	if err := c.tokens.SetCredential(cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// promoteTempToken replaces the pending temp token by the access token
// issued on 2FA verification.
func (c *Client) promoteTempToken(accessToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.tokens.Credential()
	if err != nil {
		return err
	}
	next := &authflow.Credential{CreatedAt: time.Now()}
	switch {
	case accessToken != "":
		next.AccessToken = accessToken
		next.ExpiresAt = tokenExpiry(accessToken)
	case cred != nil && cred.TempToken != "":
		next.AccessToken = cred.TempToken
		next.ExpiresAt = tokenExpiry(cred.TempToken)
	case cred != nil:
		next = cred
	default:
		return nil
	}
	if err := c.tokens.SetCredential(next); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// tokenExpiry reads the exp claim of a JWT access token without verifying it.
// Opaque tokens have no known expiry.
func tokenExpiry(token string) time.Time {
	if strings.Count(token, ".") != 2 {
		return time.Time{}
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// do performs one JSON call. Non-2xx responses and transport failures are
// returned as *authflow.AuthError.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &authflow.AuthError{Kind: authflow.KindUnexpected, Code: authflow.ErrCodeMalformedResponse, Message: "failed to encode request", Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return &authflow.AuthError{Kind: authflow.KindUnexpected, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "component", "client", "method", method, "path", path, "err", err)
		return &authflow.AuthError{Kind: authflow.KindTransport, Code: authflow.ErrCodeConnection, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &authflow.AuthError{Kind: authflow.KindTransport, Code: authflow.ErrCodeConnection, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}

	// acknowledgements may come back as 204 / empty bodies
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("invalid response from server", "component", "client", "path", path, "err", err)
		return malformed("invalid response from server", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var er errorResponse
	_ = json.Unmarshal(data, &er)

	msg := er.text()
	code := er.Code
	if code == "" {
		code = authflow.CodeForStatus(status, msg)
	}
	return &authflow.AuthError{
		Kind:    authflow.KindForStatus(status),
		Code:    code,
		Message: msg,
		Field:   er.Field,
		Status:  status,
		Err:     errors.New(http.StatusText(status)),
	}
}

func malformed(msg string, err error) error {
	return &authflow.AuthError{Kind: authflow.KindUnexpected, Code: authflow.ErrCodeMalformedResponse, Message: msg, Err: err}
}
