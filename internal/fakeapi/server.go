// Package fakeapi is an in-memory stand-in for the auth API. It speaks the
// same JSON shapes as the real service so the client, flows and CLI can be
// exercised end to end. It does not validate real TOTP codes: a code is
// accepted when it equals Server.TOTPCode, or always with AcceptAnyCode.
package fakeapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
)

// DefaultTOTPCode is the code the stub treats as a valid authenticator code
const DefaultTOTPCode = "000000"

var errEmailExists = errors.New("email already registered")

// Server is the stub API
type Server struct {
	// JWTSecretKey signs access tokens
	JWTSecretKey string

	// AccessTokenExpiry is the lifetime of issued access tokens
	AccessTokenExpiry time.Duration

	// TOTPCode is the authenticator code accepted by enable and verify
	TOTPCode string

	// AcceptAnyCode accepts every six digit code
	AcceptAnyCode bool

	// RequireTwoFactor forces every user without 2FA through enrollment
	RequireTwoFactor bool

	// Mailer receives verification and reset tokens
	Mailer Mailer

	// TaskInterval is the pause between streamed task events
	TaskInterval time.Duration

	Logger *slog.Logger

	users    *accounts
	tokens   *tokenStore
	sessions *scs.SessionManager
	router   *mux.Router

	mu      sync.Mutex
	revoked map[string]bool
	once    sync.Once
}

// New creates a stub server with reasonable defaults
func New() *Server {
	return &Server{
		JWTSecretKey:      "fakeapi-secret",
		AccessTokenExpiry: TokenExpiryAccessToken,
		TOTPCode:          DefaultTOTPCode,
		TaskInterval:      50 * time.Millisecond,
	}
}

// EnsureDefaults fills unset fields and builds the router
func (s *Server) EnsureDefaults() *Server {
	s.once.Do(func() {
		if s.Logger == nil {
			s.Logger = slog.Default()
		}
		if s.Mailer == nil {
			s.Mailer = &ConsoleMailer{Logger: s.Logger}
		}
		if s.JWTSecretKey == "" {
			s.JWTSecretKey = "fakeapi-secret"
		}
		if s.AccessTokenExpiry == 0 {
			s.AccessTokenExpiry = TokenExpiryAccessToken
		}
		if s.TOTPCode == "" {
			s.TOTPCode = DefaultTOTPCode
		}
		s.users = newAccounts()
		s.tokens = newTokenStore()
		s.revoked = make(map[string]bool)

		// Pending two-factor logins. The session token doubles as the
		// temp_token the client presents as its bearer.
		s.sessions = scs.New()
		s.sessions.Lifetime = 10 * time.Minute

		s.setupRoutes()
	})
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	s.EnsureDefaults()
	return s.router
}

func (s *Server) setupRoutes() {
	r := mux.NewRouter()

	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	auth.HandleFunc("/verify-2fa", s.handleVerifyTwoFactor).Methods(http.MethodPost)
	auth.HandleFunc("/forgot-password", s.handleForgotPassword).Methods(http.MethodPost)
	auth.HandleFunc("/reset-password", s.handleResetPassword).Methods(http.MethodPost)
	auth.HandleFunc("/verify-email", s.handleVerifyEmail).Methods(http.MethodPost)
	auth.HandleFunc("/resend-verification", s.handleResendVerification).Methods(http.MethodPost)
	auth.Handle("/me", s.EnsureUser(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)
	auth.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	tf := r.PathPrefix("/two-factor").Subrouter()
	tf.Use(s.EnsureEnrolling)
	tf.HandleFunc("/setup", s.handleSetupTwoFactor).Methods(http.MethodPost)
	tf.HandleFunc("/enable", s.handleEnableTwoFactor).Methods(http.MethodPost)

	r.HandleFunc("/oauth/callback/{provider}", s.handleOAuthCallback).Methods(http.MethodGet)
	r.Handle("/tasks/execute", s.EnsureUser(http.HandlerFunc(s.handleExecute))).Methods(http.MethodPost)

	s.router = r
}

// SeedUser creates an account directly, bypassing registration
func (s *Server) SeedUser(email, password string, opts ...UserOption) (string, error) {
	s.EnsureDefaults()
	acct, err := s.users.create(email, password)
	if err != nil {
		return "", err
	}
	s.users.update(func() {
		for _, opt := range opts {
			opt(acct)
		}
	})
	return acct.user.ID, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError sends the error body shape the client understands
func writeError(w http.ResponseWriter, status int, message, field string) {
	body := map[string]string{"detail": message}
	if field != "" {
		body["field"] = field
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(v)
}
