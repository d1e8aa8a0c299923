package fakeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/panyam/authflow"
)

const sessionKeyPendingUser = "pending_user_id"

var errUnauthenticated = errors.New("not authenticated")

type loginResponse struct {
	AccessToken            string         `json:"access_token"`
	User                   *authflow.User `json:"user"`
	EmailVerified          bool           `json:"email_verified"`
	RequiresTwoFactor      bool           `json:"requires_two_factor"`
	TwoFactorEnabled       bool           `json:"two_factor_enabled"`
	TwoFactorSetupRequired bool           `json:"two_factor_setup_required"`
	TempToken              string         `json:"temp_token,omitempty"`
}

// createAccessToken creates a signed JWT access token
func (s *Server) createAccessToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID,
		"type": "access",
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(s.AccessTokenExpiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.JWTSecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// validateAccessToken returns the user id of a valid, unrevoked access token
func (s *Server) validateAccessToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.JWTSecretKey), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid claims")
	}
	if tokenType, ok := claims["type"].(string); !ok || tokenType != "access" {
		return "", fmt.Errorf("invalid token type")
	}
	if jti, _ := claims["jti"].(string); s.isRevoked(jti) {
		return "", fmt.Errorf("token revoked")
	}
	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("missing subject")
	}
	return userID, nil
}

func (s *Server) isRevoked(jti string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[jti]
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// authenticatedUser resolves a full access token
func (s *Server) authenticatedUser(r *http.Request) (*account, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, errUnauthenticated
	}
	id, err := s.validateAccessToken(token)
	if err != nil {
		return nil, errUnauthenticated
	}
	acct, ok := s.users.get(id)
	if !ok {
		return nil, errUnauthenticated
	}
	return acct, nil
}

// pendingUser resolves a temp token issued by a login that still owes a
// second factor. The returned context carries the loaded session.
func (s *Server) pendingUser(r *http.Request) (*account, context.Context, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, nil, errUnauthenticated
	}
	ctx, err := s.sessions.Load(r.Context(), token)
	if err != nil {
		return nil, nil, err
	}
	id := s.sessions.GetString(ctx, sessionKeyPendingUser)
	if id == "" {
		return nil, nil, errUnauthenticated
	}
	acct, ok := s.users.get(id)
	if !ok {
		return nil, nil, errUnauthenticated
	}
	return acct, ctx, nil
}

// anyUser accepts either a full access token or a pending temp token
func (s *Server) anyUser(r *http.Request) (*account, error) {
	if acct, err := s.authenticatedUser(r); err == nil {
		return acct, nil
	}
	acct, _, err := s.pendingUser(r)
	return acct, err
}

func (s *Server) startPending(ctx context.Context, userID string) (string, error) {
	ctx, err := s.sessions.Load(ctx, "")
	if err != nil {
		return "", err
	}
	s.sessions.Put(ctx, sessionKeyPendingUser, userID)
	token, _, err := s.sessions.Commit(ctx)
	return token, err
}

// loginResult builds the login-shaped response for acct, starting a pending
// session when a second factor is owed.
func (s *Server) loginResult(ctx context.Context, acct *account) (*loginResponse, error) {
	s.users.mu.RLock()
	user := acct.user.Clone()
	enabled := acct.twoFactorEnabled
	setup := acct.setupRequired || (s.RequireTwoFactor && !enabled)
	s.users.mu.RUnlock()

	resp := &loginResponse{
		User:             user,
		EmailVerified:    user.EmailVerified,
		TwoFactorEnabled: enabled,
	}
	if enabled || setup {
		temp, err := s.startPending(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		resp.RequiresTwoFactor = true
		resp.TwoFactorSetupRequired = !enabled
		resp.TempToken = temp
		return resp, nil
	}

	token, err := s.createAccessToken(user.ID)
	if err != nil {
		return nil, err
	}
	resp.AccessToken = token
	return resp, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		RememberMe *bool  `json:"remember_me"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "Email and password are required", "")
		return
	}

	acct, ok := s.users.find(req.Email)
	if !ok || !checkPassword(acct, req.Password) {
		s.Logger.Info("login rejected", "component", "fakeapi", "email", req.Email)
		writeError(w, http.StatusUnauthorized, "Invalid credentials", "")
		return
	}

	resp, err := s.loginResult(r.Context(), acct)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Login failed", "")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string  `json:"email"`
		Password  string  `json:"password"`
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if err := authflow.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Message, "email")
		return
	}
	if err := authflow.ValidatePassword(req.Password, authflow.DefaultPasswordPolicy()); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Message, "password")
		return
	}

	acct, err := s.users.create(req.Email, req.Password)
	if errors.Is(err, errEmailExists) {
		writeError(w, http.StatusBadRequest, "Email already registered", "email")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Registration failed", "")
		return
	}
	s.users.update(func() {
		acct.user.FirstName = req.FirstName
		acct.user.LastName = req.LastName
	})

	s.sendVerification(acct)

	s.users.mu.RLock()
	user := acct.user.Clone()
	s.users.mu.RUnlock()
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":    user,
		"message": "Registration successful. Please check your email to verify your account.",
	})
}

func (s *Server) sendVerification(acct *account) {
	token, err := s.tokens.create(acct.user.ID, acct.user.Email, TokenTypeEmailVerification, TokenExpiryEmailVerification)
	if err != nil {
		s.Logger.Error("error creating verification token", "component", "fakeapi", "err", err)
		return
	}
	if err := s.Mailer.SendVerificationEmail(acct.user.Email, token.Token); err != nil {
		s.Logger.Error("error sending verification email", "component", "fakeapi", "err", err)
	}
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "Token required", "token")
		return
	}
	t, err := s.tokens.consume(req.Token, TokenTypeEmailVerification)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired token", "token")
		return
	}
	acct, ok := s.users.get(t.UserID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid or expired token", "token")
		return
	}
	s.users.update(func() { acct.user.EmailVerified = true })
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Email verified successfully"})
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email required", "email")
		return
	}
	if acct, ok := s.users.find(req.Email); ok && !acct.user.EmailVerified {
		s.sendVerification(acct)
	}
	// Always return success so the response does not reveal accounts
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "If that account exists, a verification email has been sent"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email required", "email")
		return
	}

	if acct, ok := s.users.find(req.Email); ok {
		token, err := s.tokens.create(acct.user.ID, acct.user.Email, TokenTypePasswordReset, TokenExpiryPasswordReset)
		if err != nil {
			s.Logger.Error("error creating reset token", "component", "fakeapi", "err", err)
		} else if err := s.Mailer.SendPasswordResetEmail(acct.user.Email, token.Token); err != nil {
			s.Logger.Error("error sending reset email", "component", "fakeapi", "err", err)
		}
	}

	// Always return success for security
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "If that email exists, a reset link has been sent",
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil || req.Token == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Token and password required", "")
		return
	}
	if err := authflow.ValidatePassword(req.Password, authflow.DefaultPasswordPolicy()); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Message, "password")
		return
	}

	t, err := s.tokens.consume(req.Token, TokenTypePasswordReset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired token", "token")
		return
	}
	acct, ok := s.users.get(t.UserID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid or expired token", "token")
		return
	}
	replacement, err := s.users.rehash(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Password reset failed", "")
		return
	}
	s.users.update(func() { acct.passwordHash = replacement })

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password reset successfully"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r)
	s.users.mu.RLock()
	user := acct.user.Clone()
	s.users.mu.RUnlock()
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token != "" {
		parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
		if err == nil {
			if claims, ok := parsed.Claims.(jwt.MapClaims); ok {
				if jti, _ := claims["jti"].(string); jti != "" {
					s.mu.Lock()
					s.revoked[jti] = true
					s.mu.Unlock()
				}
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOAuthCallback stands in for the provider exchange: the code names
// the account ("alice" signs in as alice@<provider>.example) and "invalid"
// is rejected.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(mux.Vars(r)["provider"])
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "Missing code or state", "")
		return
	}
	if code == "invalid" {
		writeError(w, http.StatusBadRequest, "Invalid authorization code", "")
		return
	}

	email := fmt.Sprintf("%s@%s.example", code, provider)
	acct, ok := s.users.find(email)
	if !ok {
		password, _ := generateSecureToken()
		created, err := s.users.create(email, password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "OAuth sign-in failed", "")
			return
		}
		s.users.update(func() { created.user.EmailVerified = true })
		acct = created
	}

	resp, err := s.loginResult(r.Context(), acct)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "OAuth sign-in failed", "")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
