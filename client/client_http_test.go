package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/panyam/authflow"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *MemoryTokenStore) {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	store := NewMemoryTokenStore()
	return New(server.URL, WithTokenStore(store)), store
}

func TestClient_Login_Success(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "user@example.com" {
			t.Errorf("email = %s", req.Email)
		}
		json.NewEncoder(w).Encode(LoginResponse{
			AccessToken:   "access-123",
			User:          &authflow.User{ID: "u1", Email: "user@example.com"},
			EmailVerified: true,
		})
	})

	resp, err := c.Login(context.Background(), LoginRequest{Email: "user@example.com", Password: "Secret123"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if resp.User.ID != "u1" {
		t.Errorf("User.ID = %s, want u1", resp.User.ID)
	}

	cred, _ := store.Credential()
	if cred == nil || cred.AccessToken != "access-123" {
		t.Fatalf("stored credential = %+v", cred)
	}
}

func TestClient_Login_TwoFactorStoresTempToken(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(LoginResponse{
			RequiresTwoFactor: true,
			TwoFactorEnabled:  true,
			TempToken:         "temp-1",
		})
	})

	if _, err := c.Login(context.Background(), LoginRequest{Email: "a@b.co", Password: "x"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	cred, _ := store.Credential()
	if cred.TempToken != "temp-1" || cred.AccessToken != "" {
		t.Errorf("credential = %+v, want temp token only", cred)
	}
}

func TestClient_Login_InvalidCredentials(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Invalid credentials"})
	})

	_, err := c.Login(context.Background(), LoginRequest{Email: "a@b.co", Password: "bad"})
	ae, ok := authflow.AsAuthError(err)
	if !ok {
		t.Fatalf("error = %v, want *AuthError", err)
	}
	if ae.Kind != authflow.KindRejected || ae.Status != http.StatusUnauthorized {
		t.Errorf("Kind = %v Status = %d", ae.Kind, ae.Status)
	}
	if ae.UserMessage() != "Invalid credentials" {
		t.Errorf("UserMessage() = %q", ae.UserMessage())
	}
	if cred, _ := store.Credential(); cred != nil {
		t.Errorf("credential stored on failure: %+v", cred)
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token": 12`)
	})

	_, err := c.Login(context.Background(), LoginRequest{Email: "a@b.co", Password: "x"})
	if !authflow.HasCode(err, authflow.ErrCodeMalformedResponse) {
		t.Errorf("error = %v, want malformed response", err)
	}
}

func TestClient_LoginWithoutUserIsMalformed(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token": "x"}`)
	})

	_, err := c.Login(context.Background(), LoginRequest{Email: "a@b.co", Password: "x"})
	if !authflow.HasCode(err, authflow.ErrCodeMalformedResponse) {
		t.Errorf("error = %v, want malformed response", err)
	}
}

func TestClient_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := New(url)
	_, err := c.ForgotPassword(context.Background(), "a@b.co")
	ae, ok := authflow.AsAuthError(err)
	if !ok || ae.Kind != authflow.KindTransport {
		t.Fatalf("error = %v, want transport error", err)
	}
	if ae.UserMessage() != authflow.MsgConnectionError {
		t.Errorf("UserMessage() = %q", ae.UserMessage())
	}
}

func TestClient_Transport_AddsAuthHeader(t *testing.T) {
	var gotAuth string
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(authflow.User{ID: "u1", Email: "a@b.co"})
	})
	store.SetCredential(&authflow.Credential{AccessToken: "access-123"})

	if _, err := c.CurrentUser(context.Background()); err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if gotAuth != "Bearer access-123" {
		t.Errorf("Authorization = %q, want Bearer access-123", gotAuth)
	}
}

func TestClient_Transport_NoAuthHeader_WhenNoCredential(t *testing.T) {
	var gotAuth string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})

	if _, err := c.ResendVerification(context.Background(), "a@b.co"); err != nil {
		t.Fatalf("ResendVerification() error = %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

func TestClient_VerifyTwoFactor_PromotesTempToken(t *testing.T) {
	var gotAuth string
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(VerifyTwoFactorResponse{
			AccessToken:      "access-9",
			User:             &authflow.User{ID: "u1"},
			EmailVerified:    true,
			TwoFactorEnabled: true,
		})
	})
	store.SetCredential(&authflow.Credential{TempToken: "temp-1"})

	if _, err := c.VerifyTwoFactor(context.Background(), "123456"); err != nil {
		t.Fatalf("VerifyTwoFactor() error = %v", err)
	}
	if gotAuth != "Bearer temp-1" {
		t.Errorf("Authorization = %q, want the temp token", gotAuth)
	}
	cred, _ := store.Credential()
	if cred.AccessToken != "access-9" || cred.TempToken != "" {
		t.Errorf("credential = %+v", cred)
	}
}

func TestClient_Logout_ClearsEvenOnServerError(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store.SetCredential(&authflow.Credential{AccessToken: "a"})

	err := c.Logout(context.Background())
	if err == nil {
		t.Error("Logout() error = nil, want server error")
	}
	if cred, _ := store.Credential(); cred != nil {
		t.Errorf("credential not cleared: %+v", cred)
	}
}

func TestClient_WithTimeout(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	})
	WithTimeout(20 * time.Millisecond)(c)

	_, err := c.ForgotPassword(context.Background(), "a@b.co")
	var ae *authflow.AuthError
	if !errors.As(err, &ae) || ae.Kind != authflow.KindTransport {
		t.Errorf("error = %v, want transport error", err)
	}
}
