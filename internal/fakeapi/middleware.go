package fakeapi

import (
	"context"
	"net/http"
)

type accountKey struct{}

// EnsureUser rejects requests without a valid access token. The resolved
// account is available downstream through accountFrom.
func (s *Server) EnsureUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, err := s.authenticatedUser(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Not authenticated", "")
			return
		}
		next.ServeHTTP(w, withAccount(r, acct))
	})
}

// EnsureEnrolling is EnsureUser that also admits the temp token of a login
// still owing a second factor, as 2FA enrollment does.
func (s *Server) EnsureEnrolling(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, err := s.anyUser(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Not authenticated", "")
			return
		}
		next.ServeHTTP(w, withAccount(r, acct))
	})
}

func withAccount(r *http.Request, acct *account) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), accountKey{}, acct))
}

// accountFrom returns the account set by EnsureUser or EnsureEnrolling
func accountFrom(r *http.Request) *account {
	acct, _ := r.Context().Value(accountKey{}).(*account)
	return acct
}
