package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/panyam/authflow"
)

// ErrStateMismatch is wrapped by Wait when the redirect carries a state
// other than the session's.
var ErrStateMismatch = &authflow.AuthError{
	Kind:    authflow.KindRejected,
	Code:    authflow.ErrCodeOAuthStateMismatch,
	Message: "OAuth state mismatch. Please try signing in again.",
}

// Callback is what the provider redirected back with
type Callback struct {
	Provider string
	Code     string
	State    string
	Error    string
}

// CallbackServer listens on a loopback address for provider redirects
type CallbackServer struct {
	listener net.Listener
	server   *http.Server
	logger   *slog.Logger
	results  chan Callback
	once     sync.Once
}

// NewCallbackServer starts listening on addr (e.g. "127.0.0.1:0")
func NewCallbackServer(addr string, logger *slog.Logger) (*CallbackServer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for oauth callback: %w", err)
	}

	cs := &CallbackServer{
		listener: ln,
		logger:   logger,
		results:  make(chan Callback, 1),
	}

	r := mux.NewRouter()
	r.HandleFunc("/callback/{provider}", cs.handleCallback).Methods(http.MethodGet)
	cs.server = &http.Server{Handler: r}

	go func() {
		if err := cs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("oauth callback server stopped", "component", "oauth", "err", err)
		}
	}()
	return cs, nil
}

// RedirectURL is the URL to register with provider
func (cs *CallbackServer) RedirectURL(provider string) string {
	return fmt.Sprintf("http://%s/callback/%s", cs.listener.Addr().String(), provider)
}

func (cs *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	cb := Callback{
		Provider: mux.Vars(r)["provider"],
		Code:     r.FormValue("code"),
		State:    r.FormValue("state"),
		Error:    r.FormValue("error"),
	}
	cs.logger.Info("oauth callback received", "component", "oauth", "provider", cb.Provider, "error", cb.Error)

	select {
	case cs.results <- cb:
		fmt.Fprintln(w, "Sign-in received. You can close this window and return to the terminal.")
	default:
		http.Error(w, "sign-in already received", http.StatusConflict)
	}
}

// Wait blocks until the provider redirects back for session or ctx is done.
// The state is checked before the callback is returned.
func (cs *CallbackServer) Wait(ctx context.Context, session *Session) (*Callback, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case cb := <-cs.results:
		if cb.Error != "" {
			return nil, &authflow.AuthError{Kind: authflow.KindRejected, Message: "Provider returned error: " + cb.Error}
		}
		if cb.Provider != session.Provider || cb.State != session.State {
			return nil, fmt.Errorf("callback for %s: %w", cb.Provider, ErrStateMismatch)
		}
		if cb.Code == "" {
			return nil, &authflow.AuthError{Kind: authflow.KindRejected, Code: authflow.ErrCodeMissingField, Message: "Provider returned no code", Field: "code"}
		}
		return &cb, nil
	}
}

// Close shuts the server down
func (cs *CallbackServer) Close() error {
	var err error
	cs.once.Do(func() {
		err = cs.server.Close()
	})
	return err
}
