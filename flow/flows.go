// Package flow drives the auth screens that are not wizards: login,
// registration, email verification, password reset, OAuth callback and
// logout. Each operation validates its input, calls the API, and only after
// a fully parsed success updates the store and then navigates.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/panyam/authflow"
	"github.com/panyam/authflow/cache"
	"github.com/panyam/authflow/client"
	"github.com/panyam/authflow/store"
)

// Messages shown when the server sends none
const (
	MsgLoginFailed        = "Login failed. Please try again."
	MsgRegisterFailed     = "Registration failed. Please try again."
	MsgRegistered         = "Registration successful. Please check your email to verify your account."
	MsgVerifyEmailFailed  = "Email verification failed. The link may have expired."
	MsgResetFailed        = "Password reset failed. The link may have expired."
	MsgOAuthFailed        = "Sign-in with the provider failed. Please try again."
	MsgResetLinkSent      = "If that email exists, a reset link has been sent."
	MsgVerificationResent = "If that account exists, a verification email has been sent."
	MsgSessionExpired     = "Your session has expired. Please log in again."
)

// DefaultCurrentUserTTL is how long the current user stays cached
const DefaultCurrentUserTTL = 5 * time.Minute

// ErrBusy is returned when an operation is started while another is in flight
var ErrBusy = errors.New("another request is in progress")

// API is the part of the auth API the flows call. *client.Client implements it.
type API interface {
	Login(ctx context.Context, req client.LoginRequest) (*client.LoginResponse, error)
	Register(ctx context.Context, req client.RegisterRequest) (*client.RegisterResponse, error)
	VerifyEmail(ctx context.Context, token string) (*client.MessageResponse, error)
	ResendVerification(ctx context.Context, email string) (*client.MessageResponse, error)
	ForgotPassword(ctx context.Context, email string) (*client.MessageResponse, error)
	ResetPassword(ctx context.Context, token, password string) (*client.MessageResponse, error)
	OAuthCallback(ctx context.Context, provider, code, state string) (*client.LoginResponse, error)
	CurrentUser(ctx context.Context) (*authflow.User, error)
	Logout(ctx context.Context) error
}

// Flows bundles the auth operations over one store
type Flows struct {
	api     API
	store   *store.Store
	nav     authflow.Navigator
	notify  authflow.Notifier
	cache   cache.Cache[*authflow.User]
	policy  authflow.PasswordPolicy
	userTTL time.Duration
	logger  *slog.Logger
	busy    atomic.Bool
}

// Option configures Flows
type Option func(*Flows)

// WithCache sets the cache for the current-user query
func WithCache(c cache.Cache[*authflow.User]) Option {
	return func(f *Flows) { f.cache = c }
}

// WithPasswordPolicy sets the policy applied on registration and reset
func WithPasswordPolicy(p authflow.PasswordPolicy) Option {
	return func(f *Flows) { f.policy = p }
}

// WithCurrentUserTTL sets how long the current user stays cached
func WithCurrentUserTTL(d time.Duration) Option {
	return func(f *Flows) {
		if d > 0 {
			f.userTTL = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flows) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates the flows. Logging out of st purges the query cache.
func New(api API, st *store.Store, nav authflow.Navigator, notify authflow.Notifier, opts ...Option) *Flows {
	f := &Flows{
		api:     api,
		store:   st,
		nav:     nav,
		notify:  notify,
		policy:  authflow.DefaultPasswordPolicy(),
		userTTL: DefaultCurrentUserTTL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.notify == nil {
		f.notify = authflow.LogNotifier{Logger: f.logger}
	}
	if f.cache != nil {
		st.OnLogout(f.cache.Clear)
	}
	return f
}

// Busy reports whether a network operation is in flight
func (f *Flows) Busy() bool {
	return f.busy.Load()
}

func (f *Flows) begin() error {
	if !f.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (f *Flows) end() {
	f.busy.Store(false)
}

// fail reports err to the user. The store is never touched on failure.
func (f *Flows) fail(op string, err error, fallback string) error {
	ae, ok := authflow.AsAuthError(err)
	switch {
	case ok && ae.Kind == authflow.KindUnexpected:
		f.logger.Error("unexpected response", "component", "flow", "op", op, "err", err)
	case ok && ae.Kind == authflow.KindTransport:
		f.logger.Warn("request failed", "component", "flow", "op", op, "err", err)
	default:
		f.logger.Info("request rejected", "component", "flow", "op", op, "err", err)
	}
	f.notify.Notify(authflow.LevelError, authflow.MessageFor(err, fallback))
	return err
}

func (f *Flows) invalidateUser() {
	if f.cache != nil {
		f.cache.Del(cache.KeyCurrentUser)
	}
}

// Login validates the form, posts it and routes on the response
func (f *Flows) Login(ctx context.Context, form authflow.LoginForm) (Decision, error) {
	if err := form.Validate().Err(); err != nil {
		return Decision{}, err
	}
	if err := f.begin(); err != nil {
		return Decision{}, err
	}
	defer f.end()

	req := client.LoginRequest{Email: form.Email, Password: form.Password}
	if form.RememberMe {
		remember := true
		req.RememberMe = &remember
	}
	resp, err := f.api.Login(ctx, req)
	if err != nil {
		return Decision{}, f.fail("login", err, MsgLoginFailed)
	}

	d := Decide(resp)
	if err := f.settle("login", d, ""); err != nil {
		return Decision{}, err
	}
	f.logger.Info("login", "component", "flow", "outcome", d.Outcome.String())
	return d, nil
}

// Apply commits a decision to the store and then navigates. provider tags
// OAuth sessions.
func (f *Flows) Apply(d Decision, provider string) error {
	switch d.Outcome {
	case OutcomeVerifyTwoFactor, OutcomeSetupTwoFactor:
		// the store must be consistent before route guards run
		err := f.store.Apply(
			store.TwoFactorStatus(d.TwoFactorEnabled, false, d.RequiresTwoFactorSetup),
			store.PendingProvider(provider),
		)
		if err != nil {
			return err
		}
	default:
		err := f.store.Apply(
			store.TwoFactorStatus(d.TwoFactorEnabled, d.TwoFactorVerified, false),
			store.LoginUser(d.User, store.WithProvider(provider), store.WithEmailVerified(d.EmailVerified)),
		)
		if err != nil {
			return err
		}
		f.invalidateUser()
	}
	f.nav.Navigate(d.Route)
	return nil
}

// settle applies a decision after the client has already saved the new
// credential. If the state cannot be committed the credential is dropped
// again so the session is not half signed in.
func (f *Flows) settle(op string, d Decision, provider string) error {
	err := f.Apply(d, provider)
	if err == nil {
		return nil
	}
	f.logger.Error("failed to commit auth state", "component", "flow", "op", op, "err", err)
	if cerr := f.store.ClearCredential(); cerr != nil {
		f.logger.Error("failed to drop credential", "component", "flow", "op", op, "err", cerr)
	}
	f.notify.Notify(authflow.LevelError, authflow.MsgUnexpectedError)
	return err
}

// Register creates an account and sends the user to check their email
func (f *Flows) Register(ctx context.Context, form authflow.RegisterForm) (*authflow.User, error) {
	if err := form.Validate(f.policy).Err(); err != nil {
		return nil, err
	}
	if err := f.begin(); err != nil {
		return nil, err
	}
	defer f.end()

	req := client.RegisterRequest{Email: form.Email, Password: form.Password}
	if form.FirstName != "" {
		req.FirstName = &form.FirstName
	}
	if form.LastName != "" {
		req.LastName = &form.LastName
	}
	resp, err := f.api.Register(ctx, req)
	if err != nil {
		return nil, f.fail("register", err, MsgRegisterFailed)
	}

	msg := resp.Message
	if msg == "" {
		msg = MsgRegistered
	}
	f.notify.Notify(authflow.LevelSuccess, msg)
	f.nav.Navigate(authflow.RouteVerifyEmailPending)
	return resp.User, nil
}

// VerifyEmail confirms the emailed token
func (f *Flows) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return authflow.NewAuthError(authflow.ErrCodeInvalidToken, "Verification link is missing its token", authflow.FieldToken)
	}
	if err := f.begin(); err != nil {
		return err
	}
	defer f.end()

	resp, err := f.api.VerifyEmail(ctx, token)
	if err != nil {
		return f.fail("verify-email", err, MsgVerifyEmailFailed)
	}

	state := f.store.State()
	if state.IsAuthenticated {
		if err := f.store.SetEmailVerified(true); err != nil {
			return err
		}
		f.invalidateUser()
	}
	msg := "Email verified successfully"
	if resp != nil && resp.Message != "" {
		msg = resp.Message
	}
	f.notify.Notify(authflow.LevelSuccess, msg)
	if state.IsAuthenticated {
		f.nav.Navigate(authflow.RouteDashboard)
	} else {
		f.nav.Navigate(authflow.RouteLogin)
	}
	return nil
}

// ResendVerification asks for a new verification email
func (f *Flows) ResendVerification(ctx context.Context, email string) error {
	if err := authflow.ValidateEmail(email); err != nil {
		return err
	}
	if err := f.begin(); err != nil {
		return err
	}
	defer f.end()

	if _, err := f.api.ResendVerification(ctx, email); err != nil {
		return f.fail("resend-verification", err, "Could not resend the verification email.")
	}
	f.notify.Notify(authflow.LevelSuccess, MsgVerificationResent)
	return nil
}

// ForgotPassword requests a reset link. Rejections are reported as success
// so the screen does not reveal which emails have accounts.
func (f *Flows) ForgotPassword(ctx context.Context, email string) error {
	if err := authflow.ValidateEmail(email); err != nil {
		return err
	}
	if err := f.begin(); err != nil {
		return err
	}
	defer f.end()

	if _, err := f.api.ForgotPassword(ctx, email); err != nil {
		if ae, ok := authflow.AsAuthError(err); !ok || ae.Kind != authflow.KindRejected || ae.Status == http.StatusTooManyRequests {
			return f.fail("forgot-password", err, MsgResetLinkSent)
		}
		f.logger.Info("forgot-password rejected", "component", "flow", "err", err)
	}
	f.notify.Notify(authflow.LevelSuccess, MsgResetLinkSent)
	return nil
}

// ResetPassword sets a new password with the emailed token
func (f *Flows) ResetPassword(ctx context.Context, form authflow.ResetPasswordForm) error {
	if err := form.Validate(f.policy).Err(); err != nil {
		return err
	}
	if err := f.begin(); err != nil {
		return err
	}
	defer f.end()

	if _, err := f.api.ResetPassword(ctx, form.Token, form.Password); err != nil {
		return f.fail("reset-password", err, MsgResetFailed)
	}
	f.notify.Notify(authflow.LevelSuccess, "Password reset successfully. Please log in.")
	f.nav.Navigate(authflow.RouteLogin)
	return nil
}

// OAuthCallback completes a provider sign-in and routes like a login
func (f *Flows) OAuthCallback(ctx context.Context, provider, code, state string) (Decision, error) {
	if err := f.begin(); err != nil {
		return Decision{}, err
	}
	defer f.end()

	resp, err := f.api.OAuthCallback(ctx, provider, code, state)
	if err != nil {
		err = f.fail("oauth-callback", err, MsgOAuthFailed)
		f.nav.Navigate(authflow.RouteLogin)
		return Decision{}, err
	}

	d := Decide(resp)
	if err := f.settle("oauth-callback", d, provider); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// Logout ends the session. The server call is best effort; the store is
// always cleared.
func (f *Flows) Logout(ctx context.Context) error {
	if err := f.api.Logout(ctx); err != nil {
		f.logger.Warn("server logout failed", "component", "flow", "err", err)
	}
	if err := f.store.Logout(); err != nil {
		return err
	}
	f.notify.Notify(authflow.LevelInfo, "You have been logged out.")
	f.nav.Navigate(authflow.RouteLogin)
	return nil
}

// CurrentUser returns the signed in user, served from the cache when
// possible. A 401 means the session is gone: the store is cleared and the
// user is sent to login.
func (f *Flows) CurrentUser(ctx context.Context) (*authflow.User, error) {
	if f.cache != nil {
		if u, ok := f.cache.Get(cache.KeyCurrentUser); ok && u != nil {
			return u.Clone(), nil
		}
	}

	user, err := f.api.CurrentUser(ctx)
	if err != nil {
		if ae, ok := authflow.AsAuthError(err); ok && ae.Status == http.StatusUnauthorized && f.store.State().IsAuthenticated {
			f.logger.Info("session expired", "component", "flow")
			if lerr := f.store.Logout(); lerr != nil {
				return nil, lerr
			}
			f.notify.Notify(authflow.LevelWarning, MsgSessionExpired)
			f.nav.Navigate(authflow.RouteLogin)
		}
		return nil, err
	}

	if f.cache != nil {
		f.cache.SetWithTTL(cache.KeyCurrentUser, user.Clone(), 1, f.userTTL)
	}
	return user, nil
}
