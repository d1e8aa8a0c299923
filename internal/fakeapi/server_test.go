package fakeapi

import (
	"context"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/authflow"
	"github.com/panyam/authflow/client"
)

func newStub(t *testing.T) (*Server, *client.Client, *Outbox) {
	t.Helper()
	outbox := &Outbox{}
	s := New()
	s.Mailer = outbox
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, client.New(srv.URL), outbox
}

func TestLogin(t *testing.T) {
	s, c, _ := newStub(t)
	_, err := s.SeedUser("user@example.com", "Secret123", WithVerifiedEmail())
	require.NoError(t, err)

	resp, err := c.Login(context.Background(), client.LoginRequest{Email: "USER@example.com", Password: "Secret123"})
	require.NoError(t, err)
	assert.False(t, resp.RequiresTwoFactor)
	assert.NotEmpty(t, resp.AccessToken)
	assert.True(t, resp.EmailVerified)

	me, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", me.Email)

	_, err = c.Login(context.Background(), client.LoginRequest{Email: "user@example.com", Password: "wrong"})
	assert.True(t, authflow.HasCode(err, authflow.ErrCodeInvalidCreds))
}

func TestLogoutRevokesToken(t *testing.T) {
	s, c, _ := newStub(t)
	s.SeedUser("user@example.com", "Secret123")
	resp, err := c.Login(context.Background(), client.LoginRequest{Email: "user@example.com", Password: "Secret123"})
	require.NoError(t, err)

	require.NoError(t, c.Logout(context.Background()))

	tokens := client.NewMemoryTokenStore()
	tokens.SetCredential(&authflow.Credential{AccessToken: resp.AccessToken})
	other := client.New(c.ServerURL(), client.WithTokenStore(tokens))
	_, err = other.CurrentUser(context.Background())
	ae, ok := authflow.AsAuthError(err)
	require.True(t, ok)
	assert.Equal(t, 401, ae.Status)
}

func TestTwoFactorEnrollmentAndVerify(t *testing.T) {
	s, c, _ := newStub(t)
	s.SeedUser("user@example.com", "Secret123", WithSetupRequired())
	ctx := context.Background()

	resp, err := c.Login(ctx, client.LoginRequest{Email: "user@example.com", Password: "Secret123"})
	require.NoError(t, err)
	require.True(t, resp.RequiresTwoFactor)
	assert.False(t, resp.TwoFactorEnabled)
	assert.True(t, resp.TwoFactorSetupRequired)
	assert.NotEmpty(t, resp.TempToken)

	setup, err := c.SetupTwoFactor(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Regexp(t, `^data:image/png;base64,`, setup.QRCode)

	_, err = c.EnableTwoFactor(ctx, "123456")
	assert.True(t, authflow.HasCode(err, authflow.ErrCodeInvalidCode))

	enabled, err := c.EnableTwoFactor(ctx, DefaultTOTPCode)
	require.NoError(t, err)
	require.Len(t, enabled.BackupCodes, BackupCodeCount)
	pattern := regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}$`)
	for _, code := range enabled.BackupCodes {
		assert.Regexp(t, pattern, code)
	}

	_, err = c.SetupTwoFactor(ctx)
	assert.True(t, authflow.HasCode(err, authflow.ErrCodeTwoFactorEnabled))

	// backup code, dashes ignored, single use
	verified, err := c.VerifyTwoFactor(ctx, enabled.BackupCodes[0])
	require.NoError(t, err)
	assert.True(t, verified.TwoFactorEnabled)
	assert.True(t, c.IsLoggedIn())
}

func TestVerifyTwoFactor_RequiresPendingSession(t *testing.T) {
	_, c, _ := newStub(t)
	_, err := c.VerifyTwoFactor(context.Background(), "000000")
	ae, ok := authflow.AsAuthError(err)
	require.True(t, ok)
	assert.Equal(t, 401, ae.Status)
}

func TestRegisterVerifyEmailAndReset(t *testing.T) {
	_, c, outbox := newStub(t)
	ctx := context.Background()

	reg, err := c.Register(ctx, client.RegisterRequest{Email: "new@example.com", Password: "Secret123"})
	require.NoError(t, err)
	assert.False(t, reg.User.EmailVerified)

	_, err = c.Register(ctx, client.RegisterRequest{Email: "new@example.com", Password: "Secret123"})
	assert.True(t, authflow.HasCode(err, authflow.ErrCodeEmailExists))

	mail, ok := outbox.Last("new@example.com", TokenTypeEmailVerification)
	require.True(t, ok)
	_, err = c.VerifyEmail(ctx, mail.Token)
	require.NoError(t, err)
	_, err = c.VerifyEmail(ctx, mail.Token)
	assert.True(t, authflow.HasCode(err, authflow.ErrCodeInvalidToken), "tokens are single use")

	_, err = c.ForgotPassword(ctx, "nobody@example.com")
	require.NoError(t, err)
	_, err = c.ForgotPassword(ctx, "new@example.com")
	require.NoError(t, err)
	mail, ok = outbox.Last("new@example.com", TokenTypePasswordReset)
	require.True(t, ok)
	_, err = c.ResetPassword(ctx, mail.Token, "Changed456")
	require.NoError(t, err)

	login, err := c.Login(ctx, client.LoginRequest{Email: "new@example.com", Password: "Changed456"})
	require.NoError(t, err)
	assert.True(t, login.EmailVerified)
}

func TestOAuthCallback(t *testing.T) {
	_, c, _ := newStub(t)
	resp, err := c.OAuthCallback(context.Background(), "github", "alice", "st")
	require.NoError(t, err)
	assert.Equal(t, "alice@github.example", resp.User.Email)
	assert.True(t, resp.EmailVerified)

	_, err = c.OAuthCallback(context.Background(), "github", "invalid", "st")
	assert.Error(t, err)
}

func TestExecuteStreamsEvents(t *testing.T) {
	s, c, _ := newStub(t)
	s.TaskInterval = 1
	s.SeedUser("user@example.com", "Secret123")
	_, err := c.Login(context.Background(), client.LoginRequest{Email: "user@example.com", Password: "Secret123"})
	require.NoError(t, err)

	task, err := c.Execute(context.Background(), "/tasks/execute", map[string]any{"name": "demo", "steps": 3})
	require.NoError(t, err)
	var types []string
	for ev := range task.Events() {
		types = append(types, ev.Type)
	}
	require.NoError(t, task.Wait())
	assert.Equal(t, []string{"progress", "progress", "progress", "done"}, types)
}
