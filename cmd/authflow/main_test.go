package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/authflow/config"
	"github.com/panyam/authflow/internal/fakeapi"
	"github.com/panyam/authflow/logging"
)

// setup points the CLI at a fresh stub API and a temporary store file
func setup(t *testing.T) *fakeapi.Server {
	t.Helper()
	api := fakeapi.New()
	api.Mailer = &fakeapi.Outbox{}
	api.Logger = logging.Discard()
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	t.Setenv(config.EnvAPIURL, srv.URL)
	t.Setenv(config.EnvStorePath, filepath.Join(t.TempDir(), "auth-store.json"))
	t.Setenv(config.EnvLogLevel, "error")
	return api
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &out)
	return out.String(), err
}

func TestRun_Usage(t *testing.T) {
	out, err := runCLI(t, "")
	assert.ErrorIs(t, err, ErrMissingCommand)
	assert.Contains(t, out, "setup-2fa")

	_, err = runCLI(t, "", "frobnicate")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestRun_LoginStatusLogout(t *testing.T) {
	api := setup(t)
	_, err := api.SeedUser("user@example.com", "Secret123", fakeapi.WithVerifiedEmail())
	require.NoError(t, err)

	out, err := runCLI(t, "Secret123\n", "login", "-email", "user@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "-> /dashboard")

	out, err = runCLI(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated:       true")
	assert.Contains(t, out, "user@example.com")

	out, err = runCLI(t, "", "me")
	require.NoError(t, err)
	assert.Contains(t, out, `"email": "user@example.com"`)

	out, err = runCLI(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "-> /login")

	out, err = runCLI(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated:       false")
}

func TestRun_LoginRejected(t *testing.T) {
	setup(t)
	out, err := runCLI(t, "", "login", "-email", "nonexistent@x.com", "-password", "Wrong1!")
	require.Error(t, err)
	assert.Contains(t, out, "[error] Invalid credentials")
	assert.NotContains(t, out, "->")
}

func TestRun_RegisterFieldErrorsSorted(t *testing.T) {
	setup(t)
	for range 5 {
		out, err := runCLI(t, "", "register", "-email", "bad", "-password", "short", "-confirm", "other")
		require.Error(t, err)
		fields := []string{"  acceptTerms:", "  confirmPassword:", "  email:", "  password:"}
		last := -1
		for _, f := range fields {
			idx := strings.Index(out, f)
			require.GreaterOrEqual(t, idx, 0, "missing %q in %s", f, out)
			assert.Greater(t, idx, last, "%q out of order in %s", f, out)
			last = idx
		}
	}
}

func TestRun_SetupThenVerify(t *testing.T) {
	api := setup(t)
	api.RequireTwoFactor = true
	_, err := api.SeedUser("user@example.com", "Secret123", fakeapi.WithVerifiedEmail())
	require.NoError(t, err)

	out, err := runCLI(t, "", "login", "-email", "user@example.com", "-password", "Secret123")
	require.NoError(t, err)
	assert.Contains(t, out, "-> /2fa/setup")

	dir := t.TempDir()
	out, err = runCLI(t, "000000\nn\n", "setup-2fa", "-save-dir", dir)
	assert.ErrorContains(t, err, "not been confirmed")
	assert.Contains(t, out, "[warning]")
	assert.FileExists(t, filepath.Join(dir, "backup-codes.txt"))

	out, err = runCLI(t, "", "verify-2fa", "-code", "000000")
	require.NoError(t, err)
	assert.Contains(t, out, "-> /dashboard")

	out, err = runCLI(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "2fa verified:        true")
}

func TestRun_Exec(t *testing.T) {
	api := setup(t)
	api.TaskInterval = 0
	_, err := api.SeedUser("user@example.com", "Secret123", fakeapi.WithVerifiedEmail())
	require.NoError(t, err)
	_, err = runCLI(t, "", "login", "-email", "user@example.com", "-password", "Secret123")
	require.NoError(t, err)

	out, err := runCLI(t, "", "exec", "-payload", `{"steps":2}`)
	require.NoError(t, err)
	assert.Contains(t, out, "done")
}
