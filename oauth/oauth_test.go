package oauth

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/authflow"
)

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Name: "GitHub", ClientID: "cid"}, "http://127.0.0.1:9999/callback/github")
	require.NoError(t, err)
	assert.Equal(t, "github", p.Name)

	_, err = NewProvider(ProviderConfig{Name: "custom", ClientID: "cid"}, "")
	assert.Error(t, err, "custom providers need endpoints")

	t.Setenv("OAUTH2_GOOGLE_CLIENT_ID", "from-env")
	p, err = NewProvider(ProviderConfig{Name: "google"}, "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", p.config.ClientID)
}

func TestBegin_BuildsPKCEURL(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Name: "github", ClientID: "cid"}, "http://127.0.0.1:1/callback/github")
	require.NoError(t, err)

	s1, err := p.Begin()
	require.NoError(t, err)
	s2, _ := p.Begin()
	assert.NotEqual(t, s1.State, s2.State)

	u, err := url.Parse(s1.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, s1.State, q.Get("state"))
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
}

func TestCallbackServer(t *testing.T) {
	cs, err := NewCallbackServer("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer cs.Close()

	session := &Session{Provider: "github", State: "st-1"}
	go func() {
		resp, err := http.Get(cs.RedirectURL("github") + "?code=abc&state=st-1")
		if err == nil {
			resp.Body.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cb, err := cs.Wait(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "abc", cb.Code)
}

func TestCallbackServer_StateMismatch(t *testing.T) {
	cs, err := NewCallbackServer("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer cs.Close()

	go func() {
		resp, err := http.Get(cs.RedirectURL("github") + "?code=abc&state=forged")
		if err == nil {
			resp.Body.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = cs.Wait(ctx, &Session{Provider: "github", State: "st-1"})
	assert.True(t, authflow.HasCode(err, authflow.ErrCodeOAuthStateMismatch))
}

func TestCallbackServer_ContextDone(t *testing.T) {
	cs, err := NewCallbackServer("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer cs.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cs.Wait(ctx, &Session{Provider: "github"})
	assert.ErrorIs(t, err, context.Canceled)
}
