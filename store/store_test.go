package store

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/authflow"
)

func testUser() *authflow.User {
	first := "Ada"
	return &authflow.User{ID: "u1", Email: "ada@example.com", EmailVerified: true, FirstName: &first}
}

func TestStore_InitialState(t *testing.T) {
	s, err := Open(NewMemoryBackend())
	require.NoError(t, err)
	assert.Equal(t, authflow.AuthState{}, s.State())
}

func TestStore_LoginRoundTrip(t *testing.T) {
	backend := NewMemoryBackend()
	s, err := Open(backend)
	require.NoError(t, err)

	u := testUser()
	require.NoError(t, s.Login(u))

	reopened, err := Open(backend)
	require.NoError(t, err)
	got := reopened.State()
	assert.True(t, got.IsAuthenticated)
	assert.Equal(t, u, got.User)
	assert.True(t, got.EmailVerified)
}

func TestStore_LoginClearsSetupFlag(t *testing.T) {
	s, _ := Open(NewMemoryBackend())
	require.NoError(t, s.SetTwoFactorStatus(false, false, true))
	require.NoError(t, s.Login(testUser(), WithProvider("github"), WithEmailVerified(false)))

	st := s.State()
	assert.False(t, st.RequiresTwoFactorSetup)
	assert.Equal(t, "github", st.OAuthProvider)
	assert.False(t, st.EmailVerified)
}

func TestStore_StateIsACopy(t *testing.T) {
	s, _ := Open(NewMemoryBackend())
	require.NoError(t, s.Login(testUser()))

	st := s.State()
	st.User.Email = "changed@example.com"
	assert.Equal(t, "ada@example.com", s.State().User.Email)
}

func TestStore_SetTwoFactorStatusRejectsInconsistent(t *testing.T) {
	s, _ := Open(NewMemoryBackend())
	require.NoError(t, s.SetTwoFactorStatus(true, false, false))

	err := s.SetTwoFactorStatus(false, true, false)
	assert.ErrorIs(t, err, ErrInconsistentTwoFactor)

	st := s.State()
	assert.True(t, st.TwoFactorEnabled)
	assert.False(t, st.TwoFactorVerified)
}

func TestStore_ApplyIsAllOrNothing(t *testing.T) {
	s, _ := Open(NewMemoryBackend())
	boom := errors.New("boom")

	err := s.Apply(LoginUser(testUser()), func(*authflow.AuthState) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, s.State().IsAuthenticated)
}

func TestStore_SetEmailVerified(t *testing.T) {
	s, _ := Open(NewMemoryBackend())
	u := testUser()
	u.EmailVerified = false
	require.NoError(t, s.Login(u))
	require.NoError(t, s.SetTwoFactorStatus(true, true, false))

	require.NoError(t, s.SetEmailVerified(true))
	st := s.State()
	assert.True(t, st.EmailVerified)
	assert.True(t, st.User.EmailVerified)
	assert.True(t, st.TwoFactorVerified)
}

func TestStore_LogoutClearsEverything(t *testing.T) {
	backend := NewMemoryBackend()
	s, _ := Open(backend)
	require.NoError(t, s.Login(testUser()))
	require.NoError(t, s.SetCredential(&authflow.Credential{AccessToken: "tok"}))

	purged := false
	s.OnLogout(func() { purged = true })

	require.NoError(t, s.Logout())
	assert.True(t, purged)
	assert.Equal(t, authflow.AuthState{}, s.State())
	cred, _ := s.Credential()
	assert.Nil(t, cred)

	data, _ := backend.Load(RecordKey)
	assert.Nil(t, data)
}

func TestStore_SecondTabSeesLogin(t *testing.T) {
	backend := NewMemoryBackend()
	tab1, _ := Open(backend)
	tab2, _ := Open(backend)

	require.NoError(t, tab1.Login(testUser()))
	assert.False(t, tab2.State().IsAuthenticated)

	var seen []authflow.AuthState
	tab2.Subscribe(func(st authflow.AuthState) { seen = append(seen, st) })
	require.NoError(t, tab2.Refresh())
	assert.True(t, tab2.State().IsAuthenticated)
	require.Len(t, seen, 1)

	tab3, _ := Open(backend)
	assert.True(t, tab3.State().IsAuthenticated)
}

func TestStore_SubscribeAndUnsubscribe(t *testing.T) {
	s, _ := Open(NewMemoryBackend())
	count := 0
	unsubscribe := s.Subscribe(func(authflow.AuthState) { count++ })

	require.NoError(t, s.SetEmailVerified(true))
	unsubscribe()
	require.NoError(t, s.SetEmailVerified(false))
	assert.Equal(t, 1, count)
}

func TestStore_CredentialPersisted(t *testing.T) {
	backend := NewMemoryBackend()
	s, _ := Open(backend)
	require.NoError(t, s.SetCredential(&authflow.Credential{TempToken: "temp"}))

	reopened, _ := Open(backend)
	cred, err := reopened.Credential()
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "temp", cred.TempToken)
}

func TestStore_RecordShape(t *testing.T) {
	backend := NewMemoryBackend()
	s, _ := Open(backend)
	require.NoError(t, s.Login(testUser()))

	data, _ := backend.Load(RecordKey)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, 1, raw["version"])
	state := raw["state"].(map[string]any)
	assert.Equal(t, true, state["isAuthenticated"])
	assert.Contains(t, state, "requiresTwoFactorSetup")
}

func TestStore_MigratesVersionZero(t *testing.T) {
	backend := NewMemoryBackend()
	v0 := `{"state":{"isAuthenticated":true,"emailVerified":true,"user":{"id":"u1","email":"ada@example.com","email_verified":true},"provider":"google","twoFactorEnabled":true,"twoFactorVerified":true}}`
	require.NoError(t, backend.Save(RecordKey, []byte(v0)))

	s, err := Open(backend)
	require.NoError(t, err)
	st := s.State()
	assert.Equal(t, "google", st.OAuthProvider)
	assert.True(t, st.TwoFactorVerified)
	assert.False(t, st.RequiresTwoFactorSetup)
	assert.Equal(t, "u1", st.User.ID)
}

func TestStore_SanitizesInvalidRecord(t *testing.T) {
	backend := NewMemoryBackend()
	bad := `{"version":1,"state":{"isAuthenticated":false,"user":{"id":"ghost"},"twoFactorVerified":true}}`
	require.NoError(t, backend.Save(RecordKey, []byte(bad)))

	s, err := Open(backend)
	require.NoError(t, err)
	assert.True(t, s.State().Valid())
}

func TestStore_UnknownVersion(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(RecordKey, []byte(`{"version":99,"state":{}}`)))
	_, err := Open(backend)
	assert.Error(t, err)
}

func TestStore_ClosedRejectsMutations(t *testing.T) {
	s, _ := Open(NewMemoryBackend())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Login(testUser()), ErrClosed)
}
