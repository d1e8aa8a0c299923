package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/panyam/authflow"
	"github.com/panyam/authflow/client"
)

func TestDecide(t *testing.T) {
	user := &authflow.User{ID: "u1", Email: "user@example.com"}

	tests := []struct {
		name     string
		resp     client.LoginResponse
		outcome  Outcome
		route    authflow.Route
		enabled  bool
		verified bool
		setup    bool
	}{
		{
			name:    "second factor owed",
			resp:    client.LoginResponse{RequiresTwoFactor: true, TwoFactorEnabled: true, TempToken: "t"},
			outcome: OutcomeVerifyTwoFactor,
			route:   authflow.RouteTwoFactorVerify,
			enabled: true,
		},
		{
			name:    "enrollment owed",
			resp:    client.LoginResponse{RequiresTwoFactor: true, TwoFactorEnabled: false, TempToken: "t"},
			outcome: OutcomeSetupTwoFactor,
			route:   authflow.RouteTwoFactorSetup,
			setup:   true,
		},
		{
			name:    "plain login",
			resp:    client.LoginResponse{AccessToken: "a", User: user, EmailVerified: true},
			outcome: OutcomeLoggedIn,
			route:   authflow.RouteDashboard,
		},
		{
			name:    "plain login unverified email",
			resp:    client.LoginResponse{AccessToken: "a", User: user},
			outcome: OutcomeLoggedIn,
			route:   authflow.RouteVerifyEmailPending,
		},
		{
			name:     "trusted session with 2fa on",
			resp:     client.LoginResponse{AccessToken: "a", User: user, EmailVerified: true, TwoFactorEnabled: true},
			outcome:  OutcomeLoggedIn,
			route:    authflow.RouteDashboard,
			enabled:  true,
			verified: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(&tt.resp)
			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.route, d.Route)
			assert.Equal(t, tt.enabled, d.TwoFactorEnabled)
			assert.Equal(t, tt.verified, d.TwoFactorVerified)
			assert.Equal(t, tt.setup, d.RequiresTwoFactorSetup)

			// whatever is stored must satisfy verified => enabled
			assert.True(t, !d.TwoFactorVerified || d.TwoFactorEnabled)
			assert.False(t, d.TwoFactorEnabled && d.RequiresTwoFactorSetup)
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "logged_in", OutcomeLoggedIn.String())
	assert.Equal(t, "verify_two_factor", OutcomeVerifyTwoFactor.String())
	assert.Equal(t, "setup_two_factor", OutcomeSetupTwoFactor.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
