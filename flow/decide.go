package flow

import (
	"github.com/panyam/authflow"
	"github.com/panyam/authflow/client"
)

// Outcome is the kind of screen a login response leads to
type Outcome int

const (
	// OutcomeLoggedIn is a complete login
	OutcomeLoggedIn Outcome = iota
	// OutcomeVerifyTwoFactor means a second factor must be entered
	OutcomeVerifyTwoFactor
	// OutcomeSetupTwoFactor means 2FA must be enrolled before continuing
	OutcomeSetupTwoFactor
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoggedIn:
		return "logged_in"
	case OutcomeVerifyTwoFactor:
		return "verify_two_factor"
	case OutcomeSetupTwoFactor:
		return "setup_two_factor"
	}
	return "unknown"
}

// Decision is what a login response means for the store and the router
type Decision struct {
	Outcome Outcome
	Route   authflow.Route

	// 2FA flags to store, all three set together
	TwoFactorEnabled       bool
	TwoFactorVerified      bool
	RequiresTwoFactorSetup bool

	// User and EmailVerified are only meaningful for OutcomeLoggedIn
	User          *authflow.User
	EmailVerified bool
}

// Decide maps a login-shaped response to a Decision. It is pure: applying
// the decision is up to the caller.
func Decide(resp *client.LoginResponse) Decision {
	if resp.RequiresTwoFactor {
		d := Decision{
			TwoFactorEnabled:       resp.TwoFactorEnabled,
			TwoFactorVerified:      false,
			RequiresTwoFactorSetup: !resp.TwoFactorEnabled,
		}
		if resp.TwoFactorEnabled {
			d.Outcome = OutcomeVerifyTwoFactor
			d.Route = authflow.RouteTwoFactorVerify
		} else {
			d.Outcome = OutcomeSetupTwoFactor
			d.Route = authflow.RouteTwoFactorSetup
		}
		return d
	}

	// No second factor is owed. A session with 2FA on counts as verified;
	// without 2FA, verified stays false to keep verified => enabled.
	d := Decision{
		Outcome:           OutcomeLoggedIn,
		TwoFactorEnabled:  resp.TwoFactorEnabled,
		TwoFactorVerified: resp.TwoFactorEnabled,
		User:              resp.User,
		EmailVerified:     resp.EmailVerified,
	}
	d.Route = authflow.Landing(authflow.AuthState{IsAuthenticated: true, EmailVerified: resp.EmailVerified})
	return d
}
