package authflow

// User is the account profile returned by the API.
type User struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	EmailVerified    bool    `json:"email_verified"`
	FirstName        *string `json:"first_name,omitempty"`
	LastName         *string `json:"last_name,omitempty"`
	DisplayName      *string `json:"display_name,omitempty"`
	AvatarURL        *string `json:"avatar_url,omitempty"`
	ProfileCompleted *bool   `json:"profile_completed,omitempty"`
}

// Name returns the best available human readable name for the user
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	if u.FirstName != nil && *u.FirstName != "" {
		if u.LastName != nil && *u.LastName != "" {
			return *u.FirstName + " " + *u.LastName
		}
		return *u.FirstName
	}
	return u.Email
}

// Clone returns a deep copy so callers can never alias store state
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.FirstName = cloneString(u.FirstName)
	out.LastName = cloneString(u.LastName)
	out.DisplayName = cloneString(u.DisplayName)
	out.AvatarURL = cloneString(u.AvatarURL)
	if u.ProfileCompleted != nil {
		b := *u.ProfileCompleted
		out.ProfileCompleted = &b
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// AuthState is the durable client-side record of the session.
//
// Invariants:
//   - IsAuthenticated == false implies User == nil
//   - TwoFactorVerified == true implies TwoFactorEnabled == true
type AuthState struct {
	IsAuthenticated        bool   `json:"isAuthenticated"`
	EmailVerified          bool   `json:"emailVerified"`
	User                   *User  `json:"user"`
	OAuthProvider          string `json:"oauthProvider,omitempty"`
	TwoFactorEnabled       bool   `json:"twoFactorEnabled"`
	TwoFactorVerified      bool   `json:"twoFactorVerified"`
	RequiresTwoFactorSetup bool   `json:"requiresTwoFactorSetup"`
}

// Clone returns a deep copy of the state
func (s AuthState) Clone() AuthState {
	s.User = s.User.Clone()
	return s
}

// Valid reports whether the state satisfies the store invariants
func (s AuthState) Valid() bool {
	if !s.IsAuthenticated && s.User != nil {
		return false
	}
	if s.TwoFactorVerified && !s.TwoFactorEnabled {
		return false
	}
	return true
}

// TwoFactorPending is true when the user passed the password step but still
// owes a second factor (either setup or verification).
func (s AuthState) TwoFactorPending() bool {
	if s.RequiresTwoFactorSetup {
		return true
	}
	return s.TwoFactorEnabled && !s.TwoFactorVerified
}
