package store

import (
	"encoding/json"
	"fmt"

	"github.com/panyam/authflow"
)

// RecordKey is the key the auth state is persisted under
const RecordKey = "auth-store"

// RecordVersion is the current persisted record version
const RecordVersion = 1

// record is the persisted JSON shape
type record struct {
	State      authflow.AuthState   `json:"state"`
	Credential *authflow.Credential `json:"credential,omitempty"`
	Version    int                  `json:"version"`
}

// v0State is the state shape written before versioning. It had no setup
// flag and kept the OAuth provider under "provider".
type v0State struct {
	IsAuthenticated   bool           `json:"isAuthenticated"`
	EmailVerified     bool           `json:"emailVerified"`
	User              *authflow.User `json:"user"`
	Provider          string         `json:"provider"`
	TwoFactorEnabled  bool           `json:"twoFactorEnabled"`
	TwoFactorVerified bool           `json:"twoFactorVerified"`
}

func encodeRecord(state authflow.AuthState, cred *authflow.Credential) ([]byte, error) {
	return json.Marshal(record{State: state, Credential: cred, Version: RecordVersion})
}

// decodeRecord parses a persisted record, migrating older versions
func decodeRecord(data []byte) (authflow.AuthState, *authflow.Credential, error) {
	var head struct {
		Version    int                  `json:"version"`
		State      json.RawMessage      `json:"state"`
		Credential *authflow.Credential `json:"credential"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return authflow.AuthState{}, nil, fmt.Errorf("failed to parse %s record: %w", RecordKey, err)
	}

	switch head.Version {
	case 0:
		var old v0State
		if len(head.State) > 0 {
			if err := json.Unmarshal(head.State, &old); err != nil {
				return authflow.AuthState{}, nil, fmt.Errorf("failed to migrate v0 record: %w", err)
			}
		}
		state := authflow.AuthState{
			IsAuthenticated:   old.IsAuthenticated,
			EmailVerified:     old.EmailVerified,
			User:              old.User,
			OAuthProvider:     old.Provider,
			TwoFactorEnabled:  old.TwoFactorEnabled,
			TwoFactorVerified: old.TwoFactorVerified,
		}
		return sanitize(state), head.Credential, nil
	case RecordVersion:
		var state authflow.AuthState
		if len(head.State) > 0 {
			if err := json.Unmarshal(head.State, &state); err != nil {
				return authflow.AuthState{}, nil, fmt.Errorf("failed to parse %s state: %w", RecordKey, err)
			}
		}
		return sanitize(state), head.Credential, nil
	}
	return authflow.AuthState{}, nil, fmt.Errorf("unsupported %s record version %d", RecordKey, head.Version)
}

// sanitize restores the state invariants on records edited by hand or
// written by a buggy version.
func sanitize(s authflow.AuthState) authflow.AuthState {
	if !s.IsAuthenticated {
		s.User = nil
	}
	if s.TwoFactorVerified && !s.TwoFactorEnabled {
		s.TwoFactorVerified = false
	}
	return s
}
