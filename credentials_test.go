package authflow

import (
	"testing"
	"time"
)

func TestCredential_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{
			name:      "expired",
			expiresAt: time.Now().Add(-1 * time.Hour),
			want:      true,
		},
		{
			name:      "not expired",
			expiresAt: time.Now().Add(1 * time.Hour),
			want:      false,
		},
		{
			name:      "no expiry",
			expiresAt: time.Time{},
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Credential{ExpiresAt: tt.expiresAt}
			if got := c.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCredential_IsExpiringSoon(t *testing.T) {
	c := &Credential{ExpiresAt: time.Now().Add(2 * time.Minute)}
	if !c.IsExpiringSoon(5 * time.Minute) {
		t.Errorf("IsExpiringSoon(5m) = false, want true")
	}
	if c.IsExpiringSoon(1 * time.Minute) {
		t.Errorf("IsExpiringSoon(1m) = true, want false")
	}
}

func TestCredential_Bearer(t *testing.T) {
	var nilCred *Credential
	if got := nilCred.Bearer(); got != "" {
		t.Errorf("nil Bearer() = %q, want empty", got)
	}

	c := &Credential{AccessToken: "access", TempToken: "temp"}
	if got := c.Bearer(); got != "temp" {
		t.Errorf("Bearer() = %q, want temp", got)
	}

	c.TempToken = ""
	if got := c.Bearer(); got != "access" {
		t.Errorf("Bearer() = %q, want access", got)
	}

	c.ExpiresAt = time.Now().Add(-time.Minute)
	if got := c.Bearer(); got != "" {
		t.Errorf("expired Bearer() = %q, want empty", got)
	}
	if c.HasAccessToken() {
		t.Errorf("HasAccessToken() = true for expired token")
	}
}
