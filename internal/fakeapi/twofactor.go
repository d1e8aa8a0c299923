package fakeapi

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/panyam/authflow/otp"
)

// acceptCode reports whether code passes as an authenticator code
func (s *Server) acceptCode(code string) bool {
	if len(code) != 6 || otp.Digits(code) != code {
		return false
	}
	return s.AcceptAnyCode || code == s.TOTPCode
}

// qrDataURI renders the otpauth URI as a data URI. It is not a real QR
// image; the client only displays or saves it.
func qrDataURI(email, secret string) string {
	uri := fmt.Sprintf("otpauth://totp/authflow:%s?secret=%s&issuer=authflow", url.PathEscape(email), secret)
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(uri))
}

func (s *Server) handleSetupTwoFactor(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r)

	var secret, email string
	already := false
	s.users.update(func() {
		if acct.twoFactorEnabled {
			already = true
			return
		}
		if acct.pendingSecret == "" {
			acct.pendingSecret = newSecret()
		}
		secret, email = acct.pendingSecret, acct.user.Email
	})
	if already {
		writeError(w, http.StatusBadRequest, "2FA is already enabled", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"secret":  secret,
		"qr_code": qrDataURI(email, secret),
	})
}

func (s *Server) handleEnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r)
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	var codes []string
	status, msg := http.StatusOK, ""
	s.users.update(func() {
		switch {
		case acct.twoFactorEnabled:
			status, msg = http.StatusBadRequest, "2FA is already enabled"
		case acct.pendingSecret == "":
			status, msg = http.StatusBadRequest, "2FA setup has not been started"
		case !s.acceptCode(req.Code):
			status, msg = http.StatusBadRequest, "Invalid verification code"
		default:
			acct.twoFactorEnabled = true
			acct.setupRequired = false
			acct.secret = acct.pendingSecret
			acct.pendingSecret = ""
			codes = newBackupCodes(BackupCodeCount)
			acct.backupCodes = make(map[string]bool, len(codes))
			for _, c := range codes {
				acct.backupCodes[normalizeBackupCode(c)] = true
			}
		}
	})
	if status != http.StatusOK {
		writeError(w, status, msg, "code")
		return
	}

	s.Logger.Info("two-factor enabled", "component", "fakeapi", "user", acct.user.ID)
	writeJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (s *Server) handleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	acct, ctx, err := s.pendingUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Two-factor session expired. Please log in again.", "")
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	ok := false
	s.users.update(func() {
		if !acct.twoFactorEnabled {
			return
		}
		if s.acceptCode(req.Code) {
			ok = true
			return
		}
		// backup codes are single use
		key := normalizeBackupCode(req.Code)
		if strings.TrimSpace(req.Code) != "" && acct.backupCodes[key] {
			delete(acct.backupCodes, key)
			ok = true
		}
	})
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid 2FA code", "code")
		return
	}

	if err := s.sessions.Destroy(ctx); err != nil {
		s.Logger.Warn("failed to destroy pending session", "component", "fakeapi", "err", err)
	}
	token, err := s.createAccessToken(acct.user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Verification failed", "")
		return
	}

	s.users.mu.RLock()
	user := acct.user.Clone()
	s.users.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":       token,
		"user":               user,
		"email_verified":     user.EmailVerified,
		"two_factor_enabled": true,
	})
}
