package twofactor

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/panyam/authflow"
	"github.com/panyam/authflow/client"
	"github.com/panyam/authflow/otp"
	"github.com/panyam/authflow/store"
)

// Mode selects what kind of code the verify screen takes
type Mode int

const (
	ModeTOTP Mode = iota
	ModeBackup
)

func (m Mode) String() string {
	if m == ModeBackup {
		return "backup"
	}
	return "totp"
}

// Backup code length bounds, not counting dashes
const (
	MinBackupCodeLength = 8
	MaxBackupCodeLength = 12
)

// VerifyAPI is the part of the API the verify step calls
type VerifyAPI interface {
	VerifyTwoFactor(ctx context.Context, code string) (*client.VerifyTwoFactorResponse, error)
}

// VerifyFlow completes a login that owes a second factor
type VerifyFlow struct {
	api    VerifyAPI
	store  *store.Store
	nav    authflow.Navigator
	notify authflow.Notifier
	cfg    settings
	input  *otp.Input
	busy   atomic.Bool

	mu        sync.Mutex
	mode      Mode
	backup    string
	submitCtx context.Context
}

// NewVerifyFlow creates a verify step in TOTP mode
func NewVerifyFlow(api VerifyAPI, st *store.Store, nav authflow.Navigator, notify authflow.Notifier, opts ...Option) (*VerifyFlow, error) {
	cfg := defaults()
	for _, opt := range opts {
		opt(&cfg)
	}
	v := &VerifyFlow{
		api:       api,
		store:     st,
		nav:       nav,
		notify:    notify,
		cfg:       cfg,
		submitCtx: context.Background(),
	}
	if v.notify == nil {
		v.notify = authflow.LogNotifier{Logger: cfg.logger}
	}
	input, err := otp.New(cfg.codeLength,
		otp.WithSubmitDelay(cfg.submitDelay),
		otp.WithOnComplete(v.autoSubmit),
	)
	if err != nil {
		return nil, err
	}
	v.input = input
	return v, nil
}

// Bind sets the context used by auto-submitted codes
func (v *VerifyFlow) Bind(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.submitCtx = ctx
}

// OTP returns the TOTP code input
func (v *VerifyFlow) OTP() *otp.Input {
	return v.input
}

// Busy reports whether a request is in flight
func (v *VerifyFlow) Busy() bool {
	return v.busy.Load()
}

// Mode returns the current entry mode
func (v *VerifyFlow) Mode() Mode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

// ToggleMode switches between TOTP and backup code entry, clearing both drafts
func (v *VerifyFlow) ToggleMode() Mode {
	v.mu.Lock()
	if v.mode == ModeTOTP {
		v.mode = ModeBackup
	} else {
		v.mode = ModeTOTP
	}
	v.backup = ""
	mode := v.mode
	v.mu.Unlock()

	v.input.Reset()
	v.input.SetError(false)
	return mode
}

// SetBackupCode updates the backup code draft
func (v *VerifyFlow) SetBackupCode(code string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.backup = code
}

// BackupCode returns the backup code draft
func (v *VerifyFlow) BackupCode() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.backup
}

// Submit sends the draft of the current mode
func (v *VerifyFlow) Submit(ctx context.Context) error {
	v.mu.Lock()
	mode, backup := v.mode, v.backup
	v.mu.Unlock()
	if mode == ModeBackup {
		return v.SubmitCode(ctx, backup)
	}
	return v.SubmitCode(ctx, v.input.Value())
}

func (v *VerifyFlow) autoSubmit(code string) {
	v.mu.Lock()
	ctx, mode := v.submitCtx, v.mode
	v.mu.Unlock()
	if mode != ModeTOTP {
		return
	}
	_ = v.SubmitCode(ctx, code)
}

// ValidBackupCode reports whether code has the backup code shape. Dashes
// and spaces are ignored.
func ValidBackupCode(code string) bool {
	n := 0
	for _, r := range code {
		switch {
		case r == '-' || r == ' ':
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			n++
		default:
			return false
		}
	}
	return n >= MinBackupCodeLength && n <= MaxBackupCodeLength
}

// SubmitCode verifies code in the current mode. A rejected code clears the
// input and leaves the store alone. An accepted code signs the user in with
// 2FA verified, all in one store update, then navigates to the landing route.
func (v *VerifyFlow) SubmitCode(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if v.Mode() == ModeBackup {
		if !ValidBackupCode(code) {
			return authflow.NewAuthError(authflow.ErrCodeInvalidCode, "Backup codes are 8 to 12 letters or digits", "code")
		}
	} else if !v.cfg.validTOTP(code) {
		v.input.SetError(true)
		return v.cfg.invalidTOTP()
	}

	if !v.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer v.busy.Store(false)
	v.input.SetDisabled(true)
	defer v.input.SetDisabled(false)

	resp, err := v.api.VerifyTwoFactor(ctx, code)
	if err != nil {
		v.cfg.logger.Info("two-factor verification rejected", "component", "twofactor", "err", err)
		v.input.Reset()
		v.input.SetError(true)
		v.SetBackupCode("")
		v.notify.Notify(authflow.LevelError, authflow.MessageFor(err, "Invalid verification code. Please try again."))
		return err
	}

	provider := v.store.State().OAuthProvider
	err = v.store.Apply(
		store.TwoFactorStatus(true, true, false),
		store.LoginUser(resp.User, store.WithEmailVerified(resp.EmailVerified), store.WithProvider(provider)),
	)
	if err != nil {
		return err
	}
	v.cfg.invalidateUser()
	v.input.SetError(false)
	v.cfg.logger.Info("two-factor verified", "component", "twofactor", "user", resp.User.ID)
	v.nav.Navigate(authflow.Landing(v.store.State()))
	return nil
}

// Close stops a pending auto-submit
func (v *VerifyFlow) Close() {
	v.input.Close()
}
