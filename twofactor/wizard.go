package twofactor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/panyam/authflow"
	"github.com/panyam/authflow/client"
	"github.com/panyam/authflow/otp"
	"github.com/panyam/authflow/store"
)

// BackupCodesFileName is the name DownloadCodes output is saved under
const BackupCodesFileName = "backup-codes.txt"

// Step is a wizard screen
type Step int

const (
	StepQR Step = iota
	StepVerify
	StepBackup
)

func (s Step) String() string {
	switch s {
	case StepQR:
		return "qr"
	case StepVerify:
		return "verify"
	case StepBackup:
		return "backup"
	}
	return "unknown"
}

// SetupAPI is the part of the API the wizard calls
type SetupAPI interface {
	SetupTwoFactor(ctx context.Context) (*client.SetupResponse, error)
	EnableTwoFactor(ctx context.Context, code string) (*client.EnableResponse, error)
}

// SetupWizard walks a user through enrolling an authenticator app.
//
// The wizard starts on StepQR. Start fetches the secret and QR image, at
// most one request at a time. Continue moves to StepVerify where a code
// from the app is submitted, either explicitly or by filling the OTP input.
// A successful code moves to StepBackup, which lists the one-time backup
// codes. Finish requires the user to confirm the codes are saved.
type SetupWizard struct {
	api    SetupAPI
	store  *store.Store
	nav    authflow.Navigator
	notify authflow.Notifier
	cfg    settings
	input  *otp.Input
	group  singleflight.Group
	busy   atomic.Bool

	mu        sync.Mutex
	step      Step
	started   bool
	setup     *client.SetupResponse
	codes     []string
	confirmed bool
	submitCtx context.Context

	// copied is the index of the code last copied, or -1
	copied    int
	copyGen   uint64
	copyTimer *time.Timer
}

// NewSetupWizard creates a wizard on StepQR
func NewSetupWizard(api SetupAPI, st *store.Store, nav authflow.Navigator, notify authflow.Notifier, opts ...Option) (*SetupWizard, error) {
	cfg := defaults()
	for _, opt := range opts {
		opt(&cfg)
	}
	w := &SetupWizard{
		api:       api,
		store:     st,
		nav:       nav,
		notify:    notify,
		cfg:       cfg,
		copied:    -1,
		submitCtx: context.Background(),
	}
	if w.notify == nil {
		w.notify = authflow.LogNotifier{Logger: cfg.logger}
	}

	input, err := otp.New(cfg.codeLength,
		otp.WithSubmitDelay(cfg.submitDelay),
		otp.WithOnComplete(w.autoSubmit),
	)
	if err != nil {
		return nil, err
	}
	w.input = input
	return w, nil
}

// Step returns the current screen
func (w *SetupWizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Busy reports whether a request is in flight
func (w *SetupWizard) Busy() bool {
	return w.busy.Load()
}

// OTP returns the code input of StepVerify
func (w *SetupWizard) OTP() *otp.Input {
	return w.input
}

// QRData returns the setup secret and QR image, or nil before Start succeeded
func (w *SetupWizard) QRData() *client.SetupResponse {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.setup == nil {
		return nil
	}
	out := *w.setup
	return &out
}

// Mount is the on-display hook. If setup was never started it starts it in
// the background and returns a channel that yields the outcome. Otherwise
// the returned channel is already closed.
func (w *SetupWizard) Mount(ctx context.Context) <-chan error {
	done := make(chan error, 1)

	w.mu.Lock()
	w.submitCtx = ctx
	if w.started || w.setup != nil {
		w.mu.Unlock()
		close(done)
		return done
	}
	w.started = true
	w.mu.Unlock()

	go func() {
		_, err := w.Start(ctx)
		done <- err
		close(done)
	}()
	return done
}

// Start requests the setup secret. Concurrent calls share one request and
// a completed setup is reused. If the server reports 2FA is already on, the
// store is marked as owing verification and the user is sent there.
func (w *SetupWizard) Start(ctx context.Context) (*client.SetupResponse, error) {
	w.mu.Lock()
	if w.setup != nil {
		out := *w.setup
		w.mu.Unlock()
		return &out, nil
	}
	w.started = true
	w.mu.Unlock()

	v, err, _ := w.group.Do("setup", func() (any, error) {
		w.mu.Lock()
		done := w.setup
		w.mu.Unlock()
		if done != nil {
			return done, nil
		}

		w.busy.Store(true)
		defer w.busy.Store(false)

		resp, err := w.api.SetupTwoFactor(ctx)
		if err != nil {
			w.mu.Lock()
			w.started = false
			w.mu.Unlock()
			w.setupFailed(err)
			return nil, err
		}

		w.mu.Lock()
		w.setup = resp
		w.mu.Unlock()
		w.cfg.logger.Info("two-factor setup started", "component", "twofactor")
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	out := *v.(*client.SetupResponse)
	return &out, nil
}

func (w *SetupWizard) setupFailed(err error) {
	if authflow.HasCode(err, authflow.ErrCodeTwoFactorEnabled) {
		w.cfg.logger.Info("two-factor already enabled, redirecting to verify", "component", "twofactor")
		if serr := w.store.SetTwoFactorStatus(true, false, false); serr != nil {
			w.cfg.logger.Error("failed to update two-factor status", "component", "twofactor", "err", serr)
			return
		}
		w.notify.Notify(authflow.LevelInfo, "Two-factor authentication is already enabled. Please enter your code.")
		w.nav.Navigate(authflow.RouteTwoFactorVerify)
		return
	}
	w.cfg.logger.Warn("two-factor setup failed", "component", "twofactor", "err", err)
	w.notify.Notify(authflow.LevelError, authflow.MessageFor(err, "Could not start two-factor setup."))
}

// Continue moves from the QR code to code entry
func (w *SetupWizard) Continue() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepQR {
		return ErrWrongStep
	}
	if w.setup == nil {
		return ErrNotStarted
	}
	w.step = StepVerify
	return nil
}

// BackToQR returns to the QR code, discarding the typed code
func (w *SetupWizard) BackToQR() error {
	w.mu.Lock()
	if w.step != StepVerify {
		w.mu.Unlock()
		return ErrWrongStep
	}
	w.step = StepQR
	w.mu.Unlock()

	w.input.Reset()
	w.input.SetError(false)
	return nil
}

func (w *SetupWizard) autoSubmit(code string) {
	w.mu.Lock()
	ctx := w.submitCtx
	w.mu.Unlock()
	// failures are already surfaced through the notifier
	_ = w.SubmitCode(ctx, code)
}

// SubmitCode confirms enrollment with a code from the authenticator app.
// On failure the input is cleared for another try and the wizard stays on
// StepVerify.
func (w *SetupWizard) SubmitCode(ctx context.Context, code string) error {
	if w.Step() != StepVerify {
		return ErrWrongStep
	}
	code = strings.TrimSpace(code)
	if !w.cfg.validTOTP(code) {
		w.input.SetError(true)
		return w.cfg.invalidTOTP()
	}
	if !w.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer w.busy.Store(false)
	w.input.SetDisabled(true)
	defer w.input.SetDisabled(false)

	resp, err := w.api.EnableTwoFactor(ctx, code)
	if err != nil {
		w.cfg.logger.Info("two-factor code rejected", "component", "twofactor", "err", err)
		w.input.Reset()
		w.input.SetError(true)
		w.notify.Notify(authflow.LevelError, authflow.MessageFor(err, "Invalid verification code. Please try again."))
		return err
	}

	w.mu.Lock()
	w.codes = append([]string(nil), resp.BackupCodes...)
	w.step = StepBackup
	w.mu.Unlock()

	w.input.SetError(false)
	w.cfg.logger.Info("two-factor enabled", "component", "twofactor", "backup_codes", len(resp.BackupCodes))
	w.notify.Notify(authflow.LevelSuccess, "Two-factor authentication enabled. Save your backup codes.")
	return nil
}

// BackupCodes returns the one-time codes issued on enrollment
func (w *SetupWizard) BackupCodes() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.codes...)
}

// CopyCode copies code i to the clipboard and flags it as copied for a
// short while.
func (w *SetupWizard) CopyCode(i int) error {
	w.mu.Lock()
	if w.step != StepBackup {
		w.mu.Unlock()
		return ErrWrongStep
	}
	if i < 0 || i >= len(w.codes) {
		w.mu.Unlock()
		return fmt.Errorf("backup code %d out of range", i)
	}
	code := w.codes[i]
	w.mu.Unlock()

	if w.cfg.clipboard == nil {
		return ErrNoClipboard
	}
	if err := w.cfg.clipboard.WriteText(code); err != nil {
		return fmt.Errorf("failed to copy backup code: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.copyTimer != nil {
		w.copyTimer.Stop()
	}
	w.copyGen++
	gen := w.copyGen
	w.copied = i
	w.copyTimer = time.AfterFunc(w.cfg.copiedReset, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.copyGen == gen {
			w.copied = -1
		}
	})
	return nil
}

// Copied reports whether code i was copied recently
func (w *SetupWizard) Copied(i int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.copied == i
}

// DownloadCodes writes the backup codes as a text file
func (w *SetupWizard) DownloadCodes(out io.Writer) error {
	codes := w.BackupCodes()
	if len(codes) == 0 {
		return ErrWrongStep
	}
	var b strings.Builder
	b.WriteString("Two-factor authentication backup codes\n")
	b.WriteString("Each code can be used once. Keep this file somewhere safe.\n\n")
	for _, c := range codes {
		b.WriteString(c)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(out, b.String())
	return err
}

// SaveCodes writes the backup codes to BackupCodesFileName in dir, readable
// only by the owner, and returns the file path.
func (w *SetupWizard) SaveCodes(dir string) (string, error) {
	path := filepath.Join(dir, BackupCodesFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := w.DownloadCodes(f); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// ConfirmSaved records the "I have saved my codes" checkbox
func (w *SetupWizard) ConfirmSaved(saved bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.confirmed = saved
}

// CanFinish reports whether the finish action is enabled
func (w *SetupWizard) CanFinish() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step == StepBackup && w.confirmed && !w.busy.Load()
}

// Finish leaves the wizard. A signed in user goes to the dashboard with 2FA
// marked verified; a user in the middle of logging in still has to verify a
// code and goes to the verify route.
func (w *SetupWizard) Finish() error {
	w.mu.Lock()
	step, confirmed := w.step, w.confirmed
	w.mu.Unlock()

	if step != StepBackup {
		return ErrWrongStep
	}
	if !confirmed {
		w.notify.Notify(authflow.LevelWarning, "Please confirm that you have saved your backup codes.")
		return ErrCodesNotConfirmed
	}

	if w.store.State().IsAuthenticated {
		if err := w.store.SetTwoFactorStatus(true, true, false); err != nil {
			return err
		}
		w.cfg.invalidateUser()
		w.nav.Navigate(authflow.RouteDashboard)
		return nil
	}

	if err := w.store.SetTwoFactorStatus(true, false, false); err != nil {
		return err
	}
	w.nav.Navigate(authflow.RouteTwoFactorVerify)
	return nil
}

// Close stops the OTP auto-submit timer and the copied-flag timer
func (w *SetupWizard) Close() {
	w.input.Close()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.copyTimer != nil {
		w.copyTimer.Stop()
	}
}
