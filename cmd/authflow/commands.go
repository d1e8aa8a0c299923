package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/panyam/authflow"
	"github.com/panyam/authflow/oauth"
	"github.com/panyam/authflow/otp"
	"github.com/panyam/authflow/twofactor"
)

func (a *app) cmdStatus(ctx context.Context, args []string) error {
	if err := newFlagSet("status", a.out).Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	}
	state := a.store.State()
	fmt.Fprintf(a.out, "authenticated:       %t\n", state.IsAuthenticated)
	if state.User != nil {
		fmt.Fprintf(a.out, "user:                %s (%s)\n", state.User.Email, state.User.ID)
	}
	if state.OAuthProvider != "" {
		fmt.Fprintf(a.out, "provider:            %s\n", state.OAuthProvider)
	}
	fmt.Fprintf(a.out, "email verified:      %t\n", state.EmailVerified)
	fmt.Fprintf(a.out, "2fa enabled:         %t\n", state.TwoFactorEnabled)
	fmt.Fprintf(a.out, "2fa verified:        %t\n", state.TwoFactorVerified)
	fmt.Fprintf(a.out, "2fa setup required:  %t\n", state.RequiresTwoFactorSetup)
	if next := authflow.Guard(state, authflow.RouteDashboard); next != "" {
		fmt.Fprintf(a.out, "next:                %s\n", next)
	}
	return nil
}

func (a *app) cmdMe(ctx context.Context, args []string) error {
	if err := newFlagSet("me", a.out).Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	}
	user, err := a.flows.CurrentUser(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(user)
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	set := newFlagSet("login", a.out)
	email := set.String("email", "", "Account email")
	password := set.String("password", "", "Password (read from stdin when empty)")
	remember := set.Bool("remember", false, "Ask for a long-lived session")
	if err := set.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	}

	var err error
	if *email, err = a.prompt("Email", *email); err != nil {
		return err
	}
	if *password, err = a.prompt("Password", *password); err != nil {
		return err
	}
	_, err = a.flows.Login(ctx, authflow.LoginForm{Email: *email, Password: *password, RememberMe: *remember})
	return err
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	set := newFlagSet("register", a.out)
	email := set.String("email", "", "Account email")
	password := set.String("password", "", "Password")
	confirm := set.String("confirm", "", "Password again (defaults to -password)")
	first := set.String("first-name", "", "First name")
	last := set.String("last-name", "", "Last name")
	terms := set.Bool("accept-terms", false, "Accept the terms and conditions")
	if err := set.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	}
	if *confirm == "" {
		*confirm = *password
	}

	fmt.Fprintf(a.out, "password strength: %s\n", authflow.PasswordStrength(*password))
	form := authflow.RegisterForm{
		Email:           *email,
		Password:        *password,
		ConfirmPassword: *confirm,
		FirstName:       *first,
		LastName:        *last,
		AcceptTerms:     *terms,
	}
	_, err := a.flows.Register(ctx, form)
	var fe *authflow.AuthError
	if errors.As(err, &fe) && fe.Kind == authflow.KindValidation {
		errs := form.Validate(a.policy)
		fields := make([]string, 0, len(errs))
		for field := range errs {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fmt.Fprintf(a.out, "  %s: %s\n", field, errs[field].Message)
		}
	}
	return err
}

func (a *app) twoFactorOptions() []twofactor.Option {
	return []twofactor.Option{
		twofactor.WithCache(a.users),
		twofactor.WithLogger(a.logger),
		twofactor.WithCodeLength(a.cfg.OTP.Length),
		twofactor.WithSubmitDelay(a.cfg.OTP.SubmitDelay.Duration),
		twofactor.WithCopiedReset(a.cfg.Wizard.CopiedReset.Duration),
	}
}

func (a *app) cmdVerifyTwoFactor(ctx context.Context, args []string) error {
	set := newFlagSet("verify-2fa", a.out)
	code := set.String("code", "", "6-digit code from the authenticator app")
	backup := set.String("backup", "", "Backup code, instead of -code")
	if err := set.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	}

	v, err := twofactor.NewVerifyFlow(a.client, a.store, a, a, a.twoFactorOptions()...)
	if err != nil {
		return err
	}
	defer v.Close()

	if *backup != "" {
		v.ToggleMode()
		v.SetBackupCode(*backup)
		return v.Submit(ctx)
	}
	if *code, err = a.prompt("Code", *code); err != nil {
		return err
	}
	return v.SubmitCode(ctx, otp.Digits(*code))
}

func (a *app) cmdSetupTwoFactor(ctx context.Context, args []string) error {
	set := newFlagSet("setup-2fa", a.out)
	code := set.String("code", "", "6-digit code from the authenticator app")
	saveDir := set.String("save-dir", "", "Directory to save backup-codes.txt into")
	confirm := set.Bool("confirm", false, "Confirm the backup codes are saved")
	if err := set.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	}

	w, err := twofactor.NewSetupWizard(a.client, a.store, a, a, a.twoFactorOptions()...)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := <-w.Mount(ctx); err != nil {
		return err
	}
	qr := w.QRData()
	fmt.Fprintf(a.out, "secret:  %s\nqr code: %s\n", qr.Secret, qr.QRCode)
	if err := w.Continue(); err != nil {
		return err
	}

	if *code, err = a.prompt("Code", *code); err != nil {
		return err
	}
	if err := w.SubmitCode(ctx, otp.Digits(*code)); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "backup codes:")
	if err := w.DownloadCodes(a.out); err != nil {
		return err
	}
	if *saveDir != "" {
		path, err := w.SaveCodes(*saveDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "saved to %s\n", path)
	}

	if !*confirm {
		answer, err := a.prompt("Have you saved these codes? [y/N]", "")
		if err != nil && !errors.Is(err, ErrNoInput) {
			return err
		}
		*confirm = strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
	}
	w.ConfirmSaved(*confirm)
	return w.Finish()
}

func (a *app) cmdVerifyEmail(ctx context.Context, args []string) error {
	set := newFlagSet("verify-email", a.out)
	token := set.String("token", "", "Token from the verification link")
	resend := set.String("resend", "", "Send a new link to this email instead")
	if err := set.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	}
	if *resend != "" {
		return a.flows.ResendVerification(ctx, *resend)
	}
	if *token == "" {
		return fmt.Errorf("%w: -token", ErrMissingFlag)
	}
	return a.flows.VerifyEmail(ctx, *token)
}

func (a *app) cmdForgotPassword(ctx context.Context, args []string) error {
	set := newFlagSet("forgot-password", a.out)
	email := set.String("email", "", "Account email")
	if err := set.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	}
	var err error
	if *email, err = a.prompt("Email", *email); err != nil {
		return err
	}
	return a.flows.ForgotPassword(ctx, *email)
}

func (a *app) cmdResetPassword(ctx context.Context, args []string) error {
	set := newFlagSet("reset-password", a.out)
	token := set.String("token", "", "Token from the reset link")
	password := set.String("password", "", "New password")
	confirm := set.String("confirm", "", "New password again (defaults to -password)")
	if err := set.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	}
	if *confirm == "" {
		*confirm = *password
	}
	return a.flows.ResetPassword(ctx, authflow.ResetPasswordForm{Token: *token, Password: *password, ConfirmPassword: *confirm})
}

func (a *app) cmdOAuth(ctx context.Context, args []string) error {
	set := newFlagSet("oauth", a.out)
	name := set.String("provider", "", "Provider name from the config (github, google, ...)")
	if err := set.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	}
	if *name == "" {
		return fmt.Errorf("%w: -provider", ErrMissingFlag)
	}
	pc := a.cfg.OAuth.Providers[*name]

	server, err := oauth.NewCallbackServer(a.cfg.OAuth.CallbackAddr, a.logger)
	if err != nil {
		return err
	}
	defer server.Close()

	provider, err := oauth.NewProvider(oauth.ProviderConfig{
		Name:         *name,
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		Scopes:       pc.Scopes,
		AuthURL:      pc.AuthURL,
		TokenURL:     pc.TokenURL,
	}, server.RedirectURL(*name))
	if err != nil {
		return err
	}
	session, err := provider.Begin()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Open this URL to sign in:\n\n  %s\n\n", session.URL)

	cb, err := server.Wait(ctx, session)
	if err != nil {
		return err
	}
	_, err = a.flows.OAuthCallback(ctx, cb.Provider, cb.Code, cb.State)
	return err
}

func (a *app) cmdLogout(ctx context.Context, args []string) error {
	if err := newFlagSet("logout", a.out).Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	}
	return a.flows.Logout(ctx)
}

func (a *app) cmdExec(ctx context.Context, args []string) error {
	set := newFlagSet("exec", a.out)
	path := set.String("path", "/tasks/execute", "Task endpoint")
	payload := set.String("payload", "{}", "JSON request body")
	if err := set.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	}
	var body json.RawMessage
	if err := json.Unmarshal([]byte(*payload), &body); err != nil {
		return fmt.Errorf("%w: -payload is not JSON: %v", ErrInvalidFlag, err)
	}

	task, err := a.client.Execute(ctx, *path, body)
	if err != nil {
		return err
	}
	// interrupting the command cancels the task
	stop := context.AfterFunc(ctx, task.Cancel)
	defer stop()

	for ev := range task.Events() {
		fmt.Fprintf(a.out, "%s %s\n", ev.Type, ev.Data)
	}
	if err := task.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	if ctx.Err() != nil {
		fmt.Fprintln(a.out, "cancelled")
	}
	return nil
}
