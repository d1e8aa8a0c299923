package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/panyam/authflow"
	"github.com/panyam/authflow/cache/ristretto"
	"github.com/panyam/authflow/client"
	"github.com/panyam/authflow/config"
	"github.com/panyam/authflow/flow"
	"github.com/panyam/authflow/logging"
	"github.com/panyam/authflow/store"
	"github.com/panyam/authflow/store/fs"
	"github.com/panyam/authflow/store/sqlite"
)

const appName = "authflow"

var (
	ErrMissingCommand = errors.New("missing command")
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingFlag    = errors.New("missing required flag")
	ErrInvalidFlag    = errors.New("invalid flag")
	ErrNoInput        = errors.New("no input")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	name  string
	usage string
	run   func(a *app, ctx context.Context, args []string) error
}

var commands = []command{
	{"status", "Show the stored auth state", (*app).cmdStatus},
	{"me", "Fetch the signed in user", (*app).cmdMe},
	{"login", "Sign in with email and password", (*app).cmdLogin},
	{"register", "Create an account", (*app).cmdRegister},
	{"verify-2fa", "Enter a TOTP or backup code to finish signing in", (*app).cmdVerifyTwoFactor},
	{"setup-2fa", "Enroll an authenticator app", (*app).cmdSetupTwoFactor},
	{"verify-email", "Confirm an email address, or resend the link", (*app).cmdVerifyEmail},
	{"forgot-password", "Request a password reset link", (*app).cmdForgotPassword},
	{"reset-password", "Set a new password from a reset link", (*app).cmdResetPassword},
	{"oauth", "Sign in with an OAuth provider", (*app).cmdOAuth},
	{"logout", "Sign out and clear the stored state", (*app).cmdLogout},
	{"exec", "Run a streamed server task", (*app).cmdExec},
}

func usage(out io.Writer) {
	fmt.Fprintf(out, "Usage: %s [-config path] <command> [options]\n\nCommands:\n", appName)
	for _, c := range commands {
		fmt.Fprintf(out, "  %-16s %s\n", c.name, c.usage)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fset := flag.NewFlagSet(appName, flag.ContinueOnError)
	fset.SetOutput(stdout)
	configPath := fset.String("config", "", "Path to the TOML config file")
	fset.Usage = func() { usage(stdout) }

	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	}
	rest := fset.Args()
	if len(rest) < 1 {
		usage(stdout)
		return ErrMissingCommand
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == rest[0] {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		usage(stdout)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, rest[0])
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, stdin, stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	return cmd.run(a, ctx, rest[1:])
}

// app wires the configured components together for one command
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	in     *bufio.Scanner
	out    io.Writer
	store  *store.Store
	client *client.Client
	users  *ristretto.Cache[*authflow.User]
	flows  *flow.Flows
	policy authflow.PasswordPolicy
}

func newApp(cfg *config.Config, stdin io.Reader, stdout io.Writer) (*app, error) {
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(cfg.Store)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(backend, store.WithLogger(logger))
	if err != nil {
		backend.Close()
		return nil, err
	}

	users, err := ristretto.New[*authflow.User](cfg.Cache.Level)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		in:     bufio.NewScanner(stdin),
		out:    stdout,
		store:  st,
		users:  users,
		policy: authflow.PasswordPolicy{
			MinLength:      cfg.Password.MinLength,
			RequireUpper:   cfg.Password.RequireUpper,
			RequireLower:   cfg.Password.RequireLower,
			RequireDigit:   cfg.Password.RequireDigit,
			RequireSpecial: cfg.Password.RequireSpecial,
		},
	}
	a.client = client.New(cfg.API.URL,
		client.WithTokenStore(st),
		client.WithTimeout(cfg.API.Timeout.Duration),
		client.WithLogger(logger),
	)
	a.flows = flow.New(a.client, st, a, a,
		flow.WithCache(users),
		flow.WithPasswordPolicy(a.policy),
		flow.WithCurrentUserTTL(cfg.Cache.TTL.Duration),
		flow.WithLogger(logger),
	)
	return a, nil
}

func openBackend(cfg config.Store) (store.Backend, error) {
	switch cfg.Backend {
	case config.StoreMemory:
		return store.NewMemoryBackend(), nil
	case config.StoreSQLite:
		path := cfg.Path
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			path = filepath.Join(dir, appName, "auth-store.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		return sqlite.Open(path)
	default:
		return fs.New(cfg.Path, appName)
	}
}

func (a *app) Close() {
	a.users.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", "err", err)
	}
}

// Navigate prints the screen a GUI would switch to
func (a *app) Navigate(route authflow.Route) {
	fmt.Fprintf(a.out, "-> %s\n", route)
}

// Notify prints a notification
func (a *app) Notify(level authflow.Level, message string) {
	fmt.Fprintf(a.out, "[%s] %s\n", level, message)
}

// prompt returns value when set, else reads one line from stdin
func (a *app) prompt(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(a.out, "%s: ", label)
	if !a.in.Scan() {
		if err := a.in.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %s", ErrNoInput, strings.ToLower(label))
	}
	return strings.TrimSpace(a.in.Text()), nil
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	set.SetOutput(out)
	return set
}
