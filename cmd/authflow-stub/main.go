// Command authflow-stub serves the in-memory auth API for local development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/panyam/authflow/internal/fakeapi"
	"github.com/panyam/authflow/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// seedList collects repeated -seed email:password flags
type seedList []string

func (s *seedList) String() string     { return strings.Join(*s, ",") }
func (s *seedList) Set(v string) error { *s = append(*s, v); return nil }

func run(ctx context.Context, args []string, out io.Writer) error {
	set := flag.NewFlagSet("authflow-stub", flag.ContinueOnError)
	set.SetOutput(out)
	addr := set.String("addr", "127.0.0.1:8080", "Listen address")
	code := set.String("totp-code", fakeapi.DefaultTOTPCode, "Authenticator code the stub accepts")
	anyCode := set.Bool("any-code", false, "Accept every 6-digit code")
	require2FA := set.Bool("require-2fa", false, "Force users without 2FA to enroll at login")
	logLevel := set.String("log-level", "info", "debug, info, warn or error")
	var seeds seedList
	set.Var(&seeds, "seed", "Verified user to create, as email:password (repeatable)")
	if err := set.Parse(args); err != nil {
		return err
	}

	logger, err := logging.New(out, *logLevel, "text")
	if err != nil {
		return err
	}

	api := fakeapi.New()
	api.TOTPCode = *code
	api.AcceptAnyCode = *anyCode
	api.RequireTwoFactor = *require2FA
	api.Logger = logger
	api.EnsureDefaults()

	for _, seed := range seeds {
		email, password, ok := strings.Cut(seed, ":")
		if !ok {
			return fmt.Errorf("invalid -seed %q, want email:password", seed)
		}
		if _, err := api.SeedUser(email, password, fakeapi.WithVerifiedEmail()); err != nil {
			return fmt.Errorf("failed to seed %s: %w", email, err)
		}
		logger.Info("seeded user", "email", email)
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("stub API listening", "addr", *addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
