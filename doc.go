// Package authflow provides the client side of an authentication flow:
// registration, login, email verification, password reset, two-factor
// authentication (TOTP and backup codes) and OAuth sign-in against a remote
// auth API.
//
// The remote API owns every security decision. This module only reacts to
// its pass/fail answers and decides which screen the user sees next.
//
// # Architecture
//
// AuthState: the durable record of the session (authenticated, user,
// email verification, 2FA flags, OAuth provider). It lives in a store.Store
// which persists every mutation to a Backend (JSON file or SQLite), so a
// second process opened on the same backend sees the same session.
//
// Flows: package flow turns API responses into store updates and
// navigation. The login routing decision picks between a full login,
// 2FA verification and 2FA setup, and always updates the store before
// navigating so route guards (Guard) read consistent state.
//
// Wizards: package twofactor holds the setup wizard (qr, verify, backup)
// and the login-time verify flow. Both use the OTP input model from
// package otp.
//
// # Basic Usage
//
//	backend, _ := fs.New("", "myapp")
//	st, _ := store.Open(backend)
//	api := client.New("https://api.example.com", client.WithTokenStore(st))
//	flows := flow.New(api, st, navigator, notifier)
//
//	decision, err := flows.Login(ctx, authflow.LoginForm{
//	    Email:    "user@example.com",
//	    Password: "Secret123",
//	})
//
// Navigator and Notifier are the only UI seams: the first moves the user to
// a Route, the second shows a transient message.
//
// # Errors
//
// Every failure is an *AuthError carrying a Kind: validation errors never
// reach the network, rejected errors carry the server's message, transport
// errors show a generic connection message, unexpected errors are logged.
// Nothing is retried automatically.
package authflow
