package authflow

import "log/slog"

// Route identifies a screen of the application
type Route string

const (
	RouteLogin              Route = "/login"
	RouteRegister           Route = "/register"
	RouteTwoFactorSetup     Route = "/2fa/setup"
	RouteTwoFactorVerify    Route = "/2fa/verify"
	RouteVerifyEmailPending Route = "/verify-email/pending"
	RouteVerifyEmail        Route = "/verify-email"
	RouteForgotPassword     Route = "/forgot-password"
	RouteResetPassword      Route = "/reset-password"
	RouteDashboard          Route = "/dashboard"
)

// Navigator moves the user to another screen
type Navigator interface {
	Navigate(route Route)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(route Route)

func (f NavigatorFunc) Navigate(route Route) { f(route) }

// Level is the severity of a user notification
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier shows transient messages (toasts) to the user
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(level Level, message string)

func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// LogNotifier writes notifications to a logger. Used by headless callers.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(level Level, message string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch level {
	case LevelError:
		logger.Error(message, "component", "notify")
	case LevelWarning:
		logger.Warn(message, "component", "notify")
	default:
		logger.Info(message, "component", "notify", "level", string(level))
	}
}

// Landing returns the route an authenticated user lands on
func Landing(state AuthState) Route {
	if !state.EmailVerified {
		return RouteVerifyEmailPending
	}
	return RouteDashboard
}

// Guard decides where a request for a protected route must go. It returns
// the empty route when access is allowed.
func Guard(state AuthState, target Route) Route {
	switch target {
	case RouteTwoFactorSetup:
		if state.RequiresTwoFactorSetup || state.IsAuthenticated {
			return ""
		}
		return RouteLogin
	case RouteTwoFactorVerify:
		if state.TwoFactorEnabled && !state.TwoFactorVerified {
			return ""
		}
		if state.IsAuthenticated {
			return Landing(state)
		}
		return RouteLogin
	case RouteLogin, RouteRegister, RouteForgotPassword, RouteResetPassword, RouteVerifyEmail:
		if state.IsAuthenticated && !state.TwoFactorPending() {
			return Landing(state)
		}
		return ""
	case RouteVerifyEmailPending:
		if state.IsAuthenticated && state.EmailVerified {
			return RouteDashboard
		}
		return ""
	}

	// everything else is protected
	if state.RequiresTwoFactorSetup {
		return RouteTwoFactorSetup
	}
	if state.TwoFactorEnabled && !state.TwoFactorVerified {
		return RouteTwoFactorVerify
	}
	if !state.IsAuthenticated {
		return RouteLogin
	}
	if !state.EmailVerified {
		return RouteVerifyEmailPending
	}
	return ""
}
