package provider

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Navigator moves the user's browsing context to target. Interactive
// authentication and sign-out end with a navigation and never return a value.
type Navigator interface {
	Navigate(ctx context.Context, target string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(ctx context.Context, target string)

func (f NavigatorFunc) Navigate(ctx context.Context, target string) { f(ctx, target) }

type contextKey string

const (
	navigatorKey contextKey = "navigator"
	returnURLKey contextKey = "return_url"
)

// WithNavigator binds the browsing context of the current request to ctx
func WithNavigator(ctx context.Context, nav Navigator) context.Context {
	return context.WithValue(ctx, navigatorKey, nav)
}

// WithReturnURL records where the application should resume after sign-in
func WithReturnURL(ctx context.Context, returnURL string) context.Context {
	return context.WithValue(ctx, returnURLKey, returnURL)
}

// NavigatorFromContext returns the navigator bound with WithNavigator
func NavigatorFromContext(ctx context.Context) (Navigator, bool) {
	nav, ok := ctx.Value(navigatorKey).(Navigator)
	return nav, ok && nav != nil
}

func navigatorFromContext(ctx context.Context, fallback Navigator) Navigator {
	if nav, ok := NavigatorFromContext(ctx); ok {
		return nav
	}
	return fallback
}

func returnURLFromContext(ctx context.Context) string {
	if u, ok := ctx.Value(returnURLKey).(string); ok && u != "" {
		return u
	}
	return "/"
}

// logNavigator is used when no browsing context is bound, e.g. for calls made
// outside an HTTP request. The user has to open the URL themselves.
type logNavigator struct{}

func (logNavigator) Navigate(_ context.Context, target string) {
	log.Warn().Str("url", target).Msg("Open this URL in your browser to continue")
}
