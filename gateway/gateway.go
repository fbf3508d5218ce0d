// Package gateway attaches the active session's credential to outgoing API
// requests and turns authorization failures into interactive sign-in.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/hourstracker-client/apiclient"
	"github.com/jrsteele09/hourstracker-client/internal/errors"
	"github.com/jrsteele09/hourstracker-client/internal/metrics"
	"github.com/jrsteele09/hourstracker-client/provider"
	"github.com/jrsteele09/hourstracker-client/session"
	"github.com/rs/zerolog/log"
)

// CredentialProvider is the part of the provider the gateway uses
type CredentialProvider interface {
	AcquireSilently(ctx context.Context, scopes []string, s session.Session) (provider.Credential, error)
	AcquireInteractively(ctx context.Context, scopes []string) error
}

// SessionReader returns the active session
type SessionReader interface {
	Active() (session.Session, bool)
}

// AuthorizationRejectedError is returned to the caller when the API answers
// 401. Interactive sign-in has already been started when it is returned.
type AuthorizationRejectedError struct {
	Method string
	URL    string
}

func (e *AuthorizationRejectedError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, errors.ErrAuthorizationRejected)
}

func (e *AuthorizationRejectedError) Unwrap() error {
	return errors.ErrAuthorizationRejected
}

type Gateway struct {
	provider  CredentialProvider
	sessions  SessionReader
	apiScopes []string
	metrics   metrics.Recorder
}

type Option func(*Gateway)

func WithMetrics(recorder metrics.Recorder) Option {
	return func(g *Gateway) { g.metrics = recorder }
}

// New creates a gateway requesting apiScopes for every call, silently first
// and interactively when the user has to sign in again.
func New(p CredentialProvider, sessions SessionReader, apiScopes []string, opts ...Option) *Gateway {
	g := &Gateway{
		provider:  p,
		sessions:  sessions,
		apiScopes: apiScopes,
		metrics:   metrics.Nop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register installs one request and one response interceptor on client
func (g *Gateway) Register(client *apiclient.Client) {
	client.UseRequest(g.InterceptRequest)
	client.UseResponse(g.InterceptResponse)
}

// InterceptRequest attaches a bearer credential for the active session. With
// no active session the request is sent unauthenticated. When no credential
// can be obtained silently, interactive sign-in is started and the request
// is abandoned.
func (g *Gateway) InterceptRequest(req *http.Request) error {
	active, ok := g.sessions.Active()
	if !ok {
		g.metrics.RecordGatewayRequest(false)
		return nil
	}

	ctx := req.Context()
	cred, err := g.provider.AcquireSilently(ctx, g.apiScopes, active)
	if err == nil {
		req.Header.Set("Authorization", cred.AuthorizationHeader())
		g.metrics.RecordGatewayRequest(true)
		return nil
	}
	if !errors.Is(err, errors.ErrSilentAuthFailure) {
		return err
	}

	log.Info().Err(err).Str("account", active.AccountID).Str("path", req.URL.Path).Msg("Silent acquisition failed, starting interactive sign-in")
	g.metrics.RecordInteractiveRequest(metrics.InteractiveSilentFailure)
	abandoned := fmt.Errorf("[Gateway InterceptRequest] %w: %w", errors.ErrRequestAbandoned, err)
	if interactiveErr := g.provider.AcquireInteractively(ctx, g.apiScopes); interactiveErr != nil {
		return errors.Join(abandoned, interactiveErr)
	}
	return abandoned
}

// InterceptResponse starts interactive sign-in when the API rejects the
// credential. The request is not retried.
func (g *Gateway) InterceptResponse(resp *http.Response) error {
	if resp.StatusCode != http.StatusUnauthorized {
		return nil
	}

	rejected := &AuthorizationRejectedError{Method: resp.Request.Method, URL: resp.Request.URL.String()}
	log.Warn().Str("url", rejected.URL).Msg("API rejected the credential, starting interactive sign-in")
	g.metrics.RecordAuthorizationRejected()
	g.metrics.RecordInteractiveRequest(metrics.InteractiveUnauthorized)

	if err := g.provider.AcquireInteractively(resp.Request.Context(), g.apiScopes); err != nil {
		return errors.Join(rejected, err)
	}
	return rejected
}
