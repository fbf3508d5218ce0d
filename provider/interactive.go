package provider

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jrsteele09/hourstracker-client/internal/errors"
	"github.com/jrsteele09/hourstracker-client/internal/metrics"
	"github.com/jrsteele09/hourstracker-client/provider/cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// AcquireInteractively starts a full-page sign-in at the identity provider
// for scopes and navigates the browsing context bound to ctx there. It has no
// result: the application resumes through HandleRedirect once the identity
// provider sends the browser back. A nil error means the navigation started.
//
// Only one interactive flow is pending at a time. While it has not expired,
// further calls navigate to the same authorization URL instead of starting a
// second flow.
func (p *Provider) AcquireInteractively(ctx context.Context, scopes []string) error {
	p.interactionMu.Lock()
	defer p.interactionMu.Unlock()

	nav := navigatorFromContext(ctx, p.navigator)

	if pending, err := p.pendingFlow(); err == nil {
		log.Info().Str("state", pending.State).Msg("Joining pending interactive sign-in")
		p.metrics.RecordInteractiveRequest(metrics.InteractiveJoined)
		nav.Navigate(ctx, pending.AuthURL)
		return nil
	}

	state := uuid.New().String()
	nonce, err := generateRandomString(32)
	if err != nil {
		return fmt.Errorf("[Provider AcquireInteractively] nonce: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	authOpts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(verifier),
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("response_mode", "query"),
	}
	if active, ok := p.ActiveSession(); ok && active.Username != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("login_hint", active.Username))
	}
	authURL := p.oauth2Config(scopes).AuthCodeURL(state, authOpts...)

	flow := &cache.FlowState{
		State:        state,
		Nonce:        nonce,
		CodeVerifier: verifier,
		Scopes:       append([]string(nil), scopes...),
		ReturnURL:    returnURLFromContext(ctx),
		AuthURL:      authURL,
		CreatedAt:    p.now(),
	}
	if err := p.cache.UpsertFlow(flow); err != nil {
		return fmt.Errorf("[Provider AcquireInteractively] failed to persist flow: %w", err)
	}
	if err := p.cache.ClearInteractionFailure(); err != nil {
		log.Err(err).Msg("[Provider AcquireInteractively] failed to clear previous failure")
	}

	log.Info().Str("state", state).Strs("scopes", flow.Scopes).Msg("Starting interactive sign-in")
	nav.Navigate(ctx, authURL)
	return nil
}

// PendingInteraction reports whether an interactive sign-in is awaiting the
// redirect back from the identity provider
func (p *Provider) PendingInteraction() bool {
	_, err := p.pendingFlow()
	return err == nil
}

// pendingFlow returns the latest unexpired flow, discarding an expired one
func (p *Provider) pendingFlow() (*cache.FlowState, error) {
	flow, err := p.cache.LatestFlow()
	if err != nil {
		return nil, err
	}
	if p.now().Sub(flow.CreatedAt) >= p.config.GetInteractionTimeout() {
		if err := p.cache.DeleteFlow(flow.State); err != nil {
			log.Err(err).Msg("[Provider] failed to delete expired flow")
		}
		return nil, errors.ErrFlowExpired
	}
	return flow, nil
}

// InteractionFailure returns why the last interactive sign-in failed, or nil
func (p *Provider) InteractionFailure() *cache.InteractionFailure {
	failure, err := p.cache.GetInteractionFailure()
	if err != nil {
		log.Err(err).Msg("[Provider InteractionFailure] failed to read failure")
		return nil
	}
	return failure
}

// ClearInteractionFailure forgets the last interactive failure
func (p *Provider) ClearInteractionFailure() error {
	return p.cache.ClearInteractionFailure()
}

// generateRandomString creates a random base64url string
func generateRandomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
