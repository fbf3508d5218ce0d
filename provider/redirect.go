package provider

import (
	"context"
	"fmt"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/hourstracker-client/internal/errors"
	"github.com/jrsteele09/hourstracker-client/provider/cache"
	"github.com/jrsteele09/hourstracker-client/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// AuthResult is the outcome of a completed interactive sign-in
type AuthResult struct {
	Session    session.Session
	Credential Credential
	ReturnURL  string
}

// InteractiveAuthError describes a failed interactive sign-in. It matches
// errors.ErrInteractiveAuthFailure.
type InteractiveAuthError struct {
	Code        string
	Description string
	ReturnURL   string
	Err         error
}

func (e *InteractiveAuthError) Error() string {
	msg := "interactive authentication failed: " + e.Code
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InteractiveAuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{errors.ErrInteractiveAuthFailure}
	}
	return []error{errors.ErrInteractiveAuthFailure, e.Err}
}

type idTokenClaims struct {
	Subject           string `json:"sub"`
	ObjectID          string `json:"oid"`
	TenantID          string `json:"tid"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Nonce             string `json:"nonce"`
}

func (c idTokenClaims) session() session.Session {
	local := c.ObjectID
	if local == "" {
		local = c.Subject
	}
	accountID := local
	if c.TenantID != "" {
		accountID = local + "." + c.TenantID
	}
	username := c.PreferredUsername
	if username == "" {
		username = c.Email
	}
	return session.Session{
		AccountID:      accountID,
		LocalAccountID: local,
		TenantID:       c.TenantID,
		Name:           c.Name,
		Username:       username,
	}
}

// IsRedirectResponse reports whether query carries an authorization response
func IsRedirectResponse(query url.Values) bool {
	return query.Get("state") != "" || query.Get("code") != "" || query.Get("error") != ""
}

// HandleRedirect completes an interactive sign-in when the identity provider
// redirects back. The pending flow is found through persisted state only.
// It returns (nil, nil) when query is not an authorization response.
func (p *Provider) HandleRedirect(ctx context.Context, query url.Values) (*AuthResult, error) {
	if !IsRedirectResponse(query) {
		return nil, nil
	}

	state := query.Get("state")
	flow, err := p.cache.GetFlow(state)
	if err != nil {
		return nil, p.fail("state_mismatch", "No pending sign-in matches this response.", "/", err)
	}
	if err := p.cache.DeleteFlow(state); err != nil {
		log.Err(err).Str("state", state).Msg("[Provider HandleRedirect] failed to delete flow")
	}

	if p.now().Sub(flow.CreatedAt) >= p.config.GetInteractionTimeout() {
		return nil, p.fail("flow_expired", "The sign-in took too long. Please try again.", flow.ReturnURL, errors.ErrFlowExpired)
	}
	if code := query.Get("error"); code != "" {
		return nil, p.fail(code, query.Get("error_description"), flow.ReturnURL, nil)
	}
	code := query.Get("code")
	if code == "" {
		return nil, p.fail("invalid_response", "The identity provider did not return an authorization code.", flow.ReturnURL, nil)
	}

	exchangeCtx := oidc.ClientContext(ctx, p.httpClient)
	tok, err := p.oauth2Config(flow.Scopes).Exchange(exchangeCtx, code, oauth2.VerifierOption(flow.CodeVerifier))
	if err != nil {
		errCode := "token_exchange_failed"
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
			errCode = retrieveErr.ErrorCode
		}
		return nil, p.fail(errCode, "The sign-in could not be completed.", flow.ReturnURL, err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, p.fail("missing_id_token", "The identity provider did not return an ID token.", flow.ReturnURL, nil)
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, p.fail("invalid_id_token", "The ID token could not be verified.", flow.ReturnURL, err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, p.fail("invalid_id_token", "The ID token claims could not be read.", flow.ReturnURL, err)
	}
	if claims.Nonce != flow.Nonce {
		return nil, p.fail("invalid_nonce", "The sign-in response did not match the request.", flow.ReturnURL, errors.ErrInvalidNonce)
	}

	sess := claims.session()
	sess.AuthenticatedAt = p.now()

	cred := Credential{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Scopes:      append([]string(nil), flow.Scopes...),
		AccountID:   sess.AccountID,
	}
	if !tok.Expiry.IsZero() {
		cred.ExpiresAt = tok.Expiry
	} else {
		cred.ExpiresAt = p.expiryOf(tok.AccessToken, 0)
	}

	if err := p.storeSignIn(sess, rawIDToken, tok.RefreshToken, cred); err != nil {
		return nil, p.fail("cache_write_failed", "The session could not be stored.", flow.ReturnURL, err)
	}
	if err := p.cache.ClearInteractionFailure(); err != nil {
		log.Err(err).Msg("[Provider HandleRedirect] failed to clear previous failure")
	}

	p.metrics.RecordRedirectResult(true)
	log.Info().Str("account", sess.AccountID).Str("username", sess.Username).Msg("Interactive sign-in completed")
	p.emit(session.Event{Type: session.LoginSucceeded, Session: &sess})

	return &AuthResult{Session: sess, Credential: cred, ReturnURL: flow.ReturnURL}, nil
}

func (p *Provider) storeSignIn(sess session.Session, rawIDToken, refreshToken string, cred Credential) error {
	if err := p.cache.UpsertAccount(cache.Account{Session: sess, IDToken: rawIDToken}); err != nil {
		return err
	}
	if refreshToken != "" {
		if err := p.cache.UpsertRefreshToken(sess.AccountID, refreshToken); err != nil {
			return err
		}
	}
	if cred.AccessToken != "" {
		if err := p.cache.UpsertAccessToken(sess.AccountID, cache.ScopeKey(cred.Scopes), cred.cacheEntry()); err != nil {
			return err
		}
	}
	return nil
}

// fail persists the failure for the next initialisation pass, notifies
// subscribers and returns the error for the caller
func (p *Provider) fail(code, description, returnURL string, cause error) error {
	authErr := &InteractiveAuthError{
		Code:        code,
		Description: description,
		ReturnURL:   returnURL,
		Err:         cause,
	}
	// a stale response must not shadow a session that is already signed in
	if _, signedIn := p.ActiveSession(); !signedIn {
		if err := p.cache.SetInteractionFailure(&cache.InteractionFailure{
			Code:        code,
			Description: description,
			OccurredAt:  p.now(),
		}); err != nil {
			log.Err(err).Msg("[Provider] failed to persist interaction failure")
		}
	}

	p.metrics.RecordRedirectResult(false)
	log.Warn().Err(cause).Str("code", code).Str("description", description).Msg("Interactive sign-in failed")
	p.emit(session.Event{Type: session.LoginFailed, Err: authErr})
	return fmt.Errorf("[Provider HandleRedirect] %w", authErr)
}
