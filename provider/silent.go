package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/hourstracker-client/internal/errors"
	"github.com/jrsteele09/hourstracker-client/internal/metrics"
	"github.com/jrsteele09/hourstracker-client/provider/cache"
	"github.com/jrsteele09/hourstracker-client/session"
	"github.com/rs/zerolog/log"
)

// RefreshError is returned by the token endpoint for a failed refresh grant
type RefreshError struct {
	StatusCode  int
	Code        string
	Description string
	SubError    string
}

func (e *RefreshError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token endpoint %d %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("token endpoint %d %s", e.StatusCode, e.Code)
}

// InteractionRequired reports whether the identity provider asked for the
// user to be involved (consent, MFA, re-authentication)
func (e *RefreshError) InteractionRequired() bool {
	switch e.Code {
	case "interaction_required", "consent_required", "login_required", "invalid_grant":
		return true
	}
	return false
}

// AcquireSilently returns a credential for scopes without user interaction.
// A cached credential is returned while it is still valid; otherwise the
// cached refresh token is redeemed. Every failure matches
// errors.ErrSilentAuthFailure except cancellation of ctx, which is returned
// as is. Concurrent calls for the same account and scope set share a single
// token request.
func (p *Provider) AcquireSilently(ctx context.Context, scopes []string, s session.Session) (Credential, error) {
	if s.AccountID == "" {
		return Credential{}, fmt.Errorf("[Provider AcquireSilently] %w: %w", errors.ErrSilentAuthFailure, errors.ErrNoActiveSession)
	}

	key := s.AccountID + "|" + cache.ScopeKey(scopes)
	// the shared acquisition outlives any single caller's cancellation
	sharedCtx := context.WithoutCancel(ctx)
	resultCh := p.silentGroup.DoChan(key, func() (interface{}, error) {
		return p.acquireSilently(sharedCtx, scopes, s)
	})

	select {
	case <-ctx.Done():
		return Credential{}, fmt.Errorf("[Provider AcquireSilently] %w", ctx.Err())
	case res := <-resultCh:
		if res.Shared {
			log.Debug().Str("account", s.AccountID).Msg("[Provider AcquireSilently] joined in-flight acquisition")
		}
		if res.Err != nil {
			p.metrics.RecordSilentAcquisition(metrics.SilentFailed)
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	}
}

func (p *Provider) acquireSilently(ctx context.Context, scopes []string, s session.Session) (Credential, error) {
	scopeKey := cache.ScopeKey(scopes)
	renewalOffset := p.config.GetTokenRenewalOffset()

	cached, err := p.cache.GetAccessToken(s.AccountID, scopeKey)
	switch {
	case err == nil:
		cred := credentialFromCache(s.AccountID, cached)
		if cred.ValidAt(p.now(), renewalOffset) {
			p.metrics.RecordSilentAcquisition(metrics.SilentCacheHit)
			return cred, nil
		}
	case !errors.Is(err, errors.ErrNotFound):
		log.Warn().Err(err).Str("account", s.AccountID).Msg("[Provider AcquireSilently] cached credential unreadable")
	}

	refreshToken, err := p.cache.GetRefreshToken(s.AccountID)
	if err != nil {
		return Credential{}, fmt.Errorf("[Provider AcquireSilently] no refresh material for %s: %w: %w", s.AccountID, errors.ErrSilentAuthFailure, err)
	}

	tok, err := p.redeemRefreshToken(ctx, refreshToken, scopes)
	if err != nil {
		var refreshErr *RefreshError
		if errors.As(err, &refreshErr) {
			log.Info().Str("account", s.AccountID).Str("code", refreshErr.Code).Bool("interaction_required", refreshErr.InteractionRequired()).Msg("[Provider AcquireSilently] refresh rejected")
		}
		return Credential{}, fmt.Errorf("[Provider AcquireSilently] refresh failed: %w: %w", errors.ErrSilentAuthFailure, err)
	}

	cred := Credential{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   p.expiryOf(tok.AccessToken, tok.ExpiresIn),
		Scopes:      append([]string(nil), scopes...),
		AccountID:   s.AccountID,
	}
	if !cred.ValidAt(p.now(), 0) {
		return Credential{}, fmt.Errorf("[Provider AcquireSilently] refreshed credential already expired: %w", errors.ErrSilentAuthFailure)
	}

	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		if err := p.cache.UpsertRefreshToken(s.AccountID, tok.RefreshToken); err != nil {
			log.Err(err).Str("account", s.AccountID).Msg("[Provider AcquireSilently] failed to store rotated refresh token")
		}
	}
	if err := p.cache.UpsertAccessToken(s.AccountID, scopeKey, cred.cacheEntry()); err != nil {
		log.Err(err).Str("account", s.AccountID).Msg("[Provider AcquireSilently] failed to cache credential")
	}

	p.metrics.RecordSilentAcquisition(metrics.SilentRefreshed)
	log.Debug().Str("account", s.AccountID).Time("expires_at", cred.ExpiresAt).Msg("Credential refreshed")
	return cred, nil
}

// expiryOf prefers expires_in and falls back to the exp claim of a JWT
func (p *Provider) expiryOf(accessToken string, expiresIn int64) time.Time {
	if expiresIn > 0 {
		return p.now().Add(time.Duration(expiresIn) * time.Second)
	}
	if exp, ok := expiryFromJWT(accessToken); ok {
		return exp
	}
	return time.Time{}
}

// redeemRefreshToken performs the refresh_token grant. The requested scopes
// are sent explicitly so a credential for a different resource than the one
// signed in to can be obtained.
func (p *Provider) redeemRefreshToken(ctx context.Context, refreshToken string, scopes []string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", p.config.GetClientID())
	form.Set("refresh_token", refreshToken)
	form.Set("scope", strings.Join(withReservedScopes(scopes), " "))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("token response: %w", err)
	}

	var tok tokenResponse
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "application/json" || json.Valid(body) {
		if err := json.Unmarshal(body, &tok); err != nil {
			return nil, fmt.Errorf("token response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || tok.Error != "" {
		code := tok.Error
		if code == "" {
			code = http.StatusText(resp.StatusCode)
		}
		return nil, &RefreshError{
			StatusCode:  resp.StatusCode,
			Code:        code,
			Description: tok.ErrorDescription,
			SubError:    tok.SubError,
		}
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &tok, nil
}
