package provider

import (
	"context"
	"net/url"

	"github.com/jrsteele09/hourstracker-client/session"
	"github.com/rs/zerolog/log"
)

// SignOut clears every cached session and credential, notifies subscribers
// and navigates the browsing context to the identity provider's end-session
// endpoint.
func (p *Provider) SignOut(ctx context.Context) error {
	active, hadActive := p.ActiveSession()
	var idTokenHint string
	if hadActive {
		if account, err := p.cache.GetAccount(active.AccountID); err == nil {
			idTokenHint = account.IDToken
		}
	}

	accounts, err := p.cache.ListAccounts()
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if err := p.cache.DeleteAccount(a.AccountID); err != nil {
			return err
		}
	}
	if err := p.cache.SetActiveAccountID(""); err != nil {
		log.Err(err).Msg("[Provider SignOut] failed to clear active account")
	}
	if err := p.cache.ClearInteractionFailure(); err != nil {
		log.Err(err).Msg("[Provider SignOut] failed to clear interaction failure")
	}

	p.mu.Lock()
	p.active = nil
	p.mu.Unlock()

	event := session.Event{Type: session.LogoutSucceeded}
	if hadActive {
		event.Session = &active
	}
	p.emit(event)

	log.Info().Str("account", active.AccountID).Int("accounts_cleared", len(accounts)).Msg("Signed out")
	navigatorFromContext(ctx, p.navigator).Navigate(ctx, p.logoutURL(active, idTokenHint))
	return nil
}

func (p *Provider) logoutURL(active session.Session, idTokenHint string) string {
	postLogout := p.config.GetPostLogoutRedirectURI()
	if p.endSessionURL == "" {
		return postLogout
	}

	u, err := url.Parse(p.endSessionURL)
	if err != nil {
		log.Warn().Err(err).Msg("[Provider SignOut] invalid end_session_endpoint")
		return postLogout
	}
	q := u.Query()
	q.Set("post_logout_redirect_uri", postLogout)
	q.Set("client_id", p.config.GetClientID())
	if active.Username != "" {
		q.Set("logout_hint", active.Username)
	}
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
