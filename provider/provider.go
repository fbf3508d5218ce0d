package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/hourstracker-client/internal/config"
	"github.com/jrsteele09/hourstracker-client/internal/errors"
	"github.com/jrsteele09/hourstracker-client/internal/metrics"
	"github.com/jrsteele09/hourstracker-client/provider/cache"
	"github.com/jrsteele09/hourstracker-client/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// reservedScopes are always added to authorization requests so that an ID
// token and a refresh token are issued alongside the requested credential.
var reservedScopes = []string{oidc.ScopeOpenID, "profile", oidc.ScopeOfflineAccess}

// multiTenantAuthorities publish a templated issuer that never matches the
// issuer of the tokens they return.
var multiTenantAuthorities = map[string]struct{}{
	"common":        {},
	"organizations": {},
	"consumers":     {},
}

// Provider is the credential provider: it owns the cached sessions and
// tokens, acquires credentials silently or interactively, and notifies
// subscribers when a sign-in or sign-out completes.
type Provider struct {
	config        config.IdentityConfig
	cache         cache.Repo
	oidcProvider  *oidc.Provider
	verifier      *oidc.IDTokenVerifier
	endpoint      oauth2.Endpoint
	endSessionURL string
	httpClient    *http.Client
	navigator     Navigator
	metrics       metrics.Recorder
	now           func() time.Time

	mu     sync.RWMutex
	active *session.Session

	callbacksMu sync.RWMutex
	callbacks   []eventCallback

	silentGroup   singleflight.Group
	interactionMu sync.Mutex
}

// Option configures a Provider
type Option func(*Provider)

// WithHTTPClient sets the client used for discovery and token requests
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.httpClient = client }
}

// WithDefaultNavigator sets the navigator used when none is bound to the context
func WithDefaultNavigator(nav Navigator) Option {
	return func(p *Provider) { p.navigator = nav }
}

func WithMetrics(recorder metrics.Recorder) Option {
	return func(p *Provider) { p.metrics = recorder }
}

// WithClock overrides time.Now, used by tests
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// New discovers the identity provider configured in cfg and restores the
// active session persisted in repo.
func New(ctx context.Context, cfg config.IdentityConfig, repo cache.Repo, opts ...Option) (*Provider, error) {
	if cfg.GetClientID() == "" {
		return nil, fmt.Errorf("[Provider New] client id is required: %w", errors.ErrInvalidConfig)
	}
	if repo == nil {
		return nil, fmt.Errorf("[Provider New] cache is required: %w", errors.ErrInvalidConfig)
	}

	p := &Provider{
		config:     cfg,
		cache:      repo,
		httpClient: http.DefaultClient,
		navigator:  logNavigator{},
		metrics:    metrics.Nop{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	_, multiTenant := multiTenantAuthorities[strings.ToLower(cfg.GetTenantID())]
	discoveryCtx := oidc.ClientContext(ctx, p.httpClient)
	if multiTenant {
		discoveryCtx = oidc.InsecureIssuerURLContext(discoveryCtx, cfg.GetAuthority())
	}

	oidcProvider, err := oidc.NewProvider(discoveryCtx, cfg.GetAuthority())
	if err != nil {
		return nil, fmt.Errorf("[Provider New] failed to discover %s: %w", cfg.GetAuthority(), err)
	}

	var discovery struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := oidcProvider.Claims(&discovery); err != nil {
		log.Warn().Err(err).Msg("[Provider New] unable to read discovery document claims")
	}

	p.oidcProvider = oidcProvider
	p.endSessionURL = discovery.EndSessionEndpoint
	p.endpoint = oidcProvider.Endpoint()
	p.endpoint.AuthStyle = oauth2.AuthStyleInParams // public client, no secret
	p.verifier = oidcProvider.Verifier(&oidc.Config{
		ClientID:        cfg.GetClientID(),
		SkipIssuerCheck: multiTenant,
		Now:             p.now,
	})

	p.restoreActiveSession()
	return p, nil
}

func (p *Provider) restoreActiveSession() {
	id, err := p.cache.GetActiveAccountID()
	if err != nil {
		log.Err(err).Msg("[Provider] failed to read active account")
		return
	}
	if id == "" {
		return
	}
	account, err := p.cache.GetAccount(id)
	if err != nil {
		log.Warn().Err(err).Str("account", id).Msg("[Provider] active account no longer cached")
		return
	}
	p.active = &account.Session
}

func (p *Provider) oauth2Config(scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    p.config.GetClientID(),
		Endpoint:    p.endpoint,
		RedirectURL: p.config.GetRedirectURI(),
		Scopes:      withReservedScopes(scopes),
	}
}

// AllSessions returns every session cached by the provider, oldest first
func (p *Provider) AllSessions() []session.Session {
	accounts, err := p.cache.ListAccounts()
	if err != nil {
		log.Err(err).Msg("[Provider AllSessions] failed to list cached accounts")
		return nil
	}
	sessions := make([]session.Session, 0, len(accounts))
	for _, a := range accounts {
		sessions = append(sessions, a.Session)
	}
	return sessions
}

// ActiveSession returns the selected session. It performs no I/O.
func (p *Provider) ActiveSession() (session.Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.active == nil {
		return session.Session{}, false
	}
	return *p.active, true
}

// SelectActiveSession marks s as the active session. Selecting the current
// session again has no effect.
func (p *Provider) SelectActiveSession(s session.Session) {
	p.mu.Lock()
	if p.active != nil && *p.active == s {
		p.mu.Unlock()
		return
	}
	selected := s
	p.active = &selected
	p.mu.Unlock()

	if err := p.cache.SetActiveAccountID(s.AccountID); err != nil {
		log.Err(err).Str("account", s.AccountID).Msg("[Provider SelectActiveSession] failed to persist active account")
	}
}

func withReservedScopes(scopes []string) []string {
	merged := make([]string, 0, len(scopes)+len(reservedScopes))
	seen := make(map[string]struct{}, len(scopes)+len(reservedScopes))
	for _, s := range append(append([]string{}, scopes...), reservedScopes...) {
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok || s == "" {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, s)
	}
	return merged
}
