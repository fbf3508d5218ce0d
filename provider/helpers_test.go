package provider_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/hourstracker-client/provider"
	"github.com/jrsteele09/hourstracker-client/provider/cache"
	"github.com/stretchr/testify/require"
)

const (
	testClientID    = "client-123"
	testTenantID    = "tenant-1"
	testRedirectURI = "http://localhost:5173"
	testAPIScope    = "api://hours/access"
	testKeyID       = "test-key"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testConfig struct {
	authority string
	apiScope  string
}

func (c testConfig) GetClientID() string                  { return testClientID }
func (c testConfig) GetTenantID() string                  { return testTenantID }
func (c testConfig) GetAuthority() string                 { return c.authority }
func (c testConfig) GetRedirectURI() string               { return testRedirectURI }
func (c testConfig) GetPostLogoutRedirectURI() string     { return testRedirectURI }
func (c testConfig) GetAPIScope() string                  { return c.apiScope }
func (c testConfig) GetInteractionTimeout() time.Duration { return 10 * time.Minute }
func (c testConfig) GetTokenRenewalOffset() time.Duration { return 5 * time.Minute }

func (c testConfig) LoginRequest() []string {
	if c.apiScope != "" {
		return []string{c.apiScope}
	}
	return []string{"openid", "profile", "email"}
}

func (c testConfig) APITokenRequest() []string {
	if c.apiScope != "" {
		return []string{c.apiScope}
	}
	return []string{}
}

type issuedCode struct {
	nonce     string
	challenge string
}

// fakeIdP is a minimal OIDC identity provider: discovery, JWKS, and a token
// endpoint supporting authorization_code (with PKCE) and refresh_token.
type fakeIdP struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey
	clock  *testClock

	mu              sync.Mutex
	codes           map[string]issuedCode
	refreshTokens   map[string]bool
	refreshError    string
	refreshRelease  chan struct{}
	lastRefreshForm url.Values
	omitExpiresIn   bool
	refreshCalls    atomic.Int32
	issued          atomic.Int32
}

func newFakeIdP(t *testing.T, clock *testClock) *fakeIdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idp := &fakeIdP{
		t:             t,
		key:           key,
		clock:         clock,
		codes:         make(map[string]issuedCode),
		refreshTokens: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /"+testTenantID+"/v2.0/.well-known/openid-configuration", idp.discovery)
	mux.HandleFunc("GET /keys", idp.jwks)
	mux.HandleFunc("POST /token", idp.token)
	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)
	return idp
}

func (idp *fakeIdP) issuer() string {
	return idp.server.URL + "/" + testTenantID + "/v2.0"
}

func (idp *fakeIdP) configure(fn func(idp *fakeIdP)) {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	fn(idp)
}

func (idp *fakeIdP) lastRefresh() url.Values {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	return idp.lastRefreshForm
}

func (idp *fakeIdP) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                idp.issuer(),
		"authorization_endpoint":                idp.server.URL + "/authorize",
		"token_endpoint":                        idp.server.URL + "/token",
		"jwks_uri":                              idp.server.URL + "/keys",
		"end_session_endpoint":                  idp.server.URL + "/logout",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (idp *fakeIdP) jwks(w http.ResponseWriter, _ *http.Request) {
	pub := idp.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": testKeyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

// issueCode simulates the user signing in at the authorization endpoint
func (idp *fakeIdP) issueCode(authURL, nonceOverride string) (state, code string) {
	u, err := url.Parse(authURL)
	require.NoError(idp.t, err)
	q := u.Query()

	nonce := q.Get("nonce")
	if nonceOverride != "" {
		nonce = nonceOverride
	}
	code = fmt.Sprintf("code-%d", idp.issued.Add(1))

	idp.mu.Lock()
	idp.codes[code] = issuedCode{nonce: nonce, challenge: q.Get("code_challenge")}
	idp.mu.Unlock()
	return q.Get("state"), code
}

func (idp *fakeIdP) token(w http.ResponseWriter, r *http.Request) {
	require.NoError(idp.t, r.ParseForm())
	if r.PostForm.Get("client_id") != testClientID {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		idp.exchangeCode(w, r.PostForm)
	case "refresh_token":
		idp.refresh(w, r.PostForm)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (idp *fakeIdP) exchangeCode(w http.ResponseWriter, form url.Values) {
	idp.mu.Lock()
	issued, ok := idp.codes[form.Get("code")]
	delete(idp.codes, form.Get("code"))
	idp.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "unknown code"})
		return
	}
	sum := sha256.Sum256([]byte(form.Get("code_verifier")))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != issued.challenge {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "pkce mismatch"})
		return
	}
	if form.Get("redirect_uri") != testRedirectURI {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "redirect mismatch"})
		return
	}

	idp.mu.Lock()
	idp.refreshTokens["rt-0"] = true
	idp.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  "at-0",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": "rt-0",
		"id_token":      idp.idToken(issued.nonce),
	})
}

func (idp *fakeIdP) refresh(w http.ResponseWriter, form url.Values) {
	n := idp.refreshCalls.Add(1)

	idp.mu.Lock()
	idp.lastRefreshForm = form
	release := idp.refreshRelease
	refreshErr := idp.refreshError
	known := idp.refreshTokens[form.Get("refresh_token")]
	omitExpiresIn := idp.omitExpiresIn
	idp.mu.Unlock()

	if release != nil {
		<-release
	}
	if refreshErr != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": refreshErr, "error_description": "AADSTS50076"})
		return
	}
	if !known {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "unknown refresh token"})
		return
	}

	rotated := fmt.Sprintf("rt-%d", n)
	idp.mu.Lock()
	delete(idp.refreshTokens, form.Get("refresh_token"))
	idp.refreshTokens[rotated] = true
	idp.mu.Unlock()

	resp := map[string]any{
		"access_token":  fmt.Sprintf("at-%d", n),
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": rotated,
	}
	if omitExpiresIn {
		delete(resp, "expires_in")
		resp["access_token"] = idp.accessTokenJWT(idp.clock.Now().Add(30 * time.Minute))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (idp *fakeIdP) idToken(nonce string) string {
	now := idp.clock.Now()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, jwtlib.MapClaims{
		"iss":                idp.issuer(),
		"aud":                testClientID,
		"sub":                "subject-1",
		"oid":                "object-1",
		"tid":                testTenantID,
		"name":               "Alice Example",
		"preferred_username": "alice@example.com",
		"nonce":              nonce,
		"iat":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
	})
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(idp.key)
	require.NoError(idp.t, err)
	return signed
}

func (idp *fakeIdP) accessTokenJWT(exp time.Time) string {
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, jwtlib.MapClaims{
		"aud": testAPIScope,
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString(idp.key)
	require.NoError(idp.t, err)
	return signed
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// navRecorder captures navigations of the browsing context
type navRecorder struct {
	mu      sync.Mutex
	targets []string
}

func (n *navRecorder) Navigate(_ context.Context, target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.targets = append(n.targets, target)
}

func (n *navRecorder) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.targets) == 0 {
		return ""
	}
	return n.targets[len(n.targets)-1]
}

func (n *navRecorder) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.targets...)
}

type fixture struct {
	idp      *fakeIdP
	clock    *testClock
	repo     cache.Repo
	nav      *navRecorder
	provider *provider.Provider
	cfg      testConfig
}

func setupFixture(t *testing.T, apiScope string) *fixture {
	t.Helper()

	clock := newTestClock()
	idp := newFakeIdP(t, clock)
	repo := cache.NewInMemoryRepo()
	nav := &navRecorder{}
	cfg := testConfig{authority: idp.issuer(), apiScope: apiScope}

	p, err := provider.New(context.Background(), cfg, repo,
		provider.WithHTTPClient(idp.server.Client()),
		provider.WithDefaultNavigator(nav),
		provider.WithClock(clock.Now),
	)
	require.NoError(t, err)

	return &fixture{idp: idp, clock: clock, repo: repo, nav: nav, provider: p, cfg: cfg}
}

// signIn runs a complete interactive sign-in for the login scopes
func (f *fixture) signIn(t *testing.T) *provider.AuthResult {
	t.Helper()

	ctx := provider.WithReturnURL(context.Background(), "/dashboard")
	require.NoError(t, f.provider.AcquireInteractively(ctx, f.cfg.LoginRequest()))

	state, code := f.idp.issueCode(f.nav.last(), "")
	result, err := f.provider.HandleRedirect(context.Background(), url.Values{"state": {state}, "code": {code}})
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}
