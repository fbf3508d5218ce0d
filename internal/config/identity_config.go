package config

import (
	"strings"
	"time"
)

const (
	clientIDEnvVar      = "AZURE_CLIENT_ID"
	tenantIDEnvVar      = "AZURE_TENANT_ID"
	redirectURIEnvVar   = "AZURE_REDIRECT_URI"
	apiScopeEnvVar      = "AZURE_API_SCOPE"
	authorityHostEnvVar = "AUTHORITY_HOST"
)

// IdentityConfig describes the identity provider registration used by the client
type IdentityConfig interface {
	GetClientID() string
	GetTenantID() string
	GetAuthority() string
	GetRedirectURI() string
	GetPostLogoutRedirectURI() string
	GetAPIScope() string
	LoginRequest() []string
	APITokenRequest() []string
	GetInteractionTimeout() time.Duration
	GetTokenRenewalOffset() time.Duration
}

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetClientID() string {
	return GetEnv(clientIDEnvVar, "")
}

func (Identity) GetTenantID() string {
	return GetEnv(tenantIDEnvVar, "common")
}

// GetAuthority returns the OIDC issuer, e.g. https://login.microsoftonline.com/{tenant}/v2.0
func (i Identity) GetAuthority() string {
	host := strings.TrimRight(GetEnv(authorityHostEnvVar, "https://login.microsoftonline.com"), "/")
	return host + "/" + i.GetTenantID() + "/v2.0"
}

func (Identity) GetRedirectURI() string {
	return GetEnv(redirectURIEnvVar, "http://localhost:5173")
}

// GetPostLogoutRedirectURI is the same URI used for the login redirect
func (i Identity) GetPostLogoutRedirectURI() string {
	return i.GetRedirectURI()
}

func (Identity) GetAPIScope() string {
	return strings.TrimSpace(GetEnv(apiScopeEnvVar, ""))
}

// LoginRequest returns the scopes requested on interactive sign-in
func (i Identity) LoginRequest() []string {
	return LoginScopes(i.GetAPIScope())
}

// APITokenRequest returns the scopes requested for API credentials
func (i Identity) APITokenRequest() []string {
	return APITokenScopes(i.GetAPIScope())
}

func (Identity) GetInteractionTimeout() time.Duration {
	return 10 * time.Minute
}

func (Identity) GetTokenRenewalOffset() time.Duration {
	return 5 * time.Minute
}

// LoginScopes falls back to identity-only scopes when no API scope is configured
func LoginScopes(apiScope string) []string {
	if apiScope != "" {
		return []string{apiScope}
	}
	return []string{"openid", "profile", "email"}
}

// APITokenScopes is empty when no API scope is configured
func APITokenScopes(apiScope string) []string {
	if apiScope != "" {
		return []string{apiScope}
	}
	return []string{}
}
