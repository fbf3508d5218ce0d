package provider

// tokenResponse is the token endpoint response to a refresh_token grant
// (RFC 6749 section 5.1), including the error fields of section 5.2.
type tokenResponse struct {
	// AccessToken is the bearer credential for the requested resource.
	// Opaque to the client; only its exp claim is read, and only when
	// ExpiresIn is missing.
	AccessToken string `json:"access_token"`

	// TokenType is "Bearer" for the identity providers this client supports
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in"`

	// RefreshToken replaces the redeemed refresh token when the identity
	// provider rotates them. Empty when the old one stays valid.
	RefreshToken string `json:"refresh_token"`

	// Scope lists the granted scopes, which may be fewer than requested
	Scope string `json:"scope"`

	// IDToken is only returned when openid is among the requested scopes
	IDToken string `json:"id_token"`

	// Error, ErrorDescription and SubError are set on failure.
	// Example: "invalid_grant", "AADSTS50173: ...", "bad_token"
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	SubError         string `json:"suberror"`
}
