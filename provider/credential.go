package provider

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/hourstracker-client/provider/cache"
)

// Credential is a short-lived bearer token bound to a session and scope set
type Credential struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	Scopes      []string
	AccountID   string
}

// AuthorizationHeader returns the value for the Authorization request header
func (c Credential) AuthorizationHeader() string {
	return "Bearer " + c.AccessToken
}

// ValidAt reports whether the credential can still be attached at now,
// keeping renewalOffset in reserve for the request to reach the API.
func (c Credential) ValidAt(now time.Time, renewalOffset time.Duration) bool {
	if c.AccessToken == "" || c.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(renewalOffset).Before(c.ExpiresAt)
}

func credentialFromCache(accountID string, at cache.AccessToken) Credential {
	return Credential{
		AccessToken: at.Token,
		TokenType:   at.TokenType,
		ExpiresAt:   at.ExpiresAt,
		Scopes:      at.Scopes,
		AccountID:   accountID,
	}
}

func (c Credential) cacheEntry() cache.AccessToken {
	tokenType := c.TokenType
	if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
		tokenType = "Bearer"
	}
	return cache.AccessToken{
		Token:     c.AccessToken,
		TokenType: tokenType,
		Scopes:    c.Scopes,
		ExpiresAt: c.ExpiresAt,
	}
}

// expiryFromJWT reads the exp claim of an access token without verifying it.
// Access tokens are opaque to the client; this is only used when the token
// response carried no expires_in.
func expiryFromJWT(raw string) (time.Time, bool) {
	token, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
