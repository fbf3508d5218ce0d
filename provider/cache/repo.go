package cache

import (
	"sort"
	"strings"
	"time"

	"github.com/jrsteele09/hourstracker-client/session"
)

// Account is a cached identity together with the ID token it was built from
type Account struct {
	session.Session
	IDToken string
}

// AccessToken is a cached credential for one (account, scope set) pair
type AccessToken struct {
	Token     string
	TokenType string
	Scopes    []string
	ExpiresAt time.Time
}

// FlowState is a pending interactive authorization, persisted so that the
// redirect back from the identity provider can be matched to it.
type FlowState struct {
	State        string
	Nonce        string
	CodeVerifier string
	Scopes       []string
	ReturnURL    string
	AuthURL      string
	CreatedAt    time.Time
}

// InteractionFailure records why the last interactive authorization failed
type InteractionFailure struct {
	Code        string
	Description string
	OccurredAt  time.Time
}

type AccountRepo interface {
	UpsertAccount(account Account) error
	GetAccount(accountID string) (Account, error)
	ListAccounts() ([]Account, error)
	// DeleteAccount removes the account and every token cached for it
	DeleteAccount(accountID string) error
	SetActiveAccountID(accountID string) error
	// GetActiveAccountID returns "" when no account is active
	GetActiveAccountID() (string, error)
}

type TokenRepo interface {
	UpsertRefreshToken(accountID, token string) error
	GetRefreshToken(accountID string) (string, error)
	UpsertAccessToken(accountID, scopeKey string, token AccessToken) error
	GetAccessToken(accountID, scopeKey string) (AccessToken, error)
}

type FlowRepo interface {
	UpsertFlow(flow *FlowState) error
	GetFlow(state string) (*FlowState, error)
	// LatestFlow returns the most recently created pending flow
	LatestFlow() (*FlowState, error)
	DeleteFlow(state string) error
	SetInteractionFailure(failure *InteractionFailure) error
	// GetInteractionFailure returns nil when no failure is recorded
	GetInteractionFailure() (*InteractionFailure, error)
	ClearInteractionFailure() error
}

// Repo is the storage behind the credential provider
type Repo interface {
	AccountRepo
	TokenRepo
	FlowRepo
	Close() error
}

// ScopeKey normalises a scope set into a stable cache key
func ScopeKey(scopes []string) string {
	normalised := make([]string, 0, len(scopes))
	seen := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		normalised = append(normalised, s)
	}
	sort.Strings(normalised)
	return strings.Join(normalised, " ")
}
