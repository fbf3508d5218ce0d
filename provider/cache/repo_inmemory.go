package cache

import (
	"fmt"
	"sync"

	"github.com/jrsteele09/hourstracker-client/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of Repo
type InMemoryRepo struct {
	mu            sync.RWMutex
	accounts      map[string]Account
	order         []string // insertion order of account IDs
	activeID      string
	refreshTokens map[string]string
	accessTokens  map[string]map[string]AccessToken // accountID -> scopeKey -> token
	flows         map[string]FlowState
	failure       *InteractionFailure
}

// NewInMemoryRepo creates a new in-memory provider cache
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		accounts:      make(map[string]Account),
		refreshTokens: make(map[string]string),
		accessTokens:  make(map[string]map[string]AccessToken),
		flows:         make(map[string]FlowState),
	}
}

func (r *InMemoryRepo) UpsertAccount(account Account) error {
	if account.AccountID == "" {
		return fmt.Errorf("accountID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.AccountID]; !exists {
		r.order = append(r.order, account.AccountID)
	}
	r.accounts[account.AccountID] = account
	return nil
}

func (r *InMemoryRepo) GetAccount(accountID string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return Account{}, fmt.Errorf("account %q: %w", accountID, errors.ErrNotFound)
	}
	return account, nil
}

func (r *InMemoryRepo) ListAccounts() ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]Account, 0, len(r.order))
	for _, id := range r.order {
		accounts = append(accounts, r.accounts[id])
	}
	return accounts, nil
}

func (r *InMemoryRepo) DeleteAccount(accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.accounts, accountID)
	delete(r.refreshTokens, accountID)
	delete(r.accessTokens, accountID)
	for i, id := range r.order {
		if id == accountID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.activeID == accountID {
		r.activeID = ""
	}
	return nil
}

func (r *InMemoryRepo) SetActiveAccountID(accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeID = accountID
	return nil
}

func (r *InMemoryRepo) GetActiveAccountID() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID, nil
}

func (r *InMemoryRepo) UpsertRefreshToken(accountID, token string) error {
	if accountID == "" {
		return fmt.Errorf("accountID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshTokens[accountID] = token
	return nil
}

func (r *InMemoryRepo) GetRefreshToken(accountID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	token, ok := r.refreshTokens[accountID]
	if !ok || token == "" {
		return "", fmt.Errorf("refresh token for %q: %w", accountID, errors.ErrNotFound)
	}
	return token, nil
}

func (r *InMemoryRepo) UpsertAccessToken(accountID, scopeKey string, token AccessToken) error {
	if accountID == "" {
		return fmt.Errorf("accountID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accessTokens[accountID]; !ok {
		r.accessTokens[accountID] = make(map[string]AccessToken)
	}
	token.Scopes = append([]string(nil), token.Scopes...)
	r.accessTokens[accountID][scopeKey] = token
	return nil
}

func (r *InMemoryRepo) GetAccessToken(accountID, scopeKey string) (AccessToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	token, ok := r.accessTokens[accountID][scopeKey]
	if !ok {
		return AccessToken{}, fmt.Errorf("access token for %q: %w", accountID, errors.ErrNotFound)
	}
	return token, nil
}

func (r *InMemoryRepo) UpsertFlow(flow *FlowState) error {
	if flow == nil {
		return fmt.Errorf("flow cannot be nil")
	}
	if flow.State == "" {
		return fmt.Errorf("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to prevent external modifications
	stored := *flow
	stored.Scopes = append([]string(nil), flow.Scopes...)
	r.flows[flow.State] = stored
	return nil
}

func (r *InMemoryRepo) GetFlow(state string) (*FlowState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, ok := r.flows[state]
	if !ok {
		return nil, errors.ErrFlowNotFound
	}
	return &flow, nil
}

func (r *InMemoryRepo) LatestFlow() (*FlowState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *FlowState
	for _, flow := range r.flows {
		if latest == nil || flow.CreatedAt.After(latest.CreatedAt) {
			f := flow
			latest = &f
		}
	}
	if latest == nil {
		return nil, errors.ErrFlowNotFound
	}
	return latest, nil
}

func (r *InMemoryRepo) DeleteFlow(state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flows, state)
	return nil
}

func (r *InMemoryRepo) SetInteractionFailure(failure *InteractionFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if failure == nil {
		r.failure = nil
		return nil
	}
	f := *failure
	r.failure = &f
	return nil
}

func (r *InMemoryRepo) GetInteractionFailure() (*InteractionFailure, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failure == nil {
		return nil, nil
	}
	f := *r.failure
	return &f, nil
}

func (r *InMemoryRepo) ClearInteractionFailure() error {
	return r.SetInteractionFailure(nil)
}

func (r *InMemoryRepo) Close() error { return nil }
