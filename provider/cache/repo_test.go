package cache_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/hourstracker-client/internal/errors"
	"github.com/jrsteele09/hourstracker-client/provider/cache"
	"github.com/jrsteele09/hourstracker-client/session"
	"github.com/stretchr/testify/require"
)

func repos(t *testing.T) map[string]cache.Repo {
	t.Helper()

	sealer, err := cache.NewSealer("test-secret")
	require.NoError(t, err)

	sqliteRepo, err := cache.NewSQLiteRepo(filepath.Join(t.TempDir(), "cache.db"), sealer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteRepo.Close() })

	return map[string]cache.Repo{
		"inmemory": cache.NewInMemoryRepo(),
		"sqlite":   sqliteRepo,
	}
}

func testAccount(id, name string) cache.Account {
	return cache.Account{
		Session: session.Session{
			AccountID:       id,
			LocalAccountID:  "local-" + id,
			TenantID:        "tenant-1",
			Name:            name,
			Username:        name + "@example.com",
			AuthenticatedAt: time.Unix(1700000000, 0),
		},
		IDToken: "id-token-" + id,
	}
}

func TestRepo_Accounts(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.UpsertAccount(testAccount("b", "bob")))
			require.NoError(t, repo.UpsertAccount(testAccount("a", "alice")))
			// Updating keeps the original position
			updated := testAccount("b", "bobby")
			require.NoError(t, repo.UpsertAccount(updated))

			accounts, err := repo.ListAccounts()
			require.NoError(t, err)
			require.Len(t, accounts, 2)
			require.Equal(t, "b", accounts[0].AccountID)
			require.Equal(t, "bobby", accounts[0].Name)
			require.Equal(t, "id-token-b", accounts[0].IDToken)
			require.True(t, accounts[0].AuthenticatedAt.Equal(time.Unix(1700000000, 0)))

			got, err := repo.GetAccount("a")
			require.NoError(t, err)
			require.Equal(t, "alice", got.Name)

			_, err = repo.GetAccount("missing")
			require.ErrorIs(t, err, errors.ErrNotFound)

			require.Error(t, repo.UpsertAccount(cache.Account{}))
		})
	}
}

func TestRepo_ActiveAccount(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			id, err := repo.GetActiveAccountID()
			require.NoError(t, err)
			require.Empty(t, id)

			require.NoError(t, repo.UpsertAccount(testAccount("a", "alice")))
			require.NoError(t, repo.SetActiveAccountID("a"))
			id, err = repo.GetActiveAccountID()
			require.NoError(t, err)
			require.Equal(t, "a", id)

			require.NoError(t, repo.DeleteAccount("a"))
			id, err = repo.GetActiveAccountID()
			require.NoError(t, err)
			require.Empty(t, id)
		})
	}
}

func TestRepo_Tokens(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.UpsertAccount(testAccount("a", "alice")))

			_, err := repo.GetRefreshToken("a")
			require.ErrorIs(t, err, errors.ErrNotFound)

			require.NoError(t, repo.UpsertRefreshToken("a", "rt-1"))
			require.NoError(t, repo.UpsertRefreshToken("a", "rt-2"))
			rt, err := repo.GetRefreshToken("a")
			require.NoError(t, err)
			require.Equal(t, "rt-2", rt)

			key := cache.ScopeKey([]string{"api://x/access"})
			expiry := time.Now().Add(time.Hour).Truncate(time.Second)
			require.NoError(t, repo.UpsertAccessToken("a", key, cache.AccessToken{
				Token:     "at-1",
				TokenType: "Bearer",
				Scopes:    []string{"api://x/access"},
				ExpiresAt: expiry,
			}))

			at, err := repo.GetAccessToken("a", key)
			require.NoError(t, err)
			require.Equal(t, "at-1", at.Token)
			require.Equal(t, []string{"api://x/access"}, at.Scopes)
			require.True(t, at.ExpiresAt.Equal(expiry))

			_, err = repo.GetAccessToken("a", cache.ScopeKey(nil))
			require.ErrorIs(t, err, errors.ErrNotFound)

			require.NoError(t, repo.DeleteAccount("a"))
			_, err = repo.GetRefreshToken("a")
			require.ErrorIs(t, err, errors.ErrNotFound)
			_, err = repo.GetAccessToken("a", key)
			require.ErrorIs(t, err, errors.ErrNotFound)
		})
	}
}

func TestRepo_Flows(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.LatestFlow()
			require.ErrorIs(t, err, errors.ErrFlowNotFound)

			older := &cache.FlowState{State: "s1", Nonce: "n1", CodeVerifier: "v1", Scopes: []string{"openid"}, CreatedAt: time.Unix(100, 0)}
			newer := &cache.FlowState{State: "s2", Nonce: "n2", CodeVerifier: "v2", ReturnURL: "/", AuthURL: "https://idp/authorize", CreatedAt: time.Unix(200, 0)}
			require.NoError(t, repo.UpsertFlow(older))
			require.NoError(t, repo.UpsertFlow(newer))

			got, err := repo.GetFlow("s1")
			require.NoError(t, err)
			require.Equal(t, "v1", got.CodeVerifier)
			require.Equal(t, []string{"openid"}, got.Scopes)

			latest, err := repo.LatestFlow()
			require.NoError(t, err)
			require.Equal(t, "s2", latest.State)
			require.Equal(t, "https://idp/authorize", latest.AuthURL)

			require.NoError(t, repo.DeleteFlow("s2"))
			_, err = repo.GetFlow("s2")
			require.ErrorIs(t, err, errors.ErrFlowNotFound)

			require.Error(t, repo.UpsertFlow(&cache.FlowState{}))
		})
	}
}

func TestRepo_InteractionFailure(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			f, err := repo.GetInteractionFailure()
			require.NoError(t, err)
			require.Nil(t, f)

			require.NoError(t, repo.SetInteractionFailure(&cache.InteractionFailure{
				Code:        "access_denied",
				Description: "user cancelled",
				OccurredAt:  time.Unix(300, 0),
			}))
			f, err = repo.GetInteractionFailure()
			require.NoError(t, err)
			require.Equal(t, "access_denied", f.Code)
			require.Equal(t, "user cancelled", f.Description)

			require.NoError(t, repo.ClearInteractionFailure())
			f, err = repo.GetInteractionFailure()
			require.NoError(t, err)
			require.Nil(t, f)
		})
	}
}

func TestScopeKey(t *testing.T) {
	require.Equal(t, "email openid profile", cache.ScopeKey([]string{"profile", "OpenID", "email", "openid", " "}))
	require.Equal(t, "", cache.ScopeKey(nil))
}

func TestSealer(t *testing.T) {
	_, err := cache.NewSealer("")
	require.Error(t, err)

	s, err := cache.NewSealer("secret")
	require.NoError(t, err)

	sealed, err := s.Seal("refresh-token")
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "refresh-token")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "refresh-token", plain)

	other, err := cache.NewSealer("other")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	require.Error(t, err)
}
