package apiclient_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/hourstracker-client/apiclient"
	"github.com/jrsteele09/hourstracker-client/internal/errors"
	"github.com/stretchr/testify/require"
)

var errStop = fmt.Errorf("stop")

func newBackend(t *testing.T, handler http.HandlerFunc) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return apiclient.New(srv.URL+"/", apiclient.WithHTTPClient(srv.Client()))
}

func TestFetchCurrentUser(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/me", r.URL.Path)
		require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get("client-request-id"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            7,
			"azure_oid":     "object-1",
			"email":         "alice@example.com",
			"display_name":  nil,
			"is_active":     true,
			"last_login_at": nil,
			"created_at":    "2024-01-02T03:04:05Z",
		})
	})
	client.UseRequest(func(req *http.Request) error {
		req.Header.Set("Authorization", "Bearer token-1")
		return nil
	})

	user, err := client.FetchCurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, user.ID)
	require.Equal(t, "object-1", user.AzureOID)
	require.Nil(t, user.DisplayName)
	require.Nil(t, user.LastLoginAt)
	require.Equal(t, "alice@example.com", user.Name())
	require.Equal(t, 2024, user.CreatedAt.Year())
}

func TestFetchCurrentUser_NullEmail(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":8,"azure_oid":"object-2","email":null,"display_name":null,"is_active":false,"created_at":"2024-01-02T03:04:05Z"}`))
	})

	user, err := client.FetchCurrentUser(context.Background())
	require.NoError(t, err)
	require.Nil(t, user.Email)
	require.Equal(t, "object-2", user.Name())
}

func TestInterceptorsRunInOrder(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	var calls []string
	client.UseRequest(func(*http.Request) error { calls = append(calls, "req1"); return nil })
	client.UseRequest(func(*http.Request) error { calls = append(calls, "req2"); return nil })
	client.UseResponse(func(*http.Response) error { calls = append(calls, "resp1"); return nil })
	client.UseResponse(func(*http.Response) error { calls = append(calls, "resp2"); return nil })

	require.NoError(t, client.Get(context.Background(), "/ping", nil))
	require.Equal(t, []string{"req1", "req2", "resp1", "resp2"}, calls)
}

func TestRequestInterceptorAbandonsRequest(t *testing.T) {
	reached := false
	client := newBackend(t, func(http.ResponseWriter, *http.Request) { reached = true })
	client.UseRequest(func(*http.Request) error { return errStop })

	err := client.Get(context.Background(), "/ping", nil)
	require.True(t, errors.Is(err, errStop))
	require.False(t, reached)
}

func TestResponseInterceptorReplacesResponse(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client.UseResponse(func(resp *http.Response) error {
		if resp.StatusCode == http.StatusUnauthorized {
			return errStop
		}
		return nil
	})

	err := client.Get(context.Background(), "/ping", nil)
	require.True(t, errors.Is(err, errStop))
}

func TestNonSuccessStatus(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := client.Get(context.Background(), "/ping", nil)
	var statusErr *apiclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	require.Contains(t, statusErr.Body, "boom")
}
