package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grovetools/bridge/config"
	"github.com/grovetools/bridge/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRefreshServer(t *testing.T, calls *int64, token string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		// Hold the request open long enough for concurrent callers to
		// join the in-flight refresh.
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"` + token + `"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestConcurrentRefreshSameWorkspaceCoalesces(t *testing.T) {
	var calls int64
	server := newRefreshServer(t, &calls, "tok-1")

	refresher := NewRefresher([]config.RepositoryConfig{
		{ID: "api", WorkspaceID: "ws-acme", TokenRefreshURL: server.URL},
		{ID: "web", WorkspaceID: "ws-acme", TokenRefreshURL: server.URL},
	})

	var wg sync.WaitGroup
	tokens := make([]string, 3)
	repoIDs := []string{"api", "web", "api"}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := refresher.RefreshToken(context.Background(), repoIDs[i])
			require.NoError(t, err)
			tokens[i] = result.NewToken
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "same-workspace refreshes must collapse into one call")
	for _, tok := range tokens {
		assert.Equal(t, "tok-1", tok)
	}
}

func TestConcurrentRefreshDistinctWorkspaces(t *testing.T) {
	var calls int64
	server := newRefreshServer(t, &calls, "tok-2")

	refresher := NewRefresher([]config.RepositoryConfig{
		{ID: "api", WorkspaceID: "ws-a", TokenRefreshURL: server.URL},
		{ID: "web", WorkspaceID: "ws-b", TokenRefreshURL: server.URL},
	})

	var wg sync.WaitGroup
	for _, id := range []string{"api", "web"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := refresher.RefreshToken(context.Background(), id)
			require.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int64(2), atomic.LoadInt64(&calls), "distinct workspaces must not coalesce")
}

func TestSequentialRefreshesAreFresh(t *testing.T) {
	var calls int64
	server := newRefreshServer(t, &calls, "tok-3")

	refresher := NewRefresher([]config.RepositoryConfig{
		{ID: "api", WorkspaceID: "ws-acme", TokenRefreshURL: server.URL},
	})

	for i := 0; i < 2; i++ {
		result, err := refresher.RefreshToken(context.Background(), "api")
		require.NoError(t, err)
		assert.Equal(t, "tok-3", result.NewToken)
	}
	// The coalescing slot clears after each flight.
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestRefreshUnknownRepo(t *testing.T) {
	refresher := NewRefresher(nil)
	_, err := refresher.RefreshToken(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestRefreshEndpointFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	refresher := NewRefresher([]config.RepositoryConfig{
		{ID: "api", WorkspaceID: "ws-acme", TokenRefreshURL: server.URL},
	})

	_, err := refresher.RefreshToken(context.Background(), "api")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeTokenRefreshFailed))
}
