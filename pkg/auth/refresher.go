// Package auth handles workspace OAuth token refresh. Repositories
// sharing a workspace share one token, so concurrent refreshes for the
// same workspace collapse into a single outbound call.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/grovetools/bridge/config"
	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/logging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// RefreshResult is the outcome of one token refresh.
type RefreshResult struct {
	Success  bool
	NewToken string
}

// Refresher refreshes workspace tokens, coalescing concurrent requests
// per workspace identity. Distinct workspaces refresh independently.
type Refresher struct {
	group  singleflight.Group
	client *http.Client
	logger *logrus.Entry

	mu    sync.RWMutex
	repos map[string]config.RepositoryConfig
}

// NewRefresher builds a refresher over the configured repositories.
func NewRefresher(repos []config.RepositoryConfig) *Refresher {
	byID := make(map[string]config.RepositoryConfig, len(repos))
	for _, repo := range repos {
		byID[repo.ID] = repo
	}
	return &Refresher{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logging.NewLogger("auth"),
		repos:  byID,
	}
}

// RefreshToken refreshes the token for the repository's workspace.
// Concurrent calls for repositories sharing a workspace identity
// collapse into one outbound call and all receive the same token. The
// coalescing slot is cleared once the flight completes, so a later call
// starts a fresh refresh instead of replaying a stale result.
func (r *Refresher) RefreshToken(ctx context.Context, repoID string) (*RefreshResult, error) {
	r.mu.RLock()
	repo, ok := r.repos[repoID]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown repository '%s'", repoID))
	}

	key := repo.WorkspaceID
	if key == "" {
		// No shared workspace identity: coalesce per repository.
		key = "repo:" + repo.ID
	}

	value, err, shared := r.group.Do(key, func() (interface{}, error) {
		defer r.group.Forget(key)
		return r.refresh(ctx, repo)
	})
	if err != nil {
		return nil, errors.TokenRefreshFailed(key, err)
	}

	if shared {
		r.logger.WithField("workspace", key).Debug("Token refresh coalesced with in-flight request")
	}
	return value.(*RefreshResult), nil
}

func (r *Refresher) refresh(ctx context.Context, repo config.RepositoryConfig) (*RefreshResult, error) {
	if repo.TokenRefreshURL == "" {
		return nil, fmt.Errorf("repository '%s' has no token refresh endpoint", repo.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, repo.TokenRefreshURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token refresh endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode token refresh response: %w", err)
	}
	if payload.Token == "" {
		return nil, fmt.Errorf("token refresh response carried no token")
	}

	r.logger.WithField("workspace", repo.WorkspaceID).Info("Refreshed workspace token")
	return &RefreshResult{Success: true, NewToken: payload.Token}, nil
}
