// Package workspace prepares isolated working directories for agent
// sessions. Repositories backed by git get a dedicated worktree on an
// agent branch; anything else gets a plain directory.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grovetools/bridge/config"
	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/git"
	"github.com/grovetools/bridge/logging"
	"github.com/grovetools/bridge/pkg/models"
	"github.com/grovetools/bridge/pkg/profiling"
	"github.com/grovetools/bridge/util/sanitize"
	"github.com/sirupsen/logrus"
)

// Manager creates and removes session workspaces.
type Manager struct {
	worktrees     git.WorktreeProvider
	workspacesDir string
	logger        *logrus.Entry
}

// NewManager builds a workspace manager rooted at workspacesDir.
func NewManager(workspacesDir string) *Manager {
	return &Manager{
		worktrees:     git.NewWorktreeManager(),
		workspacesDir: workspacesDir,
		logger:        logging.NewLogger("workspace"),
	}
}

// NewManagerWithProvider builds a manager with a custom worktree
// provider, used by tests.
func NewManagerWithProvider(workspacesDir string, provider git.WorktreeProvider) *Manager {
	return &Manager{
		worktrees:     provider,
		workspacesDir: workspacesDir,
		logger:        logging.NewLogger("workspace"),
	}
}

// BranchName derives the agent branch for an issue identifier, e.g.
// ENG-42 becomes agent/eng-42.
func BranchName(identifier string) string {
	return "agent/" + sanitize.ForBranchPart(identifier)
}

// Prepare returns a ready workspace for an issue in the given
// repository. Git repositories get a worktree named after the issue
// identifier, branched from the repository's base branch. Non-git
// repositories fall back to a plain directory under the workspaces
// root.
func (m *Manager) Prepare(ctx context.Context, repo *config.RepositoryConfig, issue models.IssueMinimal) (models.Workspace, error) {
	defer profiling.Start("workspace.prepare").Stop()

	name := sanitize.ForFilename(issue.Identifier)
	if name == "" {
		name = sanitize.ForFilename(issue.ID)
	}

	if !git.IsInstalled() {
		return models.Workspace{}, errors.New(errors.ErrCodeGitNotInstalled,
			"git is not installed; cannot prepare workspaces")
	}

	if !git.IsGitRepo(repo.Path) {
		return m.preparePlainDir(name)
	}

	worktreesDir := filepath.Join(m.workspacesDir, repo.ID)
	path, err := m.worktrees.GetOrPrepareWorktree(ctx, repo.Path, worktreesDir, name, BranchName(issue.Identifier), repo.BaseBranch)
	if err != nil {
		return models.Workspace{}, errors.Wrap(err, errors.ErrCodeWorktreeCreateError,
			fmt.Sprintf("failed to prepare worktree for %s", issue.Identifier)).
			WithDetail("repository", repo.ID)
	}

	m.logger.WithFields(logrus.Fields{
		"issue": issue.Identifier,
		"path":  path,
	}).Info("Prepared workspace")

	return models.Workspace{Path: path, IsGitWorktree: true}, nil
}

// preparePlainDir creates a bare directory workspace.
func (m *Manager) preparePlainDir(name string) (models.Workspace, error) {
	path := filepath.Join(m.workspacesDir, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return models.Workspace{}, errors.Wrap(err, errors.ErrCodeWorktreeCreateError,
			"failed to create workspace directory").WithDetail("path", path)
	}
	return models.Workspace{Path: path, IsGitWorktree: false}, nil
}

// Remove deletes a session workspace. Worktrees are detached from
// their repository first; plain directories are removed outright.
func (m *Manager) Remove(ctx context.Context, repo *config.RepositoryConfig, ws models.Workspace) error {
	if ws.Path == "" {
		return nil
	}
	if ws.IsGitWorktree && repo != nil {
		if err := m.worktrees.RemoveWorktree(ctx, repo.Path, ws.Path); err != nil {
			return errors.Wrap(err, errors.ErrCodeWorktreeCreateError,
				"failed to remove worktree").WithDetail("path", ws.Path)
		}
		return nil
	}
	return os.RemoveAll(ws.Path)
}

// Status reports git status for a workspace, or nil for plain
// directories.
func (m *Manager) Status(ws models.Workspace) (*git.StatusInfo, error) {
	if !ws.IsGitWorktree {
		return nil, nil
	}
	return git.GetStatus(ws.Path)
}
