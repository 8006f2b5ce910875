package git

import "context"

// WorktreeProvider defines the interface for git worktree operations
type WorktreeProvider interface {
	ListWorktrees(ctx context.Context, repoPath string) ([]WorktreeInfo, error)
	GetCurrentWorktree(ctx context.Context, path string) (*WorktreeInfo, error)
	CreateWorktree(ctx context.Context, basePath, worktreePath, branch, baseRef string, createBranch bool) error
	RemoveWorktree(ctx context.Context, basePath, worktreePath string) error
	GetWorktreeRoot(ctx context.Context, path string) (string, error)
	GetOrPrepareWorktree(ctx context.Context, repoPath, worktreesDir, worktreeName, branchName, baseRef string) (string, error)
}
