package git

import (
	"path/filepath"
	"testing"

	"github.com/grovetools/bridge/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRepoName(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		expected string
	}{
		{
			name:     "SSH URL with .git",
			url:      "git@github.com:user/my-project.git",
			expected: "my-project",
		},
		{
			name:     "HTTPS URL with .git",
			url:      "https://github.com/user/my-project.git",
			expected: "my-project",
		},
		{
			name:     "HTTPS URL without .git",
			url:      "https://github.com/user/my-project",
			expected: "my-project",
		},
		{
			name:     "GitLab nested groups",
			url:      "https://gitlab.com/group/subgroup/project.git",
			expected: "project",
		},
		{
			name:     "SSH URL without .git",
			url:      "git@github.com:user/repo",
			expected: "repo",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := extractRepoName(tc.url)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestGetRepoInfo(t *testing.T) {
	testutil.RequireGit(t)
	tmpDir := t.TempDir()
	testutil.InitGitRepo(t, tmpDir)

	// Test without remote (should use directory name)
	repo, branch, err := GetRepoInfo(tmpDir)
	assert.NoError(t, err)
	assert.Equal(t, filepath.Base(tmpDir), repo)
	assert.NotEmpty(t, branch)

	// Add remote
	testutil.RunGitCommand(t, tmpDir, "remote", "add", "origin", "git@github.com:user/test-repo.git")

	// Test with remote
	repo, branch, err = GetRepoInfo(tmpDir)
	assert.NoError(t, err)
	assert.Equal(t, "test-repo", repo)
	assert.NotEmpty(t, branch)
}

func TestIsGitRepo(t *testing.T) {
	testutil.RequireGit(t)

	tmpDir := t.TempDir()
	testutil.InitGitRepo(t, tmpDir)
	assert.True(t, IsGitRepo(tmpDir))

	nonGitDir := t.TempDir()
	assert.False(t, IsGitRepo(nonGitDir))
}

func TestResolveRef(t *testing.T) {
	testutil.RequireGit(t)
	tmpDir := t.TempDir()
	testutil.InitGitRepo(t, tmpDir)

	head, err := GetHeadCommit(tmpDir)
	require.NoError(t, err)
	assert.Len(t, head, 40)

	byBranch, err := ResolveRef(tmpDir, "main")
	require.NoError(t, err)
	assert.Equal(t, head, byBranch)

	_, err = ResolveRef(tmpDir, "no-such-ref")
	assert.Error(t, err)
}
