// Package paths resolves the bridge's on-disk locations.
//
// Resolution order for the home directory:
// 1. BRIDGE_HOME environment variable
// 2. the bridge_home setting in bridge.yml
// 3. ~/.bridge
package paths

import (
	"os"
	"path/filepath"
)

// Home returns the bridge home directory. The configured value wins
// only when BRIDGE_HOME is unset; pass "" to use the defaults.
func Home(configured string) string {
	if env := os.Getenv("BRIDGE_HOME"); env != "" {
		return env
	}
	if configured != "" {
		return expand(configured)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".bridge")
	}
	return ".bridge"
}

// WorkflowsDir returns the directory holding external workflow
// override files.
func WorkflowsDir(home string) string {
	return filepath.Join(home, "workflows")
}

// PromptsDir returns the directory holding subroutine prompt overrides.
func PromptsDir(home string) string {
	return filepath.Join(home, "prompts")
}

// StateDir returns the directory holding persisted session state.
func StateDir(home string) string {
	return filepath.Join(home, "state")
}

// WorkspacesDir returns the directory session workspaces are created
// under when bridge.yml does not configure one.
func WorkspacesDir(home string) string {
	return filepath.Join(home, "workspaces")
}

// PidFilePath returns the path to the bridge daemon PID file.
func PidFilePath(home string) string {
	return filepath.Join(home, "bridge.pid")
}

// EnsureDirs creates the bridge directories if they don't exist.
func EnsureDirs(home string) error {
	dirs := []string{
		home,
		WorkflowsDir(home),
		PromptsDir(home),
		StateDir(home),
		WorkspacesDir(home),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// expand expands a leading tilde in a configured path.
func expand(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, path[1:])
		}
	}
	return path
}
