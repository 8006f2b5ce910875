package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Config is the root of a bridge.yml configuration file.
type Config struct {
	// Version of the configuration format.
	Version string `yaml:"version,omitempty" jsonschema:"description=Configuration format version"`

	// Settings holds global bridge settings.
	Settings Settings `yaml:"settings,omitempty" jsonschema:"description=Global bridge settings"`

	// Repositories lists the repositories the bridge operates on.
	Repositories []RepositoryConfig `yaml:"repositories,omitempty" jsonschema:"description=Repositories the bridge manages sessions for"`

	// Extensions captures unknown top-level sections (e.g. "logging") so
	// components can decode their own configuration with UnmarshalExtension.
	Extensions map[string]interface{} `yaml:",inline"`
}

// Settings holds global bridge settings.
type Settings struct {
	// ServerHost is the address the application server binds to.
	ServerHost string `yaml:"server_host,omitempty" jsonschema:"description=Host the application server binds to (default: localhost)"`

	// ServerPort is the port the application server listens on.
	ServerPort int `yaml:"server_port,omitempty" jsonschema:"description=Port the application server listens on (default: 3456)"`

	// BaseURL is the externally reachable base URL used when generating
	// approval links. Defaults to http://<server_host>:<server_port>.
	BaseURL string `yaml:"base_url,omitempty" jsonschema:"description=External base URL for approval links"`

	// BridgeHome is the directory holding bridge state (persisted sessions,
	// workflow overrides). Defaults to ~/.bridge.
	BridgeHome string `yaml:"bridge_home,omitempty" jsonschema:"description=Directory for bridge state (default: ~/.bridge)"`

	// WorkspacesDir is where per-session git worktrees are created.
	WorkspacesDir string `yaml:"workspaces_dir,omitempty" jsonschema:"description=Directory for per-session workspaces"`

	// DefaultRunner selects the agent runner flavor: "claude" or "gemini".
	DefaultRunner string `yaml:"default_runner,omitempty" jsonschema:"description=Agent runner flavor: claude or gemini (default: claude)"`

	// RouterModel overrides the model used for request classification.
	RouterModel string `yaml:"router_model,omitempty" jsonschema:"description=Model used by the procedure router classifier"`

	// SessionRetention is how long terminal sessions are kept before the
	// cleanup sweep removes them (Go duration string, default: 24h).
	SessionRetention string `yaml:"session_retention,omitempty" jsonschema:"description=Retention window for completed sessions (default: 24h)"`

	// ApprovalTimeout bounds how long an approval request may stay pending
	// (Go duration string, default: 30m).
	ApprovalTimeout string `yaml:"approval_timeout,omitempty" jsonschema:"description=Timeout for pending approval requests (default: 30m)"`
}

// RetentionDuration parses SessionRetention, falling back to 24h on a
// malformed value.
func (s Settings) RetentionDuration() time.Duration {
	d, err := time.ParseDuration(s.SessionRetention)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// ApprovalTimeoutDuration parses ApprovalTimeout, falling back to 30m
// on a malformed value.
func (s Settings) ApprovalTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.ApprovalTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// RepositoryConfig describes one repository the bridge manages sessions for.
type RepositoryConfig struct {
	// ID uniquely identifies the repository entry.
	ID string `yaml:"id" jsonschema:"description=Unique identifier for this repository"`

	// Name is a human-readable display name.
	Name string `yaml:"name,omitempty" jsonschema:"description=Display name for the repository"`

	// Path is the absolute path to the repository checkout.
	Path string `yaml:"path" jsonschema:"description=Absolute path to the repository checkout"`

	// BaseBranch is the branch session worktrees are created from.
	BaseBranch string `yaml:"base_branch,omitempty" jsonschema:"description=Branch worktrees are created from (default: main)"`

	// WorkspaceID identifies the tracker workspace this repository belongs
	// to. Repositories sharing a WorkspaceID share one OAuth token, so
	// token refreshes for them are coalesced.
	WorkspaceID string `yaml:"workspace_id,omitempty" jsonschema:"description=Tracker workspace identity (token refresh coalescing key)"`

	// TokenRefreshURL is the endpoint used to refresh this workspace's token.
	TokenRefreshURL string `yaml:"token_refresh_url,omitempty" jsonschema:"description=Endpoint used to refresh the workspace OAuth token"`
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded bridge.yml into the provided target struct. The target must be a pointer.
// This provides a type-safe way for components to access their
// custom configuration sections.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		// The target struct will simply remain zero-valued.
		return nil
	}

	// Use mapstructure to decode the generic map[string]interface{}
	// into the strongly-typed target struct. We configure it to use
	// `yaml` tags for consistency.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}

// SetDefaults fills in default values for unset fields.
func (c *Config) SetDefaults() {
	if c.Settings.ServerHost == "" {
		c.Settings.ServerHost = "localhost"
	}
	if c.Settings.ServerPort == 0 {
		c.Settings.ServerPort = 3456
	}
	if c.Settings.BaseURL == "" {
		c.Settings.BaseURL = fmt.Sprintf("http://%s:%d", c.Settings.ServerHost, c.Settings.ServerPort)
	}
	if c.Settings.DefaultRunner == "" {
		c.Settings.DefaultRunner = "claude"
	}
	if c.Settings.SessionRetention == "" {
		c.Settings.SessionRetention = "24h"
	}
	if c.Settings.ApprovalTimeout == "" {
		c.Settings.ApprovalTimeout = "30m"
	}
	for i := range c.Repositories {
		if c.Repositories[i].BaseBranch == "" {
			c.Repositories[i].BaseBranch = "main"
		}
		if c.Repositories[i].Name == "" {
			c.Repositories[i].Name = c.Repositories[i].ID
		}
	}
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Repositories))
	for _, repo := range c.Repositories {
		if repo.ID == "" {
			return fmt.Errorf("repository entry missing id")
		}
		if repo.Path == "" {
			return fmt.Errorf("repository '%s' missing path", repo.ID)
		}
		if _, dup := seen[repo.ID]; dup {
			return fmt.Errorf("duplicate repository id '%s'", repo.ID)
		}
		seen[repo.ID] = struct{}{}
	}
	if c.Settings.DefaultRunner != "claude" && c.Settings.DefaultRunner != "gemini" {
		return fmt.Errorf("default_runner must be 'claude' or 'gemini', got '%s'", c.Settings.DefaultRunner)
	}
	return nil
}
