package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/grovetools/bridge/cli"
	"github.com/grovetools/bridge/config"
	"github.com/grovetools/bridge/internal/engine"
	"github.com/grovetools/bridge/internal/pidfile"
	"github.com/grovetools/bridge/internal/server"
	"github.com/grovetools/bridge/logging"
	"github.com/grovetools/bridge/pkg/approval"
	"github.com/grovetools/bridge/pkg/auth"
	"github.com/grovetools/bridge/pkg/models"
	"github.com/grovetools/bridge/pkg/paths"
	"github.com/grovetools/bridge/pkg/procedure"
	"github.com/grovetools/bridge/pkg/runner"
	"github.com/grovetools/bridge/pkg/tracker"
	"github.com/grovetools/bridge/pkg/workspace"
	"github.com/spf13/cobra"
)

// NewServeCmd returns the foreground daemon command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge daemon",
		Long:  "Start the bridge in foreground mode: session engine, HTTP server, and config watcher.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("bridge")

			cfg, cfgPath, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			home := paths.Home(cfg.Settings.BridgeHome)
			if err := paths.EnsureDirs(home); err != nil {
				return fmt.Errorf("failed to prepare bridge home: %w", err)
			}

			pidPath := paths.PidFilePath(home)
			if err := pidfile.Acquire(pidPath); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer func() {
				if err := pidfile.Release(pidPath); err != nil {
					logger.Errorf("Failed to release pidfile: %v", err)
				}
			}()

			// Catalog with external workflow overrides merged in once.
			catalog := procedure.NewCatalog()
			if err := procedure.LoadOverrides(catalog, paths.WorkflowsDir(home)); err != nil {
				return fmt.Errorf("failed to load workflow overrides: %w", err)
			}

			mem := tracker.NewMemoryTracker()
			broker := approval.NewBroker(cfg.Settings.ApprovalTimeoutDuration())

			workspacesDir := cfg.Settings.WorkspacesDir
			if workspacesDir == "" {
				workspacesDir = paths.WorkspacesDir(home)
			}
			workspaces := workspace.NewManager(workspacesDir)

			runners := map[models.RunnerKind]runner.Runner{
				models.RunnerClaude: runner.NewClaudeRunner(),
				models.RunnerGemini: runner.NewGeminiRunner(),
			}
			defaultRunner := models.RunnerKind(cfg.Settings.DefaultRunner)
			classifier := runner.NewRunnerClassifier(runners[defaultRunner], cfg.Settings.RouterModel)

			eng := engine.New(engine.Config{
				Tracker:          mem,
				Catalog:          catalog,
				Router:           procedure.NewRouter(classifier, catalog),
				Workspaces:       workspaces,
				Approvals:        broker,
				Refresher:        auth.NewRefresher(cfg.Repositories),
				Runners:          runners,
				DefaultRunner:    defaultRunner,
				PromptsDir:       paths.PromptsDir(home),
				BaseURL:          cfg.Settings.BaseURL,
				SessionRetention: cfg.Settings.RetentionDuration(),
			})

			stateDir := paths.StateDir(home)
			if err := eng.Manager().LoadFrom(stateDir); err != nil {
				logger.WithError(err).Warn("Could not restore persisted sessions")
			}

			srv := server.New(cfg, eng, mem, broker, workspaces)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// Watch the directory holding the active config file.
			if cfgPath != "" {
				watcher, err := server.NewConfigWatcher(filepath.Dir(cfgPath), 500*time.Millisecond, srv.NotifyReload)
				if err != nil {
					logger.WithError(err).Warn("Config watcher unavailable")
				} else {
					go watcher.Start(ctx)
				}
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			go func() {
				<-stop
				logger.Info("Received stop signal")
				cancel()

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()

				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Server shutdown error: %v", err)
				}
				if err := eng.Manager().SaveTo(stateDir); err != nil {
					logger.Errorf("Failed to persist sessions: %v", err)
				}
				_ = pidfile.Release(pidPath)
				os.Exit(0)
			}()

			go eng.Start(ctx)

			logger.WithField("pid", os.Getpid()).Info("Starting bridge")
			if err := srv.ListenAndServe(); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
}

// NewStopCmd returns the command that stops a running daemon.
func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running bridge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := pidPathFromFlags(cmd)

			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}

			if !running {
				fmt.Println("Bridge is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}

			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}

			fmt.Printf("Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

// NewStatusCmd returns the daemon status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check bridge daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := pidPathFromFlags(cmd)
			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}

			if running {
				fmt.Printf("Running (PID: %d)\n", pid)
			} else {
				fmt.Println("Stopped")
				os.Exit(1) // Non-zero for stopped state (useful for scripts)
			}
			return nil
		},
	}
}

// loadConfig resolves and loads the bridge configuration honoring the
// --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	opts := cli.GetOptions(cmd)
	if opts.ConfigFile != "" {
		cfg, err := config.Load(opts.ConfigFile)
		return cfg, opts.ConfigFile, err
	}

	cfgPath, err := cli.InitConfig("")
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadDefault()
	return cfg, cfgPath, err
}

// pidPathFromFlags resolves the pid file location without requiring a
// full config; stop/status must work even when bridge.yml is broken.
func pidPathFromFlags(cmd *cobra.Command) string {
	home := paths.Home("")
	if cfg, _, err := loadConfig(cmd); err == nil {
		home = paths.Home(cfg.Settings.BridgeHome)
	}
	return paths.PidFilePath(home)
}
