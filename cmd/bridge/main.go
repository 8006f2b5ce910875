package main

import (
	"os"

	"github.com/grovetools/bridge/cli"
	"github.com/grovetools/bridge/cmd"
	"github.com/grovetools/bridge/pkg/profiling"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"bridge",
		"Edge worker bridging an issue tracker with AI agent runners",
	)

	profiler := profiling.NewCobraProfiler()
	profiler.AddFlags(rootCmd)
	rootCmd.PersistentPreRunE = profiler.PreRun
	rootCmd.PersistentPostRun = profiler.PostRun

	rootCmd.AddCommand(cmd.NewServeCmd())
	rootCmd.AddCommand(cmd.NewStopCmd())
	rootCmd.AddCommand(cmd.NewStatusCmd())
	rootCmd.AddCommand(cmd.NewRouteCmd())
	rootCmd.AddCommand(cmd.NewSessionsCmd())
	rootCmd.AddCommand(cmd.NewRequestCmd())
	rootCmd.AddCommand(cmd.NewApproveCmd())
	rootCmd.AddCommand(cmd.NewConfigCmd())
	rootCmd.AddCommand(cli.NewVersionCommand("bridge"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
