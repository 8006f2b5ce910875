package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"
)

// CobraProfiler wires the profiling flags into a cobra command tree.
// Timing can also be armed with BRIDGE_TIMING=1, which is how the serve
// daemon is profiled without editing its service file.
type CobraProfiler struct {
	cpuFile *os.File
	cpuPath string
	memPath string
	timing  bool
}

// NewCobraProfiler returns an unarmed profiler.
func NewCobraProfiler() *CobraProfiler {
	return &CobraProfiler{}
}

// AddFlags registers the profiling flags on cmd.
func (p *CobraProfiler) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&p.cpuPath, "cpu-profile", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&p.memPath, "mem-profile", "", "Write memory profile to file")
	cmd.PersistentFlags().BoolVar(&p.timing, "timing", false, "Print hierarchical timing summary on exit")
}

// PreRun is a PersistentPreRunE hook that arms whatever the flags (or
// BRIDGE_TIMING) asked for.
func (p *CobraProfiler) PreRun(cmd *cobra.Command, args []string) error {
	if p.timing || os.Getenv("BRIDGE_TIMING") == "1" {
		p.timing = true
		Enable()
	}

	if p.cpuPath != "" {
		f, err := os.Create(p.cpuPath)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		p.cpuFile = f
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
	}
	return nil
}

// PostRun is a PersistentPostRun hook that flushes profiles and prints
// the timing summary.
func (p *CobraProfiler) PostRun(cmd *cobra.Command, args []string) {
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		p.cpuFile.Close()
		fmt.Fprintf(cmd.ErrOrStderr(), "CPU profile written to %s\n", p.cpuPath)
	}

	if p.memPath != "" {
		f, err := os.Create(p.memPath)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "could not create memory profile: %v\n", err)
			return
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "could not write memory profile: %v\n", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Memory profile written to %s\n", p.memPath)
	}

	if p.timing {
		Summarize(os.Stderr)
	}
}
