// Package profiling times nested operations inside the bridge and can
// attach pprof CPU/heap capture to the CLI. Disabled it costs one
// boolean check per span.
package profiling

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stopper ends a timed span, typically via defer.
type Stopper interface {
	Stop()
}

// frame is one timed operation in the span tree.
type frame struct {
	name     string
	start    time.Time
	duration time.Duration
	children []*frame
	mu       sync.Mutex
	owner    *tracker
}

func (f *frame) Stop() {
	f.duration = time.Since(f.start)
	f.owner.pop(f)
}

// tracker holds the span stack for one timing run.
type tracker struct {
	enabled bool
	mu      sync.Mutex
	root    *frame
	stack   []*frame
}

var global = &tracker{}

// Enable arms the global timer. The root span starts now; spans opened
// before Enable are not recorded.
func Enable() {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.enabled {
		return
	}
	global.enabled = true
	global.root = &frame{name: "root", start: time.Now(), owner: global}
	global.stack = []*frame{global.root}
}

// Start opens a named span nested under the currently open one.
func Start(name string) Stopper {
	if !global.enabled {
		return noop{}
	}
	return global.push(name)
}

// Summarize writes the span tree with durations and percentages of the
// total run time.
func Summarize(w io.Writer) {
	global.mu.Lock()
	defer global.mu.Unlock()

	if !global.enabled || global.root == nil {
		return
	}
	if global.root.duration == 0 {
		global.root.duration = time.Since(global.root.start)
	}

	fmt.Fprintln(w, "\n--- timing ---")
	printFrame(w, global.root, 0, global.root.duration)
	fmt.Fprintln(w, "--------------")
}

func (t *tracker) push(name string) Stopper {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return noop{}
	}

	parent := t.stack[len(t.stack)-1]
	f := &frame{name: name, start: time.Now(), owner: t}

	parent.mu.Lock()
	parent.children = append(parent.children, f)
	parent.mu.Unlock()

	t.stack = append(t.stack, f)
	return f
}

func (t *tracker) pop(*frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled || len(t.stack) <= 1 {
		return
	}
	t.stack = t.stack[:len(t.stack)-1]
}

func printFrame(w io.Writer, f *frame, depth int, total time.Duration) {
	percent := 0.0
	if total > 0 {
		percent = float64(f.duration) / float64(total) * 100
	}
	if f.name != "root" {
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(w, "%s- %s (%v, %.1f%%)\n", indent, f.name, f.duration.Round(100*time.Microsecond), percent)
	}

	// Children print in call order.
	sort.Slice(f.children, func(i, j int) bool {
		return f.children[i].start.Before(f.children[j].start)
	})
	for _, child := range f.children {
		printFrame(w, child, depth+1, total)
	}
}

type noop struct{}

func (noop) Stop() {}
