// Command lperf is a non-cooperative sampling profiler for an embedded
// Lua 5.3 runtime inside a foreign x86_64 Linux process: it attaches via
// ptrace, locates the target's lua_State, and periodically walks its
// call stack without any cooperation from the target. Grounded on
// Main.cpp's flag layout and sampling loop.
package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/9chu/lperf/pkg/debugger"
	"github.com/9chu/lperf/pkg/locator"
	"github.com/9chu/lperf/pkg/logflags"
	"github.com/9chu/lperf/pkg/lperferr"
	"github.com/9chu/lperf/pkg/lua"
	"github.com/9chu/lperf/pkg/remote"
)

var (
	flagPid      int
	flagVerbose  bool
	flagInterval int
	flagCount    int
	flagHook     string
)

func main() {
	root := &cobra.Command{
		Use:           "lperf",
		Short:         "Sampling profiler for an embedded Lua 5.3 runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().IntVarP(&flagPid, "pid", "p", 0, "target process id")
	root.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log debug/trace to stdout")
	root.Flags().IntVarP(&flagInterval, "interval", "i", 1000, "sample interval in milliseconds")
	root.Flags().IntVarP(&flagCount, "count", "c", 10, "number of samples")
	root.Flags().StringVarP(&flagHook, "hook", "k", "", "comma-separated list of additional hook entry addresses")
	root.MarkFlagRequired("pid")

	// spec.md documents --help as exiting 1, unlike cobra's default 0 —
	// this tool is meant to be driven by scripts, where "printed usage"
	// is itself the failure signal.
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(c *cobra.Command, args []string) {
		defaultHelp(c, args)
		os.Exit(1)
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lperf:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logflags.Setup(flagVerbose)

	hooks, err := parseHooks(flagHook)
	if err != nil {
		return err
	}

	ctrl, err := debugger.Attach(flagPid, true, log)
	if err != nil {
		return fmt.Errorf("attach to process %d: %w", flagPid, err)
	}
	defer ctrl.Close()

	// Keep the target running while we hunt for its lua_State; locate
	// pauses it itself around each hook install/removal.
	if err := ctrl.Continue(); err != nil {
		return fmt.Errorf("resume process %d: %w", flagPid, err)
	}

	stateAddr, err := locator.FetchLuaState(ctrl, hooks, log)
	if err != nil {
		return fmt.Errorf("locate lua_State: %w", err)
	}
	log.Infof("located lua_State at 0x%x", stateAddr)

	histogram := map[string]int{}
	interval := time.Duration(flagInterval) * time.Millisecond

	for i := 0; i < flagCount; i++ {
		if i > 0 {
			time.Sleep(interval)
		}

		stack, err := sampleOnce(ctrl, stateAddr)
		if err != nil {
			log.WithError(err).Warn("sample failed, skipping")
			continue
		}

		histogram[formatStack(stack)]++
	}

	printHistogram(histogram)
	return nil
}

// sampleOnce pauses the target for exactly the span of one stack walk,
// installs the memory accessor scope, and resumes the target before
// returning — mirroring LuaSampler::DumpStack's ProcessPauseScope +
// MemoryAccessorScope pairing.
func sampleOnce(ctrl *debugger.Controller, stateAddr uintptr) ([]lua.StackFrame, error) {
	if ctrl.Status() == debugger.Running {
		if err := ctrl.Interrupt(); err != nil {
			return nil, err
		}
	}
	defer ctrl.ContinueSafe()

	restore := remote.Install(remote.NewAccessor(ctrl))
	defer restore()

	state, err := remote.Ptr[lua.LuaState](stateAddr).Deref()
	if err != nil {
		return nil, err
	}
	g, err := state.G.Deref()
	if err != nil {
		return nil, err
	}

	return lua.DumpStack(stateAddr, g, 0, ctrl.Symbolizer().GetFunctionName)
}

// formatStack renders a resolved call stack per the CLI's folded-stack
// output convention: "(base);<outermost>;...;<innermost>".
func formatStack(stack []lua.StackFrame) string {
	parts := make([]string, 0, len(stack)+1)
	parts = append(parts, "(base)")
	for i := len(stack) - 1; i >= 0; i-- {
		parts = append(parts, formatFrame(stack[i]))
	}
	return strings.Join(parts, ";")
}

func formatFrame(f lua.StackFrame) string {
	switch f.Type {
	case lua.FunctionNative:
		if f.Name != "" {
			return "[" + f.Name + "]"
		}
		return fmt.Sprintf("[0x%016x]", f.Address)
	case lua.FunctionLua:
		name := f.Name
		if name == "" {
			name = "?"
		}
		return fmt.Sprintf("%s @ %s:%d", name, f.ShortSource, f.Line)
	default:
		return "?"
	}
}

func printHistogram(histogram map[string]int) {
	stacks := make([]string, 0, len(histogram))
	for s := range histogram {
		stacks = append(stacks, s)
	}
	sort.Strings(stacks)
	for _, s := range stacks {
		fmt.Printf("%s; %d\n", s, histogram[s])
	}
}

func parseHooks(csv string) ([]uintptr, error) {
	if csv == "" {
		return nil, nil
	}
	fields := strings.Split(csv, ",")
	out := make([]uintptr, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		base := 10
		if strings.HasPrefix(f, "0x") || strings.HasPrefix(f, "0X") {
			f = f[2:]
			base = 16
		}
		v, err := strconv.ParseUint(f, base, 64)
		if err != nil {
			return nil, lperferr.NewBadFormat("invalid hook address %q: %v", f, err)
		}
		out = append(out, uintptr(v))
	}
	return out, nil
}
