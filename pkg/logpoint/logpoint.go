// Package logpoint runs a trace session: it launches the target runner
// under the native backend, resolves the logpoint and the symbol to read,
// and reports every hit until the target terminates.
package logpoint

import (
	"fmt"
	"os"
	"runtime"

	"github.com/go-delve/logpoint/pkg/instrument"
	"github.com/go-delve/logpoint/pkg/locspec"
	"github.com/go-delve/logpoint/pkg/logflags"
	"github.com/go-delve/logpoint/pkg/proc"
	"github.com/go-delve/logpoint/pkg/proc/maps"
	"github.com/go-delve/logpoint/pkg/proc/native"
	"github.com/go-delve/logpoint/pkg/target"
)

// Exit codes of a session.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitSignaled = 2
)

// Config describes a trace session.
type Config struct {
	Location locspec.LocationSpec
	Symbol   proc.Symbol

	// Iterations is the size of the workload run by the target.
	Iterations int
	// TargetArgs are appended to the command line of the target runner.
	TargetArgs []string
	// PrefixArgs are inserted between the executable and the runner
	// arguments, to select the runner in the driver's command tree.
	PrefixArgs []string
	// Env is the environment of the target, the tracer's if nil.
	Env []string
	// LogOutput is passed down to the target runner, see
	// logflags.Flags.
	LogOutput string

	Stdin, Stdout, Stderr *os.File
	TTY                   string
}

// Run executes the trace session described by cfg, reporting to rep. The
// target is always the running executable, so that the address of the
// symbol can be computed in this process and relocated into the target.
func Run(cfg Config, rep proc.Reporter) (proc.Outcome, error) {
	log := logflags.TracerLogger()

	exe, err := os.Executable()
	if err != nil {
		return proc.Outcome{}, &proc.SetupError{Op: "find executable", Err: err}
	}

	opts := target.Options{
		Mode:       instrument.ModeOff,
		Iterations: cfg.Iterations,
		LogOutput:  cfg.LogOutput,
	}
	if hl, ok := cfg.Location.(locspec.HookLocationSpec); ok {
		opts.Mode, opts.Location = hl.Hook()
	}

	argv := append([]string{exe}, cfg.PrefixArgs...)
	argv = append(argv, opts.Args()...)
	argv = append(argv, cfg.TargetArgs...)

	p, err := native.Launch(argv, native.LaunchOptions{
		Env:    cfg.Env,
		Stdin:  cfg.Stdin,
		Stdout: cfg.Stdout,
		Stderr: cfg.Stderr,
		TTY:    cfg.TTY,
	})
	if err != nil {
		return proc.Outcome{}, err
	}
	defer p.Close()

	selfAddr, err := target.SymbolAddr(cfg.Symbol)
	if err != nil {
		return proc.Outcome{}, &proc.SetupError{Op: "resolve symbol", Err: err}
	}
	addr, err := maps.Relocate(selfAddr, maps.Self, p.Pid())
	if err != nil {
		return proc.Outcome{}, &proc.SetupError{Op: fmt.Sprintf("resolve symbol %s", cfg.Symbol), Err: err}
	}

	src, err := trapSource(cfg.Location, p.Pid())
	if err != nil {
		return proc.Outcome{}, &proc.SetupError{Op: fmt.Sprintf("resolve location %s", cfg.Location), Err: err}
	}
	log.Debugf("logpoint %s (%s), reading %s at %#x", cfg.Location, src, cfg.Symbol, addr)

	return p.Run(proc.Logpoint{Source: src, Symbol: cfg.Symbol, Addr: addr}, rep)
}

func trapSource(loc locspec.LocationSpec, pid int) (proc.TrapSource, error) {
	switch loc := loc.(type) {
	case locspec.HookLocationSpec:
		return proc.SelfReportingTrap{}, nil
	case locspec.InjectedLocationSpec:
		arch, err := proc.ArchForGOARCH(runtime.GOARCH)
		if err != nil {
			return nil, err
		}
		exe, err := maps.Default.ExePath(pid)
		if err != nil {
			return nil, err
		}
		off, err := loc.FileOffset(exe)
		if err != nil {
			return nil, err
		}
		addr, err := maps.Translate(pid, off)
		if err != nil {
			return nil, err
		}
		return proc.NewInjectedTrap(addr, arch), nil
	}
	return nil, fmt.Errorf("unsupported location %v", loc)
}

// ExitCode returns the exit code of the driver for the outcome of a
// session.
func ExitCode(o proc.Outcome) int {
	if o.Exited {
		return ExitOK
	}
	return ExitSignaled
}
