// Package target implements the traced side of a logpoint session. The
// driver binary re-executes itself in target mode; the runner then computes
// the reference workload, calling the instrumentation hook at its fixed
// points, and prints the result.
package target

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"unsafe"

	"github.com/spf13/pflag"

	"github.com/go-delve/logpoint/pkg/instrument"
	"github.com/go-delve/logpoint/pkg/logflags"
	"github.com/go-delve/logpoint/pkg/proc"
	"github.com/go-delve/logpoint/pkg/workload"
)

// EnvFixture is set in the environment of test binaries that re-execute
// themselves as a target.
const EnvFixture = "LOGPOINT_TARGET_FIXTURE"

// Exit codes of the runner, besides 0.
const (
	ExitUsage = 1
	// ExitNotified means the runner raised a signal on itself and never
	// received it.
	ExitNotified = 3
)

// state is the workload state of the running target. Its address in the
// tracer's image is relocated to the target's image, so it must be a
// package level variable.
var state workload.State

func init() {
	// The hook raises its trap on the calling thread and only the thread
	// group leader is traced, so the workload has to run there.
	runtime.LockOSThread()
}

// SymbolAddr returns the address of sym in this process.
func SymbolAddr(sym proc.Symbol) (uint64, error) {
	var p *int64
	switch sym {
	case proc.SymbolA:
		p = &state.A
	case proc.SymbolB:
		p = &state.B
	case proc.SymbolI:
		p = &state.I
	default:
		return 0, fmt.Errorf("no address for symbol %v", sym)
	}
	return uint64(uintptr(unsafe.Pointer(p))), nil
}

// Options configures a runner.
type Options struct {
	Mode       instrument.Mode
	Location   int64
	Iterations int
	// Notify makes the runner raise SIGUSR1 on itself before starting the
	// workload and fail if the signal is not delivered.
	Notify bool
	// Abort makes the runner kill itself with SIGKILL after the workload.
	Abort bool
	// LogOutput is the list of logging components enabled in the runner,
	// as accepted by --log-output. Empty disables logging.
	LogOutput string
}

// Args returns the command line that makes Main run with opts.
func (opts Options) Args() []string {
	args := []string{
		"--mode", opts.Mode.String(),
		"--location", strconv.FormatInt(opts.Location, 10),
		"--iterations", strconv.Itoa(opts.Iterations),
	}
	if opts.Notify {
		args = append(args, "--notify")
	}
	if opts.Abort {
		args = append(args, "--abort")
	}
	if opts.LogOutput != "" {
		args = append(args, "--log-output", opts.LogOutput)
	}
	return args
}

func parseArgs(args []string) (Options, error) {
	var (
		opts Options
		mode string
	)
	fs := pflag.NewFlagSet("target", pflag.ContinueOnError)
	fs.StringVar(&mode, "mode", instrument.ModeCounter.String(), "hook mode (counter, line or off)")
	fs.Int64Var(&opts.Location, "location", 0, "hook call index or source line that raises the trap")
	fs.IntVar(&opts.Iterations, "iterations", 100, "number of iterations of the workload")
	fs.BoolVar(&opts.Notify, "notify", false, "raise SIGUSR1 on self before running the workload")
	fs.BoolVar(&opts.Abort, "abort", false, "kill self with SIGKILL after the workload")
	fs.StringVar(&opts.LogOutput, "log-output", "", "comma separated list of components that should log")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments %q", fs.Args())
	}
	var err error
	opts.Mode, err = instrument.ParseMode(mode)
	if err != nil {
		return opts, err
	}
	if opts.Iterations < 0 {
		return opts, errors.New("iterations must not be negative")
	}
	return opts, nil
}

// Main runs the target with the command line args and returns its exit
// code. The result of the workload is printed to stdout.
func Main(args []string, stdout io.Writer) int {
	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "target: %v\n", err)
		return ExitUsage
	}
	if opts.LogOutput != "" {
		if err := logflags.Setup(true, opts.LogOutput, ""); err != nil {
			fmt.Fprintf(os.Stderr, "target: %v\n", err)
			return ExitUsage
		}
		defer logflags.Close()
	}
	log := logflags.TargetLogger()

	if !instrument.OnMainThread() {
		log.Errorf("workload is not running on the main thread")
		return ExitUsage
	}

	if opts.Notify {
		if err := notifySelf(); err != nil {
			log.Errorf("%v", err)
			return ExitNotified
		}
		log.Debugf("notification received")
	}

	hook := instrument.New(opts.Mode, opts.Location)
	log.Debugf("running %d iterations, trap in %s mode at %d", opts.Iterations, opts.Mode, opts.Location)
	result := workload.Fib(opts.Iterations, &state, hook)
	if logflags.Target() {
		log.Debugf("workload done after %d hook calls: a=%d b=%d i=%d", hook.Calls(), state.A, state.B, state.I)
	}
	fmt.Fprintf(stdout, "%d\n", uint64(result))

	if opts.Abort {
		if err := abort(); err != nil {
			log.Errorf("could not abort: %v", err)
			return ExitUsage
		}
	}
	return 0
}
