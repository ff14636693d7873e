package cmds

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cosiner/argv"
	"github.com/spf13/cobra"

	"github.com/go-delve/logpoint/pkg/config"
	"github.com/go-delve/logpoint/pkg/locspec"
	"github.com/go-delve/logpoint/pkg/logflags"
	"github.com/go-delve/logpoint/pkg/logpoint"
	"github.com/go-delve/logpoint/pkg/proc"
	"github.com/go-delve/logpoint/pkg/target"
	"github.com/go-delve/logpoint/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// mode selects how the location argument is interpreted.
	mode string
	// iterations is the size of the workload run by the target.
	iterations int
	// targetArgs is appended to the command line of the target runner.
	targetArgs string
	// tty is used to provide an alternate TTY for the target.
	tty string
	// noColor disables colored output.
	noColor bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const logpointCommandLongDesc = `Logpoint runs a target program under ptrace, reads the value of a symbol
every time the target reaches a location, prints it and lets the target
continue, until it exits.

The target is this same executable, running a reference workload that
computes the Fibonacci sequence. Its state is exposed as three symbols:
'a' and 'b', the two accumulators, and 'i', the iteration counter.

The location is interpreted according to --mode:

	counter		the index, starting at zero, of a call to the instrumentation hook
	line		the source line of a call to the instrumentation hook
	addr		a hexadecimal offset in the executable file
	func		the name of a function

A location prefixed with '*' is always an address. Hook locations are
reported by the target itself; address and function locations get a one
shot breakpoint instruction.

Logpoint exits with status 0 if the target exits, 2 if it is killed by a
signal and 1 if tracing fails.`

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	var err error
	conf, err = config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	defaultMode := conf.LocationMode
	if defaultMode == "" {
		defaultMode = locspec.KindCounter.String()
	}

	// Main logpoint root command.
	rootCommand = &cobra.Command{
		Use:   "logpoint [flags] <location> <symbol>",
		Short: "Logpoint prints the value of a symbol every time a traced program reaches a location.",
		Long:  logpointCommandLongDesc,
		Args:  cobra.ExactArgs(2),
		Run:   rootCmd,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable tracer logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'logpoint help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'logpoint help log').")
	rootCommand.Flags().StringVarP(&mode, "mode", "m", defaultMode, "How the location is interpreted: counter, line, addr or func.")
	rootCommand.Flags().IntVarP(&iterations, "iterations", "n", conf.GetIterations(), "Number of steps computed by the target workload.")
	rootCommand.Flags().StringVar(&targetArgs, "target-args", conf.TargetArgs, "Extra arguments for the target runner, split like a shell command line.")
	rootCommand.Flags().StringVarP(&tty, "tty", "t", "", "TTY to use for the target program.")
	rootCommand.Flags().BoolVar(&noColor, "no-color", !conf.ColorEnabled(), "Disable colored output.")

	// 'target' subcommand.
	targetCommand := &cobra.Command{
		Use:                "target",
		Short:              "Runs the traced workload.",
		Hidden:             true,
		DisableFlagParsing: true,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(target.Main(args, os.Stdout))
		},
	}
	rootCommand.AddCommand(targetCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Logpoint\n%s\n", version.LogpointVersion)
			if log {
				fmt.Print(version.BuildInfo())
			}
		},
	}
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	tracer		Log the ptrace control loop (default)
	maps		Log memory map scans and address translations
	target		Log the target runner, on the standard error of the target

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func rootCmd(cmd *cobra.Command, args []string) {
	os.Exit(execute(args[0], args[1], os.Stdout))
}

// splitTargetArgs splits the value of --target-args into arguments.
func splitTargetArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := argv.Argv(s,
		func(s string) (string, error) {
			return "", fmt.Errorf("Backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal target arguments '%s'", s)
	}
	return v[0], nil
}

func parseArgs(locStr, symStr string) (logpoint.Config, error) {
	var cfg logpoint.Config
	kind, err := locspec.ParseKind(mode)
	if err != nil {
		return cfg, err
	}
	cfg.Location, err = locspec.Parse(locStr, kind)
	if err != nil {
		return cfg, err
	}
	cfg.Symbol, err = proc.ParseSymbol(symStr)
	if err != nil {
		return cfg, err
	}
	if iterations < 0 {
		return cfg, errors.New("--iterations must not be negative")
	}
	cfg.Iterations = iterations
	cfg.TargetArgs, err = splitTargetArgs(targetArgs)
	if err != nil {
		return cfg, err
	}
	cfg.PrefixArgs = []string{"target"}
	cfg.TTY = tty
	return cfg, nil
}

func execute(locStr, symStr string, stdout *os.File) int {
	o, err := run(locStr, symStr, stdout)
	if err != nil {
		logflags.WriteError(err.Error())
		return logpoint.ExitFailure
	}
	return logpoint.ExitCode(o)
}

func run(locStr, symStr string, stdout *os.File) (proc.Outcome, error) {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return proc.Outcome{}, err
	}
	defer logflags.Close()

	cfg, err := parseArgs(locStr, symStr)
	if err != nil {
		return proc.Outcome{}, err
	}
	cfg.LogOutput = logflags.Flags()
	cfg.Stdin = os.Stdin
	cfg.Stdout = stdout
	cfg.Stderr = os.Stderr

	return logpoint.Run(cfg, logpoint.NewPrinter(stdout, !noColor))
}
