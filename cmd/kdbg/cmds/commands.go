package cmds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xux-core/kdbg/cmd/kdbg/cmds/helphelpers"
	"github.com/xux-core/kdbg/pkg/backtrace"
	"github.com/xux-core/kdbg/pkg/config"
	"github.com/xux-core/kdbg/pkg/logflags"
	"github.com/xux-core/kdbg/pkg/snapshot"
	"github.com/xux-core/kdbg/pkg/terminal"
	"github.com/xux-core/kdbg/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// configPath replaces the default configuration file.
	configPath string

	// color forces colored annotations.
	color bool
	// symbolizer overrides the symbolizer of the configuration file.
	symbolizer string
	// execCmd is a command line whose output is annotated instead of stdin.
	execCmd string
	// initFile is the path to initialization file.
	initFile string
	// verbose prints the build information with the version.
	verbose bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const kdbgCommandLongDesc = `kdbg is a companion debugger for a RISC-V teaching kernel.

It annotates kernel panic backtraces with the function and source location of
every return address, and pretty prints kernel data structures captured in
memory snapshots.

A backtrace is usually resolved by piping the kernel console into kdbg:

` + "`make run | kdbg backtrace target/riscv64gc-unknown-none-elf/release/os`"

// New returns an initialized command tree.
func New(docCall bool) *cobra.Command {
	// Main kdbg root command.
	rootCommand = &cobra.Command{
		Use:   "kdbg",
		Short: "kdbg resolves kernel backtraces and pretty prints kernel data structures.",
		Long:  kdbgCommandLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if docCall {
				conf = &config.Config{}
				return nil
			}
			return loadConfig()
		},
		SilenceUsage: true,
	}
	rootCommand.SetOut(terminal.Stdout())

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'kdbg help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'kdbg help log').")
	rootCommand.PersistentFlags().StringVarP(&configPath, "config", "", "", "Configuration file, instead of $HOME/.kdbg/config.yml.")

	// 'backtrace' subcommand.
	backtraceCommand := &cobra.Command{
		Use:   "backtrace <path/to/kernel>",
		Short: "Annotate a kernel backtrace read from standard input.",
		Long: `Annotate a kernel backtrace read from standard input.

Every line is copied to standard output. Lines containing a return address
(ra=0x...) are followed by the function and source location of the address,
as reported by the symbolizer:

	[kernel]   #00 fp=0x80213f50 ra=0x80200a3c
	    ↳ rust_main at src/main.rs:42

The symbolizer is an addr2line compatible executable, invoked as
'<symbolizer> -e <path/to/kernel> -f -p <address>'.

Ctrl-C stops kdbg after the line being annotated, even while it is waiting
for more input. With --exec the command is interrupted as well.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("you must provide the path to the kernel image")
			}
			return rootCommand.PersistentPreRunE(cmd, args)
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(backtraceCmd(cmd, args))
		},
	}
	backtraceCommand.Flags().BoolVar(&color, "color", false, "Color the annotation lines.")
	backtraceCommand.Flags().StringVar(&symbolizer, "symbolizer", "", "Symbolizer executable, overrides the configuration file.")
	backtraceCommand.Flags().StringVar(&execCmd, "exec", "", "Run a command and annotate its output instead of standard input.")
	rootCommand.AddCommand(backtraceCommand)

	// 'print' subcommand.
	printCommand := &cobra.Command{
		Use:   "print <snapshot.yml> [variable...]",
		Short: "Print variables of a memory snapshot.",
		Long: `Print variables of a memory snapshot.

Without variable names every variable of the snapshot is printed, sorted by
name. Values whose type has a registered pretty printer are printed field by
field, following pointers; other values are printed by type name.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a snapshot")
			}
			return rootCommand.PersistentPreRunE(cmd, args)
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(printCmd(cmd, args))
		},
	}
	rootCommand.AddCommand(printCommand)

	// 'repl' subcommand.
	replCommand := &cobra.Command{
		Use:   "repl <snapshot.yml> [path/to/kernel]",
		Short: "Explore a memory snapshot interactively.",
		Long: `Explore a memory snapshot interactively.

When the kernel image is given the 'resolve' command of the prompt
symbolizes return addresses.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args) > 2 {
				return errors.New("you must provide a snapshot and optionally a kernel image")
			}
			return rootCommand.PersistentPreRunE(cmd, args)
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(replCmd(cmd, args))
		},
	}
	replCommand.Flags().StringVar(&initFile, "init", "", "Init file, a starlark script executed before the first prompt.")
	rootCommand.AddCommand(replCommand)

	// 'script' subcommand.
	scriptCommand := &cobra.Command{
		Use:   "script <file.star> [snapshot.yml]",
		Short: "Run a starlark script.",
		Long: `Run a starlark script.

The script can build values, store them at addresses, register pretty
printers and read the variables of the optional snapshot. If the script
defines a function called main it is called after the script is loaded.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args) > 2 {
				return errors.New("you must provide a script and optionally a snapshot")
			}
			return rootCommand.PersistentPreRunE(cmd, args)
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(scriptCmd(cmd, args))
		},
	}
	rootCommand.AddCommand(scriptCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kdbg\n%s\n", version.KdbgVersion)
			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "Build Details: %s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&verbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	resolver	Log every annotated return address (default)
	symbolizer	Log symbolizer invocations and cache hits
	formatter	Log cycles found by the pretty printers
	snapshot	Log snapshot loading and type mismatches
	terminal	Log failed commands of the prompt

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.

`,
	})

	defaultHelp := rootCommand.HelpFunc()
	rootCommand.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helphelpers.Prepare(cmd)
		defaultHelp(cmd, args)
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func loadConfig() error {
	if configPath == "" {
		conf = config.LoadConfig()
		return nil
	}
	var err error
	conf, err = config.LoadConfigFrom(configPath)
	return err
}

// setupLog enables logging, callers must call logflags.Close when done.
func setupLog(stderr io.Writer) bool {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return false
	}
	return true
}

// newResolver returns a resolver for the kernel at image, configured by
// conf and the command line flags.
func newResolver(image string) (*backtrace.Resolver, error) {
	if _, err := os.Stat(image); err != nil {
		return nil, fmt.Errorf("kernel image: %w", err)
	}
	tool := symbolizer
	if tool == "" {
		tool = conf.SymbolizerTool()
	}
	var sym backtrace.Symbolizer = &backtrace.Addr2Line{Tool: tool}
	if conf.CacheSize > 0 {
		cached, err := backtrace.NewCachingSymbolizer(sym, conf.CacheSize)
		if err != nil {
			return nil, err
		}
		sym = cached
	}
	return backtrace.New(backtrace.Config{
		Image:       image,
		Color:       color || terminal.ColorEnabled(conf.ColorMode(), os.Stdout),
		ColorEscape: conf.AnnotationEscape(),
		Symbolizer:  sym,
	}), nil
}

// newTerm returns a prompt operating on the snapshot at snapshotPath and
// resolving addresses of the kernel at image. Both are optional.
func newTerm(cmd *cobra.Command, snapshotPath, image string) (*terminal.Term, *snapshot.Snapshot, error) {
	var sess terminal.Session
	if snapshotPath != "" {
		s, err := snapshot.Load(snapshotPath)
		if err != nil {
			return nil, nil, err
		}
		sess.Snapshot = s
	}
	if image != "" {
		resolver, err := newResolver(image)
		if err != nil {
			return nil, nil, err
		}
		sess.Resolver = resolver
	}
	term := terminal.New(sess, conf)
	term.SetStdout(cmd.OutOrStdout())
	return term, sess.Snapshot, nil
}

func backtraceCmd(cmd *cobra.Command, args []string) int {
	stderr := cmd.ErrOrStderr()
	if !setupLog(stderr) {
		return 1
	}
	defer logflags.Close()

	resolver, err := newResolver(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	var in io.Reader = cmd.InOrStdin()
	var proc *backtrace.Command
	if execCmd != "" {
		proc, err = backtrace.StartCommand(execCmd)
		if err != nil {
			fmt.Fprintf(stderr, "error: could not start %q: %v\n", execCmd, err)
			return 1
		}
		in = proc
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waitForInterrupt(ctx, cancel, proc)

	err = resolver.Run(ctx, in, cmd.OutOrStdout())
	if proc != nil {
		if cerr := proc.Close(); cerr != nil {
			logflags.ResolverLogger().Debugf("%q exited: %v", execCmd, cerr)
		}
	}
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
}

// waitForInterrupt cancels ctx on SIGINT. A process started with --exec
// runs in its own session and is interrupted explicitly.
func waitForInterrupt(ctx context.Context, cancel context.CancelFunc, proc *backtrace.Command) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			if proc != nil {
				proc.Interrupt()
			}
			cancel()
		case <-ctx.Done():
		}
	}()
}

func printCmd(cmd *cobra.Command, args []string) int {
	stderr := cmd.ErrOrStderr()
	if !setupLog(stderr) {
		return 1
	}
	defer logflags.Close()

	term, s, err := newTerm(cmd, args[0], "")
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	names := args[1:]
	if len(names) == 0 {
		names = s.VarNames()
	}
	if len(names) == 0 {
		return 0
	}
	if err := term.Call("print " + strings.Join(names, " ")); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func replCmd(cmd *cobra.Command, args []string) int {
	stderr := cmd.ErrOrStderr()
	if !setupLog(stderr) {
		return 1
	}
	defer logflags.Close()

	var image string
	if len(args) > 1 {
		image = args[1]
	}
	term, _, err := newTerm(cmd, args[0], image)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	term.InitFile = initFile
	status, err := term.Run()
	if err != nil {
		fmt.Fprintln(stderr, err)
	}
	return status
}

func scriptCmd(cmd *cobra.Command, args []string) int {
	stderr := cmd.ErrOrStderr()
	if !setupLog(stderr) {
		return 1
	}
	defer logflags.Close()

	var snapshotPath string
	if len(args) > 1 {
		snapshotPath = args[1]
	}
	term, _, err := newTerm(cmd, snapshotPath, "")
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if err := term.Source(args[0]); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
