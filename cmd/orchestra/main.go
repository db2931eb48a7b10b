// Device Orchestra - device orchestration core
//
// orchestra loads a device manifest, drives devices through their
// lifecycle, runs pipelines of device commands and, under `serve`, keeps
// the devices running behind a read-only HTTP API and event relays.
//
// Usage:
//
//	orchestra [--config FILE] [--log-level LEVEL] <command> [args]
//
// Commands are status, test, run, debug and serve.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes.
const (
	exitOK    = 0
	exitFault = 1
	exitUsage = 2
)

// exitError carries a specific exit code out of a command. Its message has
// already been printed when silent is set.
type exitError struct {
	code   int
	err    error
	silent bool
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// ExitCode returns the process exit code for the error.
func (e *exitError) ExitCode() int { return e.code }

func usageError(format string, args ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

// faultError reports a fault whose details the command already printed.
func faultError(format string, args ...any) error {
	return &exitError{code: exitFault, err: fmt.Errorf(format, args...), silent: true}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := exitCode(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr), os.Stderr)
	cancel()
	os.Exit(code)
}

// exitCode maps the error returned by run to a process exit code, printing
// it unless the command already reported it.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !ee.silent {
			fmt.Fprintf(stderr, "error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitFault
}

// globalOptions are the flags accepted before the command name.
type globalOptions struct {
	configPath string
	logLevel   string
}

// command is one subcommand.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *environment, args []string) error
}

// environment is what every command sees: parsed global flags and the
// process streams.
type environment struct {
	opts   globalOptions
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func commands() []command {
	return []command{
		{name: "status", summary: "list configured devices and their state", run: runStatus},
		{name: "test", summary: "run diagnostics against one device", run: runTest},
		{name: "run", summary: "execute a pipeline file", run: runPipeline},
		{name: "debug", summary: "interactive command console for one device", run: runDebug},
		{name: "serve", summary: "run devices, relays and the HTTP API until interrupted", run: runServe},
	}
}

// run is the application entry point, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - args: Command line without the program name
//   - stdin, stdout, stderr: Process streams
//
// Returns:
//   - error: nil on success; an *exitError selects a specific exit code
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	env := &environment{stdin: stdin, stdout: stdout, stderr: stderr}

	flagSet := pflag.NewFlagSet("orchestra", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.SetInterspersed(false)
	flagSet.StringVarP(&env.opts.configPath, "config", "c", "", "configuration file (default: $ORCHESTRA_CONFIG or configs/orchestra.yaml)")
	flagSet.StringVar(&env.opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	showVersion := flagSet.Bool("version", false, "print version and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(stdout, flagSet)
			return nil
		}
		return usageError("%w", err)
	}

	if help, _ := flagSet.GetBool("help"); help {
		printUsage(stdout, flagSet)
		return nil
	}
	if *showVersion {
		fmt.Fprintf(stdout, "orchestra %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return &exitError{code: exitUsage, err: errors.New("no command given"), silent: true}
	}

	for _, cmd := range commands() {
		if cmd.name == rest[0] {
			return cmd.run(ctx, env, rest[1:])
		}
	}
	return usageError("unknown command %q (see orchestra --help)", rest[0])
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "Device Orchestra - device orchestration core\n\n")
	fmt.Fprintf(w, "Usage:\n  orchestra [flags] <command> [args]\n\nCommands:\n")
	for _, cmd := range commands() {
		fmt.Fprintf(w, "  %-8s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintf(w, "\nFlags:\n%s", flagSet.FlagUsages())
}

// parseCommandFlags parses a subcommand's flags. A --help request prints the
// command usage and returns pflag.ErrHelp, which callers treat as success.
func parseCommandFlags(env *environment, flagSet *pflag.FlagSet, usage string, args []string) error {
	flagSet.SetOutput(io.Discard)
	flagSet.BoolP("help", "h", false, "show help")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(env.stdout, "Usage:\n  orchestra %s\n\nFlags:\n%s", usage, flagSet.FlagUsages())
			return pflag.ErrHelp
		}
		return usageError("%s: %w", flagSet.Name(), err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintf(env.stdout, "Usage:\n  orchestra %s\n\nFlags:\n%s", usage, flagSet.FlagUsages())
		return pflag.ErrHelp
	}
	return nil
}
