// Package cli implements the piiredact command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/raaihank/piiredact/internal/redact"
	"github.com/raaihank/piiredact/internal/rules"
)

// Exit codes returned by Execute.
const (
	ExitOK     = 0
	ExitUsage  = 1
	ExitConfig = 2
	ExitInput  = 3
	ExitFailed = 4
)

// errUsage is returned when there is no text to redact and help was printed.
var errUsage = errors.New("no input text")

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath   string
	patterns     string
	noDefaults   bool
	strategy     string
	matchTimeout time.Duration
	logFile      string
	logLevel     string
	logFormat    string
}

// app carries the state of one command line invocation.
type app struct {
	version string
	flags   globalFlags

	// isTerminal reports whether r is an interactive terminal.
	isTerminal func(r io.Reader) bool
}

func newApp(version string) *app {
	return &app{version: version, isTerminal: stdinIsTerminal}
}

// NewRootCommand builds the piiredact command tree.
func NewRootCommand(version string) *cobra.Command {
	return newApp(version).rootCommand()
}

func (a *app) rootCommand() *cobra.Command {
	var opts redactOptions

	root := &cobra.Command{
		Use:   "piiredact [text]",
		Short: "Redact personally identifiable information from text",
		Long: `piiredact replaces phone numbers, street addresses and person names with
placeholders such as [REDACTED:phone].

Text is taken from the argument or, when none is given, from piped stdin.
Custom patterns are loaded from a JSON file with -p and are added to the
built-in rules; a custom rule with a built-in name replaces it.

	Examples:
	  piiredact "Call Jane Doe at 555-0100"
	  cat notes.txt | piiredact -p patterns.json -o notes.redacted.txt
	  piiredact --strategy hash --report matches.json < notes.txt`,
		Version:       a.version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRedact(cmd, args, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "configuration file (default: ./piiredact.yaml if present)")
	pf.StringVarP(&a.flags.patterns, "patterns", "p", "", "custom pattern file (JSON)")
	pf.BoolVar(&a.flags.noDefaults, "no-defaults", false, "use only the custom patterns, without the built-in rules")
	pf.StringVar(&a.flags.strategy, "strategy", "", "replacement strategy: placeholder, hash or fake")
	pf.DurationVar(&a.flags.matchTimeout, "match-timeout", 0, "time budget per rule and input (e.g. 250ms)")
	pf.StringVarP(&a.flags.logFile, "log-file", "l", "", "also write the log to this file")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "log format: console or json")

	root.Flags().StringVarP(&opts.output, "output", "o", "", "write redacted text to this file instead of stdout")
	root.Flags().StringVar(&opts.report, "report", "", "write a JSON match report to this file")

	root.AddCommand(a.rulesCommand())
	root.AddCommand(a.batchCommand())
	root.AddCommand(a.serveCommand())

	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(version string) int {
	ctx := context.Background()
	return execute(ctx, newApp(version).rootCommand(), os.Args[1:], os.Stderr)
}

func execute(ctx context.Context, cmd *cobra.Command, args []string, stderr io.Writer) int {
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	if !errors.Is(err, errUsage) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return ExitCode(err)
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	var (
		configErr *rules.ConfigError
		inputErr  *redact.InputError
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errUsage):
		return ExitUsage
	case errors.As(err, &configErr):
		return ExitConfig
	case errors.As(err, &inputErr):
		return ExitInput
	case isFlagError(err):
		return ExitUsage
	default:
		return ExitFailed
	}
}

// isFlagError recognizes cobra's argument and flag parsing failures, which
// are plain errors.
func isFlagError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.HasPrefix(msg, "invalid argument") ||
		strings.HasPrefix(msg, "accepts ") ||
		strings.Contains(msg, "flag needs an argument")
}

func stdinIsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
