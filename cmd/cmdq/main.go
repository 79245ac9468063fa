// Package main is the entry point for the cmdq CLI.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/musher-dev/cmdq/internal/buildinfo"
	clierrors "github.com/musher-dev/cmdq/internal/errors"
	"github.com/musher-dev/cmdq/internal/output"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() (exitCode int) {
	// Restore cursor visibility if a spinner or the TUI panics.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprint(os.Stderr, "\033[?25h")
			panic(r)
		}
	}()

	buildinfo.Version = version
	buildinfo.Commit = commit
	buildinfo.Date = date

	if err := newRootCmd().Execute(); err != nil {
		return handleError(output.Default(), err)
	}

	return clierrors.ExitSuccess
}

// handleError prints err and returns the exit code for it.
func handleError(out *output.Writer, err error) int {
	var cliErr *clierrors.CLIError
	if clierrors.As(err, &cliErr) {
		out.Failure("%s", cliErr.Message)

		if cliErr.Hint != "" {
			out.Info("%s", cliErr.Hint)
		}

		return cliErr.Code
	}

	msg := err.Error()

	switch {
	// Cobra appends "Did you mean this?" suggestions to the message.
	case strings.HasPrefix(msg, "unknown command"):
		out.Failure("%s", msg)

		if !strings.Contains(msg, "--help") {
			out.Info("Run 'cmdq --help' for usage")
		}

		return clierrors.ExitUsage
	case strings.HasPrefix(msg, "unknown flag"),
		strings.HasPrefix(msg, "unknown shorthand flag"),
		strings.Contains(msg, "required flag"):
		out.Failure("%s", msg)
		out.Info("Run 'cmdq --help' for usage")

		return clierrors.ExitUsage
	}

	out.Failure("%s", msg)

	return clierrors.ExitGeneral
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	out := output.Default()
	notifier := &updateNotifier{version: version}

	rootCmd := &cobra.Command{
		Use:   "cmdq",
		Short: "Run shell commands one at a time from a queue",
		Long: `cmdq runs shell commands one at a time from a FIFO queue. Every command
is a fixed prefix plus a suffix you supply, and its output is streamed
live, line by line, with progress lines redrawn in place.

Get started:
  cmdq start                    Open the interactive queue
  cmdq run URL1 URL2            Run suffixes headless and exit
  cmdq run --file tasks.yaml    Run a batch file
  cmdq history list             Browse recorded sessions
  cmdq doctor                   Diagnose common issues`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			flags.applyOutput(out)

			if err := initObservability(cmd, out, &flags); err != nil {
				return err
			}

			notifier.start(cmd, out)

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			notifier.finish(cmd, out)
			return nil
		},
	}

	flags.register(rootCmd.PersistentFlags())

	rootCmd.SuggestionsMinimumDistance = 2

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return clierrors.New(clierrors.ExitUsage, err.Error()).
			WithHint(fmt.Sprintf("Run '%s --help' for available flags", cmd.CommandPath()))
	})

	// Queue commands
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newRunCmd())

	// Resource commands (noun-first)
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newHistoryCmd())

	// Utility commands
	rootCmd.AddCommand(newDoctorCmd())
	rootCmd.AddCommand(newPathsCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// noArgs rejects positional arguments with a friendlier message than
// cobra.NoArgs ("unknown command").
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return clierrors.New(clierrors.ExitUsage, fmt.Sprintf("'%s' accepts no arguments", cmd.CommandPath())).
			WithHint(fmt.Sprintf("Run '%s --help' for usage", cmd.CommandPath()))
	}

	return nil
}
