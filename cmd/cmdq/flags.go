package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	clierrors "github.com/musher-dev/cmdq/internal/errors"
	"github.com/musher-dev/cmdq/internal/observability"
	"github.com/musher-dev/cmdq/internal/output"
)

// telemetryShutdownTimeout bounds the final span flush.
const telemetryShutdownTimeout = 5 * time.Second

// globalFlags holds the persistent flags shared by every command.
type globalFlags struct {
	json      bool
	quiet     bool
	noColor   bool
	noInput   bool
	logLevel  string
	logFormat string
	logFile   string
	logStderr string
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&g.json, "json", false, "Output in JSON format")
	fs.BoolVar(&g.quiet, "quiet", false, "Minimal output (for CI)")
	fs.BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&g.noInput, "no-input", false, "Disable interactive prompts")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level: error, warn, info, debug")
	fs.StringVar(&g.logFormat, "log-format", "", "Log format: json, text")
	fs.StringVar(&g.logFile, "log-file", "", "Optional structured log file path")
	fs.StringVar(&g.logStderr, "log-stderr", "", "Structured logging to stderr: auto, on, off")
}

// applyOutput copies the output flags onto out, falling back to CMDQ_* env.
func (g *globalFlags) applyOutput(out *output.Writer) {
	out.JSON = pickBoolFlagOrEnv(g.json, "CMDQ_JSON")
	out.Quiet = pickBoolFlagOrEnv(g.quiet, "CMDQ_QUIET")
	out.NoInput = pickBoolFlagOrEnv(g.noInput, "CMDQ_NO_INPUT") || pickBoolFlagOrEnv(false, "CI")

	if g.noColor {
		out.SetNoColor(true)

		color.NoColor = true
	}
}

func (g *globalFlags) logConfig(cmd *cobra.Command, out *output.Writer) *observability.Config {
	return &observability.Config{
		Level:          pickFlagOrEnv(g.logLevel, "CMDQ_LOG_LEVEL", "info"),
		Format:         pickFlagOrEnv(g.logFormat, "CMDQ_LOG_FORMAT", "json"),
		LogFile:        pickFlagOrEnv(g.logFile, "CMDQ_LOG_FILE", ""),
		StderrMode:     pickFlagOrEnv(g.logStderr, "CMDQ_LOG_STDERR", "auto"),
		InteractiveTTY: out.Terminal().IsTTY && isInteractiveCommand(cmd.CommandPath()),
		SessionID:      uuid.NewString(),
		CommandPath:    cmd.CommandPath(),
		Version:        version,
		Commit:         commit,
	}
}

// initObservability installs the logger and tracer for cmd and stores the
// writer and logger in its context. Cleanup is chained onto cmd.PostRunE.
func initObservability(cmd *cobra.Command, out *output.Writer, g *globalFlags) error {
	logger, cleanup, err := observability.NewLogger(g.logConfig(cmd, out))
	if err != nil {
		return clierrors.New(clierrors.ExitUsage, fmt.Sprintf("Invalid logging configuration: %v", err)).
			WithHint("Use --log-level (error|warn|info|debug), --log-format (json|text), --log-stderr (auto|on|off), and/or --log-file")
	}

	slog.SetDefault(logger)

	ctx := observability.WithLogger(out.WithContext(cmd.Context()), logger)
	cmd.SetContext(ctx)

	if cleanup != nil {
		cmd.PostRunE = wrapPostRunCleanup(cmd.PostRunE, cleanup)
	}

	shutdown, err := observability.SetupTelemetry(ctx, &observability.TelemetryConfig{
		Enabled: observability.IsTelemetryEnabled(),
		Version: version,
		Commit:  commit,
	})
	if err != nil {
		logger.Warn("telemetry initialization failed", slog.String("error", err.Error()))
	}

	if shutdown != nil {
		cmd.PostRunE = wrapNamedPostRunCleanup(cmd.PostRunE, "telemetry resources", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
			defer cancel()

			return shutdown(ctx)
		})
	}

	return nil
}

func wrapPostRunCleanup(postRun func(*cobra.Command, []string) error, cleanup func() error) func(*cobra.Command, []string) error {
	return wrapNamedPostRunCleanup(postRun, "logger resources", cleanup)
}

func wrapNamedPostRunCleanup(postRun func(*cobra.Command, []string) error, name string, cleanup func() error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if postRun != nil {
			if err := postRun(cmd, args); err != nil {
				_ = cleanup()
				return err
			}
		}

		if err := cleanup(); err != nil {
			return fmt.Errorf("cleanup %s: %w", name, err) //nolint:rawerror // internal cleanup, not user-facing
		}

		return nil
	}
}

func pickBoolFlagOrEnv(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}

	v := strings.ToLower(strings.TrimSpace(os.Getenv(envKey)))

	return v == "1" || v == "true" || v == "yes"
}

func pickFlagOrEnv(flagValue, envKey, fallback string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}

	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}

	return fallback
}

// isInteractiveCommand reports whether path owns the terminal, so stderr
// logging must stay off.
func isInteractiveCommand(path string) bool {
	return path == "cmdq start" || strings.HasPrefix(path, "cmdq start ")
}
