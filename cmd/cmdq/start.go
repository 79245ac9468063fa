package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/musher-dev/cmdq/internal/config"
	clierrors "github.com/musher-dev/cmdq/internal/errors"
	"github.com/musher-dev/cmdq/internal/observability"
	"github.com/musher-dev/cmdq/internal/output"
	"github.com/musher-dev/cmdq/internal/queue"
	"github.com/musher-dev/cmdq/internal/runner"
	"github.com/musher-dev/cmdq/internal/tui"
)

// eventBuffer bounds the line backlog between the runner and the UI.
const eventBuffer = 256

func newStartCmd() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Open the interactive command queue",
		Long: `Open a full-screen queue. Type a suffix and press Enter to queue
"<prefix> <suffix>"; commands run one at a time while you keep typing.

The left panel shows the running command and the pending queue. The right
panel shows live output, with progress lines redrawn in place.

Keys:
  Enter        Queue the suffix
  Ctrl+P, Tab  Edit the command prefix
  PgUp/PgDn    Scroll the output
  Esc, Ctrl+C  Quit after the running command finishes`,
		Example: `  cmdq start
  cmdq start --prefix "yt-dlp -f 140"`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			if out.NoInput || !out.Terminal().InteractiveEnabled() {
				return clierrors.CannotPrompt("cmdq run")
			}

			cfg := config.Load()

			if strings.TrimSpace(prefix) == "" {
				prefix = cfg.Prefix()
			}

			return runInteractive(cmd.Context(), out, cfg, prefix)
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Command prefix (default: runner.prefix)")

	return cmd
}

func runInteractive(ctx context.Context, out *output.Writer, cfg *config.Config, prefix string) error {
	events := runner.NewChanSink(eventBuffer)
	defer events.Close()

	rec := openRecorder(ctx, cfg, "start", prefix)
	defer closeRecorder(ctx, rec)

	r, err := newRunner(ctx, cfg, queue.New(cfg.QueueCapacity()), sinks(events, rec))
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.Start(runCtx)

	model := tui.New(tui.Options{
		Runner:      r,
		Events:      events.Events(),
		Prefix:      prefix,
		MaxLogLines: cfg.MaxLogLines(),
	})

	logger := observability.FromContext(ctx)
	logger.Info("interactive session started", slog.String("prefix", prefix))

	_, runErr := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()

	// Let the running task finish; pending tasks still run before exit.
	r.Shutdown()
	events.Close()

	if d := r.Snapshot(); !d.Idle() || len(d.Pending) > 0 {
		out.Info("Waiting for %d queued command(s) to finish...", len(d.Pending)+boolToInt(!d.Idle()))
	}

	r.Wait()

	d := r.Snapshot()
	logger.Info("interactive session finished", slog.Int("completed", d.Completed), slog.Int("failed", d.Failed))

	if runErr != nil {
		return fmt.Errorf("run interactive UI: %w", runErr)
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
