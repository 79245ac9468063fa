package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/musher-dev/cmdq/internal/config"
	"github.com/musher-dev/cmdq/internal/console"
	clierrors "github.com/musher-dev/cmdq/internal/errors"
	"github.com/musher-dev/cmdq/internal/observability"
	"github.com/musher-dev/cmdq/internal/output"
	"github.com/musher-dev/cmdq/internal/queue"
	"github.com/musher-dev/cmdq/internal/runner"
	"github.com/musher-dev/cmdq/internal/taskfile"
)

func newRunCmd() *cobra.Command {
	var (
		prefix string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "run [suffix...]",
		Short: "Run queued commands headless and exit",
		Long: `Queue one task per suffix, run them in order, and exit when the queue
is empty. Each command is the prefix, a space, and the suffix.

Output is streamed as it arrives: stdout lines to stdout, stderr lines to
stderr. Progress lines (ending in a carriage return) are redrawn in place on
a terminal and printed as plain lines otherwise. With --json every line is a
JSON event.

Tasks can also come from a file (--file): YAML or TOML with a prefix and
suffix list, or plain text with one suffix per line. Use --file - to read
suffixes from stdin.

The exit status is non-zero if any command failed to start or exited
non-zero.`,
		Args: cobra.ArbitraryArgs,
		Example: `  cmdq run https://example.com/a https://example.com/b
  cmdq run --prefix "echo hello" one two three
  cmdq run --file tasks.yaml
  cat urls.txt | cmdq run --file -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()

			if strings.TrimSpace(prefix) == "" {
				prefix = cfg.Prefix()
			}

			tasks, err := collectTasks(cmd, file, prefix, args)
			if err != nil {
				return err
			}

			return runHeadless(cmd.Context(), out, cfg, prefix, tasks)
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Command prefix (default: runner.prefix)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read tasks from a YAML, TOML, or text file (- for stdin)")

	return cmd
}

// collectTasks returns file tasks followed by one task per argument.
func collectTasks(cmd *cobra.Command, file, prefix string, args []string) ([]queue.Task, error) {
	var tasks []queue.Task

	switch file {
	case "":
	case "-":
		fileTasks, err := taskfile.Parse(cmd.InOrStdin(), taskfile.FormatText, prefix)
		if err != nil {
			return nil, clierrors.TaskFileInvalid("<stdin>", err)
		}

		tasks = append(tasks, fileTasks...)
	default:
		fileTasks, err := taskfile.Load(file, prefix)
		if err != nil {
			return nil, clierrors.TaskFileInvalid(file, err)
		}

		tasks = append(tasks, fileTasks...)
	}

	for _, suffix := range args {
		tasks = append(tasks, queue.Task{Prefix: strings.TrimSpace(prefix), Suffix: strings.TrimSpace(suffix)})
	}

	if len(tasks) == 0 {
		return nil, clierrors.NoTasks()
	}

	for _, task := range tasks {
		if task.Prefix == "" {
			return nil, clierrors.New(clierrors.ExitUsage, "Command prefix is empty").
				WithHint("Pass --prefix or set runner.prefix with 'cmdq config set runner.prefix <cmd>'")
		}
	}

	return tasks, nil
}

func runHeadless(ctx context.Context, out *output.Writer, cfg *config.Config, prefix string, tasks []queue.Task) error {
	q := queue.New(cfg.QueueCapacity())
	for _, task := range tasks {
		if err := q.TryEnqueue(task); err != nil {
			if errors.Is(err, queue.ErrQueueFull) {
				return clierrors.QueueFull(q.Cap())
			}

			return fmt.Errorf("enqueue task: %w", err)
		}
	}

	// The runner exits once the last task is done.
	q.Shutdown()

	var r *runner.Runner

	sink := console.New(out, console.Options{
		Snapshot: func() runner.Dashboard { return r.Snapshot() },
	})
	defer sink.Close()

	rec := openRecorder(ctx, cfg, "run", prefix)
	defer closeRecorder(ctx, rec)

	r, err := newRunner(ctx, cfg, q, sinks(sink, rec))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A second interrupt falls through to the default handler.
	context.AfterFunc(ctx, stop)

	logger := observability.FromContext(ctx)
	logger.Info("headless run started", slog.Int("tasks", len(tasks)))

	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("run tasks: %w", err)
	}

	d := r.Snapshot()
	logger.Info("headless run finished", slog.Int("completed", d.Completed), slog.Int("failed", d.Failed))

	if d.Failed > 0 {
		return clierrors.TasksFailed(d.Failed, d.Completed+d.Failed)
	}

	return nil
}
