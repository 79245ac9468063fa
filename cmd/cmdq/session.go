package main

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/musher-dev/cmdq/internal/config"
	clierrors "github.com/musher-dev/cmdq/internal/errors"
	"github.com/musher-dev/cmdq/internal/observability"
	"github.com/musher-dev/cmdq/internal/queue"
	"github.com/musher-dev/cmdq/internal/runner"
	"github.com/musher-dev/cmdq/internal/transcript"
)

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// newRunner builds a runner from the loaded configuration.
func newRunner(ctx context.Context, cfg *config.Config, q *queue.Queue, sink runner.Sink) (*runner.Runner, error) {
	shell := cfg.Shell()
	if len(shell) > 0 {
		if _, err := lookPath(shell[0]); err != nil {
			return nil, clierrors.ShellNotFound(strings.Join(shell, " "))
		}
	}

	r, err := runner.New(runner.Options{
		Queue:        q,
		Sink:         sink,
		Shell:        shell,
		DrainTimeout: cfg.DrainTimeout(),
		MaxResidual:  cfg.MaxResidual(),
		ReadSize:     cfg.ReadSize(),
		Encoding:     cfg.Encoding(),
		UsePTY:       cfg.UsePTY(),
		KillOnCancel: cfg.KillOnCancel(),
		Logger:       observability.FromContext(ctx),
	})
	if err != nil {
		return nil, clierrors.ConfigValueInvalid(config.KeyEncoding, err)
	}

	return r, nil
}

// openRecorder starts a history session. It returns nil when history is
// disabled or the store cannot be opened; a run never fails for history.
func openRecorder(ctx context.Context, cfg *config.Config, mode, prefix string) *transcript.Recorder {
	if !cfg.HistoryEnabled() {
		return nil
	}

	rec, err := transcript.NewRecorder(transcript.Options{
		Dir:      cfg.HistoryDir(),
		MaxLines: cfg.HistoryLines(),
		Mode:     mode,
		Prefix:   prefix,
	})
	if err != nil {
		observability.FromContext(ctx).Warn("history recording disabled", slog.String("error", err.Error()))
		return nil
	}

	observability.FromContext(ctx).Debug("history session opened", slog.String("session.id", rec.SessionID()))

	return rec
}

// closeRecorder flushes rec, logging instead of failing the command.
func closeRecorder(ctx context.Context, rec *transcript.Recorder) {
	if rec == nil {
		return
	}

	if err := rec.Close(); err != nil {
		observability.FromContext(ctx).Warn("close history session", slog.String("error", err.Error()))
	}

	if err := rec.Err(); err != nil {
		observability.FromContext(ctx).Warn("history session incomplete", slog.String("error", err.Error()))
	}
}

// sinks joins the non-nil sinks.
func sinks(primary runner.Sink, rec *transcript.Recorder) runner.Sink {
	if rec == nil {
		return primary
	}

	return runner.MultiSink{primary, rec}
}
