package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/musher-dev/cmdq/internal/config"
	clierrors "github.com/musher-dev/cmdq/internal/errors"
	"github.com/musher-dev/cmdq/internal/output"
	"github.com/musher-dev/cmdq/internal/prompt"
	"github.com/musher-dev/cmdq/internal/transcript"
)

// followInterval is how often --follow polls the live event file.
const followInterval = time.Second

// pickLimit caps the sessions offered when view is run without an id.
const pickLimit = 10

// newPrompter is replaced in tests.
var newPrompter = prompt.New

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded run sessions",
		Long: `Every 'cmdq start' and 'cmdq run' records its output to a history
session. Use these commands to list, read, and prune them.`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryViewCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

// historyDir returns the history root, or HistoryDisabled.
func historyDir(cfg *config.Config) (string, error) {
	if !cfg.HistoryEnabled() {
		return "", clierrors.HistoryDisabled()
	}

	return cfg.HistoryDir(), nil
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions",
		Long:  `List recorded sessions, newest first, with their mode, start and close times, and task and line counts.`,
		Example: `  cmdq history list
  cmdq history list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			dir, err := historyDir(config.Load())
			if err != nil {
				return err
			}

			sessions, err := transcript.ListSessions(dir)
			if err != nil {
				return fmt.Errorf("list history sessions: %w", err)
			}

			if out.JSON {
				if sessions == nil {
					sessions = []transcript.Session{}
				}

				return out.PrintJSON(sessions)
			}

			if len(sessions) == 0 {
				out.Muted("No history sessions found.")
				return nil
			}

			rows := make([][]string, 0, len(sessions))

			for _, s := range sessions {
				status := "running"
				if !s.Active() {
					status = s.ClosedAt.Local().Format(time.DateTime)
				}

				rows = append(rows, []string{
					s.SessionID,
					s.Mode,
					s.StartedAt.Local().Format(time.DateTime),
					status,
					strconv.Itoa(s.Tasks),
					strconv.Itoa(s.Lines),
				})
			}

			out.Table([]string{"SESSION", "MODE", "STARTED", "CLOSED", "TASKS", "LINES"}, rows)

			return nil
		},
	}
}

func newHistoryViewCmd() *cobra.Command {
	var (
		search string
		follow bool
		raw    bool
	)

	cmd := &cobra.Command{
		Use:   "view [session-id]",
		Short: "Print the output of a recorded session",
		Long: `Print the output lines of a recorded session. The id may be shortened
to any unique prefix. Without an id, an interactive terminal offers the
most recent sessions to pick from.

Terminal escape sequences are removed unless --raw is given. With --follow,
new lines are printed as a running session writes them.`,
		Example: `  cmdq history view 20260102-150405-1a2b3c4d
  cmdq history view 20260102 --search error
  cmdq history view 20260102 --follow`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			dir, err := historyDir(config.Load())
			if err != nil {
				return err
			}

			session, err := resolveSession(out, dir, args)
			if err != nil {
				return err
			}

			emit := func(events []transcript.Event) error {
				for _, ev := range transcript.Filter(events, search) {
					if out.JSON {
						if err := out.PrintJSON(ev); err != nil {
							return err
						}

						continue
					}

					text := ev.Plain()
					if raw {
						text = ev.Text
					}

					if ev.Stream == transcript.StreamStderr {
						out.Error("%s\n", text)
					} else {
						out.Print("%s\n", text)
					}
				}

				return nil
			}

			if !follow {
				events, err := transcript.ReadEvents(dir, session.SessionID)
				if err != nil {
					return fmt.Errorf("read history session: %w", err)
				}

				return emit(events)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return followSession(ctx, dir, session.SessionID, emit)
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Only show lines containing this text (case-insensitive)")
	cmd.Flags().BoolVar(&follow, "follow", false, "Keep printing new lines while the session is running")
	cmd.Flags().BoolVar(&raw, "raw", false, "Keep terminal escape sequences")

	return cmd
}

// resolveSession finds the session named by args, or asks the user to pick one.
func resolveSession(out *output.Writer, dir string, args []string) (transcript.Session, error) {
	if len(args) == 1 {
		session, err := transcript.FindSession(dir, args[0])
		if err != nil {
			if errors.Is(err, transcript.ErrSessionNotFound) {
				return transcript.Session{}, clierrors.SessionNotFound(args[0])
			}

			return transcript.Session{}, clierrors.Wrap(clierrors.ExitUsage, err.Error(), err).
				WithHint("Use a longer session id prefix")
		}

		return session, nil
	}

	p := newPrompter(out)
	if !p.CanPrompt() {
		return transcript.Session{}, clierrors.New(clierrors.ExitUsage, "Session id is required").
			WithHint("Run 'cmdq history list' to see recorded sessions")
	}

	sessions, err := transcript.ListSessions(dir)
	if err != nil {
		return transcript.Session{}, fmt.Errorf("list history sessions: %w", err)
	}

	if len(sessions) == 0 {
		return transcript.Session{}, clierrors.New(clierrors.ExitUsage, "No history sessions recorded yet")
	}

	sessions = sessions[:min(len(sessions), pickLimit)]

	options := make([]string, len(sessions))
	for i, s := range sessions {
		options[i] = fmt.Sprintf("%s  %-5s  %d task(s)", s.SessionID, s.Mode, s.Tasks)
	}

	idx, err := p.Select("Select a session:", options)
	if err != nil {
		if prompt.IsCanceled(err) {
			return transcript.Session{}, clierrors.New(clierrors.ExitUsage, "No session selected")
		}

		return transcript.Session{}, err
	}

	return sessions[idx], nil
}

// followSession prints live events until the session closes or ctx ends.
func followSession(ctx context.Context, dir, sessionID string, emit func([]transcript.Event) error) error {
	var offset int64

	for {
		events, next, err := transcript.ReadLiveEventsFrom(dir, sessionID, offset)
		if err != nil {
			return fmt.Errorf("read history session: %w", err)
		}

		offset = next

		if err := emit(events); err != nil {
			return err
		}

		if len(events) == 0 {
			session, err := transcript.FindSession(dir, sessionID)
			if err != nil {
				return fmt.Errorf("read history session: %w", err)
			}

			if !session.Active() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(followInterval):
		}
	}
}

func newHistoryPruneCmd() *cobra.Command {
	var (
		olderThan string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions older than the retention window",
		Long: `Delete closed sessions that ended longer ago than history.retention
(default 720h). Sessions still running are never removed.

On an interactive terminal the deletion is confirmed first unless --force
is given.`,
		Example: `  cmdq history prune
  cmdq history prune --older-than 168h --force`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()

			dir, err := historyDir(cfg)
			if err != nil {
				return err
			}

			window := cfg.HistoryRetention()

			if olderThan != "" {
				d, err := time.ParseDuration(olderThan)
				if err != nil || d < 0 {
					return clierrors.New(clierrors.ExitUsage, fmt.Sprintf("Invalid duration for --older-than: %q", olderThan)).
						WithHint("Use a Go duration such as 168h or 30m")
				}

				window = d
			}

			if p := newPrompter(out); !force && p.CanPrompt() {
				ok, err := p.Confirm(fmt.Sprintf("Delete sessions closed more than %s ago?", window), false)
				if err != nil && !prompt.IsCanceled(err) {
					return err
				}

				if !ok {
					out.Muted("Prune canceled.")
					return nil
				}
			}

			removed, err := transcript.PruneOlderThan(dir, time.Now().Add(-window))
			if err != nil {
				return fmt.Errorf("prune history: %w", err)
			}

			if out.JSON {
				return out.PrintJSON(map[string]int{"removed": removed})
			}

			out.Success("Removed %d history session(s)", removed)

			return nil
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "", "Override the retention window (example: 168h)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")

	return cmd
}
