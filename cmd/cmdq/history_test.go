package main

import (
	"io"
	"strings"
	"testing"
	"time"

	clierrors "github.com/musher-dev/cmdq/internal/errors"
	"github.com/musher-dev/cmdq/internal/output"
	"github.com/musher-dev/cmdq/internal/prompt"
	"github.com/musher-dev/cmdq/internal/transcript"
)

// seedSession records one closed session with the given lines.
func seedSession(t *testing.T, dir, id string, started time.Time, lines ...string) {
	t.Helper()

	rec, err := transcript.NewRecorder(transcript.Options{
		SessionID: id,
		Dir:       dir,
		Mode:      "run",
		Prefix:    "echo",
		Now:       func() time.Time { return started },
	})
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	for _, line := range lines {
		rec.OnLine(line, strings.HasPrefix(line, "ERR"), false)
	}

	rec.OnTaskFinished()

	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func runHistory(t *testing.T, json bool, args ...string) (string, error) {
	t.Helper()

	out, buf := testWriter()
	out.JSON = json

	cmd := newHistoryCmd()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetContext(out.WithContext(t.Context()))

	err := cmd.Execute()

	return buf.String(), err
}

// stubPrompter makes history commands prompt as if on a terminal.
func stubPrompter(t *testing.T, input string) {
	t.Helper()

	orig := newPrompter
	newPrompter = func(out *output.Writer) *prompt.Prompter {
		return prompt.NewWithInput(out, strings.NewReader(input), true)
	}

	t.Cleanup(func() { newPrompter = orig })
}

func TestHistoryView_SearchAndPrefix(t *testing.T) {
	isolateConfig(t)

	dir := t.TempDir()
	t.Setenv("CMDQ_HISTORY_DIR", dir)

	seedSession(t, dir, "20260102-150405-1a2b3c4d", time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
		"$ echo \x1b[1mhello\x1b[0m", "\x1b[1mhello\x1b[0m", "ERR something broke", "Process finished. Exit code: 0")

	got, err := runHistory(t, false, "view", "20260102-15", "--search", "HELLO")
	if err != nil {
		t.Fatalf("history view error = %v", err)
	}

	if got != "$ echo hello\nhello\n" {
		t.Errorf("history view output = %q", got)
	}

	got, err = runHistory(t, false, "view", "20260102-150405-1a2b3c4d", "--raw", "--search", "hello")
	if err != nil {
		t.Fatalf("history view --raw error = %v", err)
	}

	if !strings.Contains(got, "\x1b[1mhello\x1b[0m") {
		t.Errorf("--raw should keep escapes, got %q", got)
	}
}

func TestHistoryView_UnknownSession(t *testing.T) {
	isolateConfig(t)
	t.Setenv("CMDQ_HISTORY_DIR", t.TempDir())

	_, err := runHistory(t, false, "view", "nope")

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) || !strings.Contains(cliErr.Message, "not found") {
		t.Fatalf("expected SessionNotFound, got %v", err)
	}
}

func TestHistory_Disabled(t *testing.T) {
	isolateConfig(t)
	t.Setenv("CMDQ_HISTORY_ENABLED", "false")

	_, err := runHistory(t, false, "list")

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) || cliErr.Code != clierrors.ExitConfig {
		t.Fatalf("expected HistoryDisabled, got %v", err)
	}
}

func TestHistoryList_JSON(t *testing.T) {
	isolateConfig(t)

	dir := t.TempDir()
	t.Setenv("CMDQ_HISTORY_DIR", dir)

	seedSession(t, dir, "20260101-120000-aaaaaaaa", time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), "a")
	seedSession(t, dir, "20260102-120000-bbbbbbbb", time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC), "b")

	got, err := runHistory(t, true, "list")
	if err != nil {
		t.Fatalf("history list error = %v", err)
	}

	first := strings.Index(got, "20260102-120000-bbbbbbbb")
	second := strings.Index(got, "20260101-120000-aaaaaaaa")

	if first < 0 || second < 0 || first > second {
		t.Errorf("sessions should be listed newest first:\n%s", got)
	}
}

func TestHistoryPrune(t *testing.T) {
	isolateConfig(t)

	dir := t.TempDir()
	t.Setenv("CMDQ_HISTORY_DIR", dir)

	seedSession(t, dir, "20200101-000000-00000000", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), "old")
	seedSession(t, dir, "20991231-000000-ffffffff", time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC), "future")

	got, err := runHistory(t, false, "prune", "--older-than", "24h")
	if err != nil {
		t.Fatalf("history prune error = %v", err)
	}

	if got != "✓ Removed 1 history session(s)\n" {
		t.Errorf("prune output = %q", got)
	}

	sessions, err := transcript.ListSessions(dir)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}

	if len(sessions) != 1 || sessions[0].SessionID != "20991231-000000-ffffffff" {
		t.Errorf("remaining sessions = %+v", sessions)
	}
}

func TestHistoryPrune_InvalidDuration(t *testing.T) {
	isolateConfig(t)
	t.Setenv("CMDQ_HISTORY_DIR", t.TempDir())

	_, err := runHistory(t, false, "prune", "--older-than", "soon")

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) || cliErr.Code != clierrors.ExitUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestHistoryPrune_DeclinedKeepsSessions(t *testing.T) {
	isolateConfig(t)

	dir := t.TempDir()
	t.Setenv("CMDQ_HISTORY_DIR", dir)

	seedSession(t, dir, "20200101-000000-00000000", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), "old")
	stubPrompter(t, "n\n")

	got, err := runHistory(t, false, "prune", "--older-than", "24h")
	if err != nil {
		t.Fatalf("history prune error = %v", err)
	}

	if !strings.Contains(got, "Prune canceled.") {
		t.Errorf("prune output = %q, want cancellation", got)
	}

	sessions, err := transcript.ListSessions(dir)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}

	if len(sessions) != 1 {
		t.Errorf("sessions after declined prune = %d, want 1", len(sessions))
	}
}

func TestHistoryPrune_ForceSkipsConfirmation(t *testing.T) {
	isolateConfig(t)

	dir := t.TempDir()
	t.Setenv("CMDQ_HISTORY_DIR", dir)

	seedSession(t, dir, "20200101-000000-00000000", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), "old")
	stubPrompter(t, "")

	got, err := runHistory(t, false, "prune", "--older-than", "24h", "-f")
	if err != nil {
		t.Fatalf("history prune error = %v", err)
	}

	if got != "✓ Removed 1 history session(s)\n" {
		t.Errorf("prune output = %q", got)
	}
}

func TestHistoryView_PicksSessionWithoutID(t *testing.T) {
	isolateConfig(t)

	dir := t.TempDir()
	t.Setenv("CMDQ_HISTORY_DIR", dir)

	seedSession(t, dir, "20260101-000000-aaaaaaaa", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "older line")
	seedSession(t, dir, "20260102-000000-bbbbbbbb", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "newer line")
	stubPrompter(t, "2\n")

	got, err := runHistory(t, false, "view")
	if err != nil {
		t.Fatalf("history view error = %v", err)
	}

	if !strings.HasSuffix(got, "older line\n") {
		t.Errorf("history view output = %q, want the second listed session", got)
	}
}

func TestHistoryView_NoIDWithoutTerminal(t *testing.T) {
	isolateConfig(t)
	t.Setenv("CMDQ_HISTORY_DIR", t.TempDir())

	_, err := runHistory(t, false, "view")

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) || cliErr.Code != clierrors.ExitUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}
