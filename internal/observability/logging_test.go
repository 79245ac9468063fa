package observability

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_DefaultFileFallbackForInteractiveAuto(t *testing.T) {
	stateRoot := t.TempDir()
	t.Setenv("XDG_STATE_HOME", stateRoot)

	cfg := &Config{
		Level:          "info",
		Format:         "json",
		StderrMode:     "auto",
		InteractiveTTY: true,
		SessionID:      "session-test",
		CommandPath:    "cmdq start",
		Version:        "test",
		Commit:         "abc123",
	}

	logger, cleanup, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("hello from test")

	if closeErr := cleanup(); closeErr != nil {
		t.Fatalf("cleanup() error = %v", closeErr)
	}

	logPath := filepath.Join(stateRoot, "cmdq", "logs", "cmdq.log")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile(%q) error = %v", logPath, err)
	}

	if !strings.Contains(string(data), `"command.path":"cmdq start"`) {
		t.Fatalf("log file %q missing base attributes: %s", logPath, data)
	}
}

func TestNewLogger_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "level", cfg: Config{Level: "loud", StderrMode: "on"}},
		{name: "format", cfg: Config{Format: "xml", StderrMode: "on"}},
		{name: "stderr mode", cfg: Config{StderrMode: "sometimes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := NewLogger(&tt.cfg); err == nil {
				t.Error("NewLogger() error = nil, want error")
			}
		})
	}
}

func TestShouldEnableStderr(t *testing.T) {
	tests := []struct {
		mode string
		tty  bool
		want bool
	}{
		{"auto", true, false},
		{"", false, true},
		{"on", true, true},
		{"off", false, false},
	}

	for _, tt := range tests {
		got, err := shouldEnableStderr(tt.mode, tt.tty)
		if err != nil {
			t.Fatalf("shouldEnableStderr(%q) error = %v", tt.mode, err)
		}

		if got != tt.want {
			t.Errorf("shouldEnableStderr(%q, %v) = %v, want %v", tt.mode, tt.tty, got, tt.want)
		}
	}
}

func TestRedactAttr(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{ReplaceAttr: redactAttr}))
	logger.Info("x", slog.String("cookie_file", "/home/me/cookies.txt"), slog.String("task.command", "echo hi"))

	out := buf.String()
	if strings.Contains(out, "cookies.txt") || !strings.Contains(out, "cookie_file="+redactedValue) {
		t.Errorf("cookie not redacted: %s", out)
	}

	if !strings.Contains(out, `task.command="echo hi"`) {
		t.Errorf("ordinary attribute lost: %s", out)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("FromContext() without logger should return slog.Default()")
	}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if FromContext(WithLogger(context.Background(), logger)) != logger {
		t.Error("FromContext() did not return the stored logger")
	}
}

func TestRotateLogFile_RotatesAndKeepsBoundedBackups(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "cmdq.log")

	for i, content := range []string{"one", "two", "three"} {
		if err := os.WriteFile(logPath+"."+string(rune('1'+i)), []byte(content), 0o600); err != nil {
			t.Fatalf("write backup: %v", err)
		}
	}

	if err := os.WriteFile(logPath, []byte("1234567890"), 0o600); err != nil {
		t.Fatalf("write current: %v", err)
	}

	if err := rotateLogFile(logPath, 5, 3); err != nil {
		t.Fatalf("rotateLogFile() error = %v", err)
	}

	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Fatalf("expected current log to be rotated away, stat err = %v", err)
	}

	want := map[string]string{".1": "1234567890", ".2": "one", ".3": "two"}
	for suffix, content := range want {
		data, err := os.ReadFile(logPath + suffix)
		if err != nil {
			t.Fatalf("read %s: %v", suffix, err)
		}

		if string(data) != content {
			t.Errorf("%s = %q, want %q", suffix, data, content)
		}
	}
}

func TestRotateLogFile_SmallOrMissingFileUntouched(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "cmdq.log")

	if err := rotateLogFile(logPath, 5, 3); err != nil {
		t.Fatalf("missing file: %v", err)
	}

	if err := os.WriteFile(logPath, []byte("abc"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := rotateLogFile(logPath, 5, 3); err != nil {
		t.Fatalf("small file: %v", err)
	}

	if _, err := os.Stat(logPath + ".1"); !os.IsNotExist(err) {
		t.Error("small file was rotated")
	}
}
