// Package errors provides structured CLI error types for cmdq.
//
// CLIError wraps errors with user-facing messages, hints, and exit codes
// to provide consistent, actionable error output across all commands.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes for CLI errors.
const (
	ExitSuccess   = 0  // Successful execution
	ExitGeneral   = 1  // General error
	ExitNetwork   = 3  // Network error (update checks)
	ExitConfig    = 4  // Configuration error
	ExitExecution = 6  // A queued task failed
	ExitUsage     = 64 // Command line usage error (BSD convention)
)

// CLIError represents a user-facing CLI error with actionable guidance.
type CLIError struct {
	// Message is the primary error message shown to the user.
	Message string

	// Hint provides actionable guidance on how to fix the error.
	Hint string

	// Cause is the underlying error, if any.
	Cause error

	// Code is the exit code for the CLI.
	Code int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a new CLIError with the given message and exit code.
func New(code int, message string) *CLIError {
	return &CLIError{
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an existing error with a CLIError.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// WithHint adds a hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is a convenience function for errors.As with CLIError.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// --- Common error constructors ---

// CannotPrompt returns an error when interactive prompts are unavailable.
func CannotPrompt(command string) *CLIError {
	return &CLIError{
		Message: "Cannot start the interactive UI without a terminal",
		Hint:    fmt.Sprintf("Use '%s' for non-interactive runs", command),
		Code:    ExitUsage,
	}
}

// ConfigFailed returns an error for configuration read or write failures.
func ConfigFailed(operation string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s", operation),
		Hint:    "Check file permissions for your cmdq config directory or run 'cmdq doctor'",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// ConfigValueInvalid returns an error for a config value that cannot be used.
func ConfigValueInvalid(key string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Invalid value for %s", key),
		Hint:    fmt.Sprintf("Run 'cmdq config get %s' and correct it with 'cmdq config set'", key),
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// QueueFull returns an error when a batch does not fit in the queue.
func QueueFull(capacity int) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Command queue is full (capacity %d)", capacity),
		Hint:    "Raise queue.capacity with 'cmdq config set queue.capacity <n>' or split the batch",
		Code:    ExitUsage,
	}
}

// NoTasks returns an error when a headless run has nothing to do.
func NoTasks() *CLIError {
	return &CLIError{
		Message: "No tasks to run",
		Hint:    "Pass suffixes as arguments, use --file, or pipe suffixes with --file -",
		Code:    ExitUsage,
	}
}

// TaskFileInvalid returns an error for a task file that cannot be loaded.
func TaskFileInvalid(path string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Cannot load task file %s", path),
		Hint:    "Use .yaml, .toml, or a plain text file with one suffix per line",
		Cause:   cause,
		Code:    ExitUsage,
	}
}

// ShellNotFound returns an error when the configured shell is not executable.
func ShellNotFound(shell string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Shell not found: %s", shell),
		Hint:    "Install it, or set runner.shell to another shell (empty runs commands directly)",
		Code:    ExitConfig,
	}
}

// TasksFailed returns an error when some tasks exited non-zero or never started.
func TasksFailed(failed, total int) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("%d of %d tasks failed", failed, total),
		Hint:    "See the output above, or 'cmdq history view' for the recorded session",
		Code:    ExitExecution,
	}
}

// SessionNotFound returns an error for an unknown history session.
func SessionNotFound(id string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("History session not found: %s", id),
		Hint:    "Run 'cmdq history list' to see recorded sessions",
		Code:    ExitGeneral,
	}
}

// HistoryDisabled returns an error when history is turned off.
func HistoryDisabled() *CLIError {
	return &CLIError{
		Message: "History is disabled",
		Hint:    "Enable it with 'cmdq config set history.enabled true'",
		Code:    ExitConfig,
	}
}

// UpdateFailed returns an error for a failed update check or install.
func UpdateFailed(operation string, cause error) *CLIError {
	hint := "Check your network connection and try again"
	if cause != nil && containsAny(cause.Error(), "permission denied", "access is denied") {
		hint = "Re-run with sufficient permissions to replace the cmdq binary"
	}

	return &CLIError{
		Message: fmt.Sprintf("Failed to %s", operation),
		Hint:    hint,
		Cause:   cause,
		Code:    ExitNetwork,
	}
}

// containsAny checks if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}

	return false
}
