// Package output writes cmdq's own messages (as opposed to task output) in
// human, quiet, or JSON form.
//
// It covers:
//   - stdout/stderr injection for tests
//   - JSON mode for scripting
//   - quiet mode for CI
//   - colored status lines with TTY detection
//   - spinners for slow operations
//   - aligned tables
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/musher-dev/cmdq/internal/terminal"
)

type contextKey struct{}

// Writer handles CLI output with multiple modes.
type Writer struct {
	Out     io.Writer
	Err     io.Writer
	JSON    bool
	Quiet   bool
	NoInput bool

	terminal *terminal.Info

	successColor *color.Color
	errorColor   *color.Color
	warningColor *color.Color
	infoColor    *color.Color
	mutedColor   *color.Color
	headerColor  *color.Color
}

// Default returns a Writer for the process stdout/stderr.
func Default() *Writer {
	return NewWriter(os.Stdout, os.Stderr, terminal.Detect())
}

// NewWriter creates a Writer with custom writers and terminal info.
func NewWriter(out, errOut io.Writer, term *terminal.Info) *Writer {
	if term == nil {
		term = &terminal.Info{}
	}

	w := &Writer{
		Out:          out,
		Err:          errOut,
		terminal:     term,
		successColor: color.New(color.FgGreen),
		errorColor:   color.New(color.FgRed),
		warningColor: color.New(color.FgYellow),
		infoColor:    color.New(color.FgCyan),
		mutedColor:   color.New(color.FgHiBlack),
		headerColor:  color.New(color.Bold),
	}

	if !term.ColorEnabled() {
		color.NoColor = true
	}

	return w
}

// WithContext stores the Writer in the context.
func (w *Writer) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, w)
}

// FromContext retrieves the Writer from ctx, or returns Default().
func FromContext(ctx context.Context) *Writer {
	if w, ok := ctx.Value(contextKey{}).(*Writer); ok {
		return w
	}

	return Default()
}

// Terminal returns the terminal info.
func (w *Writer) Terminal() *terminal.Info {
	return w.terminal
}

// SetNoColor disables colored output.
func (w *Writer) SetNoColor(disabled bool) {
	w.terminal.ForceFlag = disabled
	if disabled {
		color.NoColor = true
	}
}

// Print writes to stdout unless quiet.
func (w *Writer) Print(format string, args ...any) {
	if !w.Quiet {
		fmt.Fprintf(w.Out, format, args...)
	}
}

// Println writes a line to stdout unless quiet.
func (w *Writer) Println(args ...any) {
	if !w.Quiet {
		fmt.Fprintln(w.Out, args...)
	}
}

// PrintJSON writes v as indented JSON. JSON output ignores quiet mode.
func (w *Writer) PrintJSON(v any) error {
	enc := json.NewEncoder(w.Out)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}

	return nil
}

// Error writes to stderr.
func (w *Writer) Error(format string, args ...any) {
	fmt.Fprintf(w.Err, format, args...)
}

// Errorln writes a line to stderr.
func (w *Writer) Errorln(args ...any) {
	fmt.Fprintln(w.Err, args...)
}

// Write implements io.Writer on stdout, discarding in quiet mode.
func (w *Writer) Write(p []byte) (int, error) {
	if w.Quiet {
		return len(p), nil
	}

	return w.Out.Write(p)
}

func (w *Writer) writeStatus(dst io.Writer, tone *color.Color, prefix, message string) {
	if w.terminal.ColorEnabled() {
		tone.Fprint(dst, prefix+" ")
		fmt.Fprintln(dst, message)

		return
	}

	fmt.Fprintln(dst, prefix+" "+message)
}

// Success writes a message with a check mark.
func (w *Writer) Success(format string, args ...any) {
	if !w.Quiet {
		w.writeStatus(w.Out, w.successColor, CheckMark, fmt.Sprintf(format, args...))
	}
}

// Failure writes a message with an X mark to stderr. Never silenced.
func (w *Writer) Failure(format string, args ...any) {
	w.writeStatus(w.Err, w.errorColor, XMark, fmt.Sprintf(format, args...))
}

// Warning writes a warning message.
func (w *Writer) Warning(format string, args ...any) {
	if !w.Quiet {
		w.writeStatus(w.Out, w.warningColor, WarningMark, fmt.Sprintf(format, args...))
	}
}

// Info writes an informational message.
func (w *Writer) Info(format string, args ...any) {
	if !w.Quiet {
		w.writeStatus(w.Out, w.infoColor, InfoMark, fmt.Sprintf(format, args...))
	}
}

// Muted writes de-emphasized text.
func (w *Writer) Muted(format string, args ...any) {
	if w.Quiet {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if w.terminal.ColorEnabled() {
		w.mutedColor.Fprintln(w.Out, msg)
		return
	}

	fmt.Fprintln(w.Out, msg)
}

// Table writes rows aligned in columns under a header row. Columns are
// separated by two spaces and the last column is not padded.
func (w *Writer) Table(header []string, rows [][]string) {
	if w.Quiet {
		return
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], runewidth.StringWidth(cell))
			}
		}
	}

	line := func(cells []string, tone *color.Color) string {
		var b strings.Builder

		for i, cell := range cells {
			if i < len(cells)-1 && i < len(widths) {
				cell = runewidth.FillRight(cell, widths[i]+2)
			}

			if tone != nil {
				cell = tone.Sprint(cell)
			}

			b.WriteString(cell)
		}

		return b.String()
	}

	var headTone *color.Color
	if w.terminal.ColorEnabled() {
		headTone = w.headerColor
	}

	fmt.Fprintln(w.Out, line(header, headTone))

	for _, row := range rows {
		fmt.Fprintln(w.Out, line(row, nil))
	}
}

// Status symbols.
const (
	CheckMark   = "✓"
	XMark       = "✗"
	WarningMark = "⚠"
	InfoMark    = "ℹ"
)

// Spinner creates a spinner for a slow operation. Without a TTY (or in quiet
// mode) it degrades to plain "message... done" text.
func (w *Writer) Spinner(message string) *Spinner {
	if w.Quiet || !w.terminal.SpinnersEnabled() {
		return &Spinner{disabled: true, message: message, writer: w}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Writer = w.Out
	s.Suffix = " " + message

	return &Spinner{spinner: s, message: message, writer: w}
}

// Spinner wraps briandowns/spinner with a plain-text fallback.
type Spinner struct {
	spinner  *spinner.Spinner
	message  string
	writer   *Writer
	disabled bool
}

// Start begins the animation.
func (s *Spinner) Start() {
	if s.disabled {
		s.writer.Print("%s... ", s.message)
		return
	}

	s.spinner.Start()
}

// Stop ends the animation without a message.
func (s *Spinner) Stop() {
	if !s.disabled {
		s.spinner.Stop()
	}
}

// StopWithSuccess stops and reports success.
func (s *Spinner) StopWithSuccess(message string) {
	s.stop("done", message, s.writer.Success)
}

// StopWithFailure stops and reports failure.
func (s *Spinner) StopWithFailure(message string) {
	s.stop("failed", message, s.writer.Failure)
}

// StopWithWarning stops and reports a warning.
func (s *Spinner) StopWithWarning(message string) {
	s.stop("warning", message, s.writer.Warning)
}

func (s *Spinner) stop(plain, message string, report func(string, ...any)) {
	if s.disabled {
		s.writer.Println(plain)
	} else {
		s.spinner.Stop()
	}

	if message != "" {
		report("%s", message)
	}
}

// UpdateMessage changes the spinner message.
func (s *Spinner) UpdateMessage(message string) {
	s.message = message
	if !s.disabled {
		s.spinner.Suffix = " " + message
	}
}
