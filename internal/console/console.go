// Package console renders runner output on a plain terminal or pipe.
//
// It backs the headless `cmdq run` command: stdout lines go to the output
// writer's Out, stderr lines to Err. On a TTY a progress line is redrawn in
// place until the same stream prints its next line; elsewhere progress lines
// are printed like any other line. JSON mode emits one event object per line.
package console

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/fatih/color"

	"github.com/musher-dev/cmdq/internal/output"
	"github.com/musher-dev/cmdq/internal/runner"
)

const clearLine = "\r\x1b[2K"

// Event is the JSON form of one sink callback.
type Event struct {
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	Stream   string    `json:"stream,omitempty"`
	Text     string    `json:"text,omitempty"`
	Progress bool      `json:"progress,omitempty"`
	Running  string    `json:"running,omitempty"`
	Pending  *int      `json:"pending,omitempty"`
}

// Options configures a Sink.
type Options struct {
	// Snapshot, when set, is read on dashboard changes in JSON mode.
	Snapshot func() runner.Dashboard

	// Now overrides the event clock in tests.
	Now func() time.Time
}

// Sink writes runner events through an output.Writer.
type Sink struct {
	mu  sync.Mutex
	out *output.Writer

	tty   bool
	width int

	snapshot func() runner.Dashboard
	now      func() time.Time
	enc      *json.Encoder

	// Stream of the progress line currently drawn without a newline.
	progressActive bool
	progressStderr bool

	commandColor *color.Color
	errorColor   *color.Color
	mutedColor   *color.Color
}

// New creates a Sink.
func New(w *output.Writer, opts Options) *Sink {
	s := &Sink{
		out:          w,
		snapshot:     opts.Snapshot,
		now:          opts.Now,
		commandColor: color.New(color.FgCyan, color.Bold),
		errorColor:   color.New(color.FgRed),
		mutedColor:   color.New(color.FgHiBlack),
	}

	if s.now == nil {
		s.now = time.Now
	}

	if term := w.Terminal(); term != nil {
		s.tty = term.IsTTY
		s.width = term.Width
	}

	if w.JSON {
		s.enc = json.NewEncoder(w.Out)
	}

	return s
}

// OnLine prints one line.
func (s *Sink) OnLine(text string, isErrorStream, isProgress bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc != nil {
		s.emit(Event{Type: "line", Stream: streamName(isErrorStream), Text: text, Progress: isProgress})
		return
	}

	dst := s.writer(isErrorStream)
	if dst == nil {
		return
	}

	if !s.tty {
		fmt.Fprintln(dst, s.colorize(text, isErrorStream))
		return
	}

	if s.progressActive {
		if s.progressStderr == isErrorStream {
			fmt.Fprint(dst, clearLine)
		} else {
			fmt.Fprintln(s.writer(s.progressStderr))
		}

		s.progressActive = false
	}

	if isProgress {
		fmt.Fprint(dst, s.fit(text))

		s.progressActive = true
		s.progressStderr = isErrorStream

		return
	}

	fmt.Fprintln(dst, s.colorize(text, isErrorStream))
}

// OnDashboardChanged reports queue changes in JSON mode only.
func (s *Sink) OnDashboardChanged() {
	if s.enc == nil || s.snapshot == nil {
		return
	}

	d := s.snapshot()
	pending := len(d.Pending)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.emit(Event{Type: "dashboard", Running: d.Running, Pending: &pending})
}

// OnTaskFinished ends any progress line left on screen.
func (s *Sink) OnTaskFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc != nil {
		s.emit(Event{Type: "task_finished"})
		return
	}

	s.endProgress()
}

// Close ends any progress line left on screen.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endProgress()
}

func (s *Sink) endProgress() {
	if !s.progressActive {
		return
	}

	if w := s.writer(s.progressStderr); w != nil {
		fmt.Fprintln(w)
	}

	s.progressActive = false
}

func (s *Sink) emit(ev Event) {
	ev.Time = s.now().UTC()
	_ = s.enc.Encode(ev)
}

// writer picks the destination for a stream. Quiet mode drops stdout.
func (s *Sink) writer(isErrorStream bool) io.Writer {
	if isErrorStream {
		return s.out.Err
	}

	if s.out.Quiet {
		return nil
	}

	return s.out.Out
}

// fit keeps a redrawn line on one terminal row so \r can return to its start.
func (s *Sink) fit(text string) string {
	if s.width <= 1 {
		return text
	}

	return ansi.Truncate(text, s.width-1, "")
}

func (s *Sink) colorize(text string, isErrorStream bool) string {
	switch {
	case strings.HasPrefix(text, "$ "):
		return s.commandColor.Sprint(text)
	case strings.HasPrefix(text, "Process finished."):
		return s.mutedColor.Sprint(text)
	case isErrorStream && strings.HasPrefix(text, "Error: "):
		return s.errorColor.Sprint(text)
	default:
		return text
	}
}

func streamName(isErrorStream bool) string {
	if isErrorStream {
		return "stderr"
	}

	return "stdout"
}

var _ runner.Sink = (*Sink)(nil)
