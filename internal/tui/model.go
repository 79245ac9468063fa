// Package tui is the interactive front end for `cmdq start`.
//
// The model shows a dashboard of the running command and the pending queue,
// a capped log of task output, and input fields for the command prefix and
// the next suffix. Runner callbacks arrive as runner.Events from a ChanSink
// and are pulled into the update loop one message at a time.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/musher-dev/cmdq/internal/queue"
	"github.com/musher-dev/cmdq/internal/runner"
)

// Enqueuer is the part of the runner the model drives.
type Enqueuer interface {
	Enqueue(prefix, suffix string) error
	Snapshot() runner.Dashboard
}

// Options configures the model.
type Options struct {
	Runner      Enqueuer
	Events      <-chan runner.Event
	Prefix      string
	MaxLogLines int
	Title       string
}

type eventMsg runner.Event

type eventsClosedMsg struct{}

type focus int

const (
	focusSuffix focus = iota
	focusPrefix
)

// Model is the bubbletea model for the interactive runner.
type Model struct {
	runner Enqueuer
	events <-chan runner.Event
	title  string

	log       *Log
	dashboard runner.Dashboard

	prefix  textinput.Model
	suffix  textinput.Model
	focus   focus
	logView viewport.Model
	spinner spinner.Model

	width, height int
	dashWidth     int
	quitting      bool
}

// New creates the model and writes the startup banner to its log.
func New(opts Options) *Model {
	prefix := textinput.New()
	prefix.Prompt = "Prefix  > "
	prefix.Placeholder = "command prefix"
	prefix.SetValue(opts.Prefix)

	suffix := textinput.New()
	suffix.Prompt = "Command > "
	suffix.Placeholder = "suffix to append, Enter to queue"
	suffix.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	title := opts.Title
	if title == "" {
		title = "cmdq"
	}

	m := &Model{
		runner:  opts.Runner,
		events:  opts.Events,
		title:   title,
		log:     NewLog(opts.MaxLogLines),
		prefix:  prefix,
		suffix:  suffix,
		logView: viewport.New(0, 0),
		spinner: sp,
		width:   80,
		height:  24,
	}

	m.log.Note("Application starting...", false)
	m.log.Note("Using command prefix: "+opts.Prefix, false)
	m.refreshDashboard()
	m.resize()

	return m
}

// Init starts the cursor blink, the spinner and the event pump.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.events))
}

// Quitting reports whether the user asked to exit.
func (m *Model) Quitting() bool {
	return m.quitting
}

// Log exposes the log buffer.
func (m *Model) Log() *Log {
	return m.log
}

// Prefix returns the prefix currently used for new tasks.
func (m *Model) Prefix() string {
	return strings.TrimSpace(m.prefix.Value())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()

		return m, nil

	case eventMsg:
		m.applyEvent(runner.Event(msg))
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateInputs(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "ctrl+p", "tab", "shift+tab":
		return m, m.toggleFocus()

	case "enter":
		if m.focus == focusPrefix {
			m.commitPrefix()
			return m, m.toggleFocus()
		}

		m.submit()

		return m, nil

	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.logView, cmd = m.logView.Update(msg)

		return m, cmd
	}

	return m.updateInputs(msg)
}

func (m *Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if m.focus == focusPrefix {
		m.prefix, cmd = m.prefix.Update(msg)
	} else {
		m.suffix, cmd = m.suffix.Update(msg)
	}

	return m, cmd
}

func (m *Model) toggleFocus() tea.Cmd {
	if m.focus == focusSuffix {
		m.focus = focusPrefix
		m.suffix.Blur()

		return m.prefix.Focus()
	}

	m.commitPrefix()
	m.focus = focusSuffix
	m.prefix.Blur()

	return m.suffix.Focus()
}

func (m *Model) commitPrefix() {
	p := strings.TrimSpace(m.prefix.Value())
	m.prefix.SetValue(p)
	m.renderLog()
}

// submit queues the trimmed suffix. An empty suffix is ignored.
func (m *Model) submit() {
	suffix := strings.TrimSpace(m.suffix.Value())
	if suffix == "" {
		return
	}

	err := m.runner.Enqueue(m.Prefix(), suffix)

	switch {
	case err == nil:
		m.log.Note("Added to queue: "+suffix, false)
		m.suffix.SetValue("")
	case errors.Is(err, queue.ErrQueueFull):
		m.log.Note("Error: Command queue is full.", true)
	case errors.Is(err, runner.ErrEmptyPrefix):
		m.log.Note("Error: Command prefix is empty.", true)
	default:
		m.log.Note("Error: "+err.Error(), true)
	}

	m.refreshDashboard()
	m.renderLog()
}

func (m *Model) applyEvent(ev runner.Event) {
	switch ev.Kind {
	case runner.EventLine:
		m.log.Add(ev.Text, ev.Stderr, ev.Progress)
		m.renderLog()
	case runner.EventDashboard, runner.EventTaskFinished:
	}

	m.refreshDashboard()
}

func (m *Model) refreshDashboard() {
	if m.runner != nil {
		m.dashboard = m.runner.Snapshot()
	}
}

func (m *Model) resize() {
	bodyHeight := max(m.height-4, 3)

	m.dashWidth = min(max(m.width/3, 24), 48)
	if m.dashWidth > m.width-10 {
		m.dashWidth = max(m.width/2, 1)
	}

	frameW, frameH := panelStyle.GetFrameSize()

	m.logView.Width = max(m.width-m.dashWidth-frameW, 1)
	m.logView.Height = max(bodyHeight-frameH, 1)

	inputWidth := max(m.width-len(m.suffix.Prompt)-1, 1)
	m.prefix.Width = inputWidth
	m.suffix.Width = inputWidth

	m.renderLog()
}

func (m *Model) renderLog() {
	entries := m.log.Entries()
	lines := make([]string, 0, len(entries))

	for _, e := range entries {
		lines = append(lines, styleEntry(e, m.logView.Width))
	}

	atBottom := m.logView.AtBottom() || m.logView.TotalLineCount() == 0

	m.logView.SetContent(strings.Join(lines, "\n"))

	if atBottom {
		m.logView.GotoBottom()
	}
}

func styleEntry(e Entry, width int) string {
	text := e.Text
	if width > 0 && runewidth.StringWidth(text) > width {
		text = runewidth.Truncate(text, width, "…")
	}

	switch {
	case strings.HasPrefix(e.Text, "$ "):
		return commandStyle.Render(text)
	case strings.HasPrefix(e.Text, "Added to queue: "):
		return noteStyle.Render(text)
	case e.Stderr:
		return errorStyle.Render(text)
	case strings.HasPrefix(e.Text, "Process finished."):
		return mutedStyle.Render(text)
	default:
		return text
	}
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	frameW, frameH := panelStyle.GetFrameSize()
	bodyHeight := max(m.height-4, 3)

	dash := panelStyle.
		Width(max(m.dashWidth-frameW, 1)).
		Height(max(bodyHeight-frameH, 1)).
		Render(RenderDashboard(m.dashboard, m.dashWidth-frameW, bodyHeight-frameH))

	logs := panelStyle.
		Width(m.logView.Width).
		Height(m.logView.Height).
		Render(m.logView.View())

	body := lipgloss.JoinHorizontal(lipgloss.Top, dash, logs)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		body,
		m.prefix.View(),
		m.suffix.View(),
		mutedStyle.Render("enter: queue · ctrl+p: edit prefix · pgup/pgdn: scroll · esc: quit"),
	)
}

func (m *Model) header() string {
	status := mutedStyle.Render("idle")
	if !m.dashboard.Idle() {
		status = m.spinner.View() + " " + m.dashboard.Phase.String()
	}

	counts := mutedStyle.Render(fmt.Sprintf("done %d · failed %d · %d/%d queued",
		m.dashboard.Completed, m.dashboard.Failed, len(m.dashboard.Pending), m.dashboard.Capacity))

	return titleStyle.Render(m.title) + "  " + status + "  " + counts
}

func waitForEvent(ch <-chan runner.Event) tea.Cmd {
	if ch == nil {
		return nil
	}

	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}

		return eventMsg(ev)
	}
}
