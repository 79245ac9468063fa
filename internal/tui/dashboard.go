package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"github.com/musher-dev/cmdq/internal/runner"
)

const (
	emptyQueue     = "[Empty]"
	truncatedQueue = "... (queue list truncated)"
)

// RenderDashboard formats the current command and the numbered pending list.
// Every row is cut to width display cells; the list is cut to fit height rows
// with a marker line. Zero width or height means unlimited.
func RenderDashboard(d runner.Dashboard, width, height int) string {
	running := d.Running
	if running == "" {
		running = runner.IdleCommand
	}

	lines := []string{
		"Current CMD:",
		running,
		"",
		fmt.Sprintf("Queue (%d pending):", len(d.Pending)),
	}

	switch {
	case len(d.Pending) == 0:
		lines = append(lines, emptyQueue)
	default:
		n := len(d.Pending)
		truncated := false

		if room := height - len(lines); height > 0 && n > room {
			n = max(room-1, 0)
			truncated = true
		}

		for i, t := range d.Pending[:n] {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, t.CommandLine()))
		}

		if truncated {
			lines = append(lines, truncatedQueue)
		}
	}

	for i, l := range lines {
		lines[i] = fitWidth(l, width)
	}

	return strings.Join(lines, "\n")
}

// fitWidth strips escapes and cuts s to width display cells.
func fitWidth(s string, width int) string {
	s = ansi.Strip(s)
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}

	return runewidth.Truncate(s, width, "…")
}
