// Package terminal detects what the attached terminal can do.
//
// It reports:
//   - TTY state of stdout and stdin
//   - NO_COLOR and TERM=dumb
//   - terminal dimensions
package terminal

import (
	"os"

	"golang.org/x/term"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
)

// Info holds terminal capability information.
type Info struct {
	IsTTY      bool
	StdinIsTTY bool
	NoColor    bool
	Width      int
	Height     int
	ForceFlag  bool // set by --no-color
}

// Detect returns terminal information for the current process.
func Detect() *Info {
	stdoutFD := int(os.Stdout.Fd()) //nolint:gosec // fd fits in int
	isTTY := term.IsTerminal(stdoutFD)

	width, height := defaultWidth, defaultHeight

	if isTTY {
		if w, h, err := term.GetSize(stdoutFD); err == nil && w > 0 && h > 0 {
			width, height = w, h
		}
	}

	_, noColor := os.LookupEnv("NO_COLOR")
	if os.Getenv("TERM") == "dumb" {
		noColor = true
	}

	return &Info{
		IsTTY:      isTTY,
		StdinIsTTY: term.IsTerminal(int(os.Stdin.Fd())), //nolint:gosec // fd fits in int
		NoColor:    noColor,
		Width:      width,
		Height:     height,
	}
}

// ColorEnabled returns true if colored output should be used.
func (t *Info) ColorEnabled() bool {
	return !t.ForceFlag && t.IsTTY && !t.NoColor
}

// InteractiveEnabled reports whether a full-screen UI can run: both ends of
// the terminal must be attached.
func (t *Info) InteractiveEnabled() bool {
	return t.IsTTY && t.StdinIsTTY
}

// SpinnersEnabled returns true if spinners should be drawn.
func (t *Info) SpinnersEnabled() bool {
	return t.IsTTY && !t.NoColor && !t.ForceFlag
}
