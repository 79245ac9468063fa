package tui

import "github.com/charmbracelet/x/ansi"

// DefaultMaxLogLines caps the log view when no limit is configured.
const DefaultMaxLogLines = 200

// Entry is one displayed log line.
type Entry struct {
	Text     string
	Stderr   bool
	Progress bool
}

// Log is the capped line history behind the log view.
//
// A progress line occupies a slot for its stream: the next line from the
// same stream, progress or not, overwrites it in place, the way a terminal
// handles a carriage return. Each stream has its own slot.
type Log struct {
	max     int
	entries []Entry
	slot    [2]int
}

// NewLog creates a log holding at most max lines.
func NewLog(max int) *Log {
	if max <= 0 {
		max = DefaultMaxLogLines
	}

	return &Log{max: max, slot: [2]int{-1, -1}}
}

// Add appends a line or overwrites the stream's pending progress line.
// Escape sequences are stripped so widths stay predictable.
func (l *Log) Add(text string, stderr, progress bool) {
	e := Entry{Text: ansi.Strip(text), Stderr: stderr, Progress: progress}
	s := streamSlot(stderr)

	i := l.slot[s]
	if i >= 0 {
		l.entries[i] = e
	} else {
		l.entries = append(l.entries, e)
		l.trim()
		i = len(l.entries) - 1
	}

	if progress {
		l.slot[s] = i
	} else {
		l.slot[s] = -1
	}
}

// Note appends a UI status line. It never replaces a progress slot.
func (l *Log) Note(text string, isError bool) {
	l.entries = append(l.entries, Entry{Text: text, Stderr: isError})
	l.trim()
}

// Entries returns the lines oldest first. The slice must not be modified.
func (l *Log) Entries() []Entry {
	return l.entries
}

// Len returns the number of lines held.
func (l *Log) Len() int {
	return len(l.entries)
}

func (l *Log) trim() {
	drop := len(l.entries) - l.max
	if drop <= 0 {
		return
	}

	l.entries = append(l.entries[:0], l.entries[drop:]...)

	for s := range l.slot {
		if l.slot[s] >= 0 {
			l.slot[s] -= drop
			if l.slot[s] < 0 {
				l.slot[s] = -1
			}
		}
	}
}

func streamSlot(stderr bool) int {
	if stderr {
		return 1
	}

	return 0
}
