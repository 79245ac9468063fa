// Package stream turns raw subprocess output into display lines.
//
// An Assembler reassembles arbitrary read chunks into lines and tells normal
// newline-terminated lines apart from carriage-return progress updates. A
// Pump drives one Assembler from one output stream.
package stream

import "errors"

// ErrOverflow reports that an unterminated line outgrew the residual bound and
// its oldest bytes were discarded.
var ErrOverflow = errors.New("line buffer overflow")

// Stream identifies which subprocess output a line came from.
type Stream int

const (
	// Stdout is the child's standard output.
	Stdout Stream = iota
	// Stderr is the child's standard error.
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}

	return "stdout"
}

// Chunk is one decoded line. Progress lines end in a bare carriage return and
// are meant to be overwritten by whatever the stream prints next.
type Chunk struct {
	Text     string
	Progress bool
}

// Line is a Chunk tagged with its source stream.
type Line struct {
	Text     string
	Stream   Stream
	Progress bool
}
