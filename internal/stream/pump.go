package stream

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultReadSize is the read buffer size used by a Pump.
const DefaultReadSize = 4096

// Pump drains one output stream into lines.
type Pump struct {
	// Source is the read end of the child's stdout or stderr.
	Source io.Reader

	// Stream tags every emitted line.
	Stream Stream

	// Assembler holds this stream's residual. Nil means a default UTF-8 assembler.
	Assembler *Assembler

	// ReadSize is the per-read buffer size (default 4096).
	ReadSize int

	// Emit receives lines in stream order. Diagnostics are emitted on Stderr.
	Emit func(Line)
}

// Run reads until end of stream, emitting lines as their terminators arrive,
// then flushes the residual. A read end closed from our side returns nil.
// Any other read failure is emitted as a diagnostic line and returned.
func (p *Pump) Run() error {
	asm := p.Assembler
	if asm == nil {
		asm = NewAssembler(DefaultMaxResidual, nil)
	}

	size := p.ReadSize
	if size <= 0 {
		size = DefaultReadSize
	}

	buf := make([]byte, size)

	var readErr error

	for {
		n, err := p.Source.Read(buf)
		if n > 0 {
			chunks, feedErr := asm.Feed(buf[:n])
			p.emitAll(chunks)

			if feedErr != nil {
				p.emit(Line{Text: fmt.Sprintf("[%s %v]", p.Stream, feedErr), Stream: Stderr})
			}
		}

		if err != nil {
			if !isEndOfStream(err) {
				readErr = err
			}

			break
		}
	}

	p.emitAll(asm.Flush())

	if readErr != nil {
		p.emit(Line{Text: fmt.Sprintf("[%s read error: %v]", p.Stream, readErr), Stream: Stderr})
		return fmt.Errorf("read %s: %w", p.Stream, readErr)
	}

	return nil
}

func (p *Pump) emitAll(chunks []Chunk) {
	for _, c := range chunks {
		p.emit(Line{Text: c.Text, Stream: p.Stream, Progress: c.Progress})
	}
}

func (p *Pump) emit(l Line) {
	if p.Emit != nil {
		p.Emit(l)
	}
}

// isEndOfStream treats EOF, a locally closed file, and a pty hang-up as the
// normal end of a stream.
func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || isHangup(err)
}
