package stream

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// DefaultMaxResidual bounds the bytes an Assembler keeps for an unterminated line.
const DefaultMaxResidual = 8192

// Assembler reassembles byte chunks into lines.
//
// "\n" and "\r\n" end a normal line. A bare "\r" followed by anything other
// than "\n" ends a progress line. A "\r" that is the last buffered byte is held
// until the next chunk shows whether it starts a CRLF.
type Assembler struct {
	max      int
	residual []byte
	dec      *Decoder
}

// NewAssembler creates an assembler. A nil decoder means UTF-8.
func NewAssembler(maxResidual int, dec *Decoder) *Assembler {
	if maxResidual <= 0 {
		maxResidual = DefaultMaxResidual
	}

	return &Assembler{
		max:      maxResidual,
		residual: make([]byte, 0, 512),
		dec:      dec,
	}
}

// Feed consumes p and returns every line it completes. When the unterminated
// remainder exceeds the bound, its oldest bytes are dropped and the returned
// error wraps ErrOverflow; the chunks are still valid.
func (a *Assembler) Feed(p []byte) ([]Chunk, error) {
	a.residual = append(a.residual, p...)
	chunks := a.scan()

	if len(a.residual) <= a.max {
		return chunks, nil
	}

	dropped := len(a.residual) - a.max
	keep := a.residual[dropped:]

	// Don't start the kept tail in the middle of a UTF-8 sequence.
	for i := 0; i < utf8.UTFMax-1 && len(keep) > 0 && !utf8.RuneStart(keep[0]); i++ {
		keep = keep[1:]
		dropped++
	}

	a.residual = append(a.residual[:0], keep...)

	return chunks, fmt.Errorf("%w: discarded %d bytes of an unterminated line", ErrOverflow, dropped)
}

// Flush returns the unterminated remainder as a final normal line, if any.
func (a *Assembler) Flush() []Chunk {
	rest := bytes.TrimSuffix(a.residual, []byte{'\r'})
	a.residual = a.residual[:0]

	if len(rest) == 0 {
		return nil
	}

	return []Chunk{{Text: a.dec.String(rest)}}
}

// Pending returns the number of buffered, unterminated bytes.
func (a *Assembler) Pending() int {
	return len(a.residual)
}

func (a *Assembler) scan() []Chunk {
	var chunks []Chunk

	buf := a.residual
	start := 0

	for {
		rel := bytes.IndexAny(buf[start:], "\r\n")
		if rel < 0 {
			break
		}

		end := start + rel
		text := buf[start:end]

		if buf[end] == '\n' {
			chunks = append(chunks, Chunk{Text: a.dec.String(text)})
			start = end + 1

			continue
		}

		// Carriage return: need the next byte to classify it.
		if end+1 == len(buf) {
			break
		}

		if buf[end+1] == '\n' {
			chunks = append(chunks, Chunk{Text: a.dec.String(text)})
			start = end + 2

			continue
		}

		chunks = append(chunks, Chunk{Text: a.dec.String(text), Progress: true})
		start = end + 1
	}

	a.residual = append(a.residual[:0], buf[start:]...)

	return chunks
}
