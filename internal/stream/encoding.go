package stream

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// DefaultEncoding is used when no output encoding is configured.
const DefaultEncoding = "utf-8"

// Decoder converts line bytes from one fixed encoding into UTF-8 text.
// A Decoder is not safe for concurrent use; give each Pump its own.
type Decoder struct {
	name string
	dec  *encoding.Decoder
}

// NewDecoder resolves an encoding by its WHATWG or IANA name.
func NewDecoder(name string) (*Decoder, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return &Decoder{name: DefaultEncoding}, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil || enc == nil {
		enc, err = ianaindex.IANA.Encoding(name)
	}

	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported output encoding %q", name)
	}

	if !asciiCompatible(enc) {
		return nil, fmt.Errorf("unsupported output encoding %q: line terminators are not single ASCII bytes", name)
	}

	return &Decoder{name: name, dec: enc.NewDecoder()}, nil
}

// asciiCompatible reports whether enc writes CR and LF as the bytes 0x0D and
// 0x0A and reads them back unchanged. Lines are split on raw bytes before
// decoding, so UTF-16 and the WHATWG replacement encoding are refused.
func asciiCompatible(enc encoding.Encoding) bool {
	const terminators = "\r\n"

	encoded, err := enc.NewEncoder().String(terminators)
	if err != nil || encoded != terminators {
		return false
	}

	decoded, err := enc.NewDecoder().String(terminators)

	return err == nil && decoded == terminators
}

// Name returns the normalized encoding name.
func (d *Decoder) Name() string {
	return d.name
}

// String decodes b. Bytes that are invalid in the encoding become U+FFFD.
func (d *Decoder) String(b []byte) string {
	if d == nil || d.dec == nil {
		if utf8.Valid(b) {
			return string(b)
		}

		return strings.ToValidUTF8(string(b), "�")
	}

	out, err := d.dec.Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}

	return string(out)
}
