package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/musher-dev/cmdq/internal/output"
	"github.com/musher-dev/cmdq/internal/terminal"
)

func newTestPrompter(input string, tty bool) (*Prompter, *bytes.Buffer) {
	var buf bytes.Buffer

	out := output.NewWriter(&buf, &buf, &terminal.Info{NoColor: true})

	return NewWithInput(out, strings.NewReader(input), tty), &buf
}

func TestIsCanceled(t *testing.T) {
	if !IsCanceled(errCanceled) {
		t.Fatal("IsCanceled(errCanceled) = false, want true")
	}

	if !IsCanceled(errors.Join(errors.New("other"), errCanceled)) {
		t.Fatal("IsCanceled(wrapped errCanceled) = false, want true")
	}

	if IsCanceled(errors.New("not canceled")) {
		t.Fatal("IsCanceled(unrelated error) = true, want false")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		def   bool
		want  bool
	}{
		{name: "yes", input: "y\n", want: true},
		{name: "full yes", input: "YES\n", want: true},
		{name: "no", input: "n\n", def: true, want: false},
		{name: "empty takes default true", input: "\n", def: true, want: true},
		{name: "empty takes default false", input: "\n", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestPrompter(tt.input, true)

			got, err := p.Confirm("Delete?", tt.def)
			if err != nil {
				t.Fatalf("Confirm() error = %v", err)
			}

			if got != tt.want {
				t.Errorf("Confirm() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfirm_EOFIsCanceled(t *testing.T) {
	p, _ := newTestPrompter("", true)

	if _, err := p.Confirm("Delete?", false); !IsCanceled(err) {
		t.Fatalf("Confirm() error = %v, want canceled", err)
	}
}

func TestSelect_RetriesInvalidInput(t *testing.T) {
	p, buf := newTestPrompter("9\nabc\n\n2\n", true)

	got, err := p.Select("Pick one:", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if got != 1 {
		t.Errorf("Select() = %d, want 1", got)
	}

	if n := strings.Count(buf.String(), "Invalid selection"); n != 2 {
		t.Errorf("invalid selection warnings = %d, want 2\n%s", n, buf.String())
	}
}

func TestCanPrompt(t *testing.T) {
	p, _ := newTestPrompter("", true)
	if !p.CanPrompt() {
		t.Error("CanPrompt() = false on a tty")
	}

	p.out.NoInput = true
	if p.CanPrompt() {
		t.Error("CanPrompt() = true with --no-input")
	}

	p, _ = newTestPrompter("", false)
	if p.CanPrompt() {
		t.Error("CanPrompt() = true without a tty")
	}
}
