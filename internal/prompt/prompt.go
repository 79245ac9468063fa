// Package prompt provides line-based interactive prompts for the cmdq CLI.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/musher-dev/cmdq/internal/output"
)

var errCanceled = errors.New("prompt canceled")

// IsCanceled reports whether err came from the user ending input.
func IsCanceled(err error) bool {
	return errors.Is(err, errCanceled)
}

// Prompter handles interactive prompts.
type Prompter struct {
	out    *output.Writer
	reader *bufio.Reader
	tty    bool
}

// New creates a Prompter reading from stdin.
func New(out *output.Writer) *Prompter {
	info := out.Terminal()

	return NewWithInput(out, os.Stdin, info.IsTTY && info.StdinIsTTY)
}

// NewWithInput creates a Prompter over in. tty says whether in is an
// interactive terminal.
func NewWithInput(out *output.Writer, in io.Reader, tty bool) *Prompter {
	return &Prompter{
		out:    out,
		reader: bufio.NewReader(in),
		tty:    tty,
	}
}

// CanPrompt reports whether interactive prompts are available.
func (p *Prompter) CanPrompt() bool {
	return p.tty && !p.out.NoInput && !p.out.JSON
}

// Confirm prompts for a yes/no answer. An empty answer picks defaultValue.
func (p *Prompter) Confirm(message string, defaultValue bool) (bool, error) {
	defaultStr := "y/N"
	if defaultValue {
		defaultStr = "Y/n"
	}

	p.out.Print("%s [%s]: ", message, defaultStr)

	input, err := p.readLine()
	if err != nil {
		return defaultValue, err
	}

	input = strings.ToLower(input)
	if input == "" {
		return defaultValue, nil
	}

	return input == "y" || input == "yes", nil
}

// Select prompts the user to pick one of options and returns its index.
func (p *Prompter) Select(message string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, errors.New("no options to select from")
	}

	p.out.Println(message)

	for i, opt := range options {
		p.out.Print("  [%d] %s\n", i+1, opt)
	}

	p.out.Println()

	for {
		if len(options) == 1 {
			p.out.Print("Select [1]: ")
		} else {
			p.out.Print("Select [1-%d]: ", len(options))
		}

		input, err := p.readLine()
		if err != nil {
			return -1, err
		}

		if input == "" {
			continue
		}

		num, err := strconv.Atoi(input)
		if err != nil || num < 1 || num > len(options) {
			p.out.Warning("Invalid selection. Please enter a number between 1 and %d", len(options))
			continue
		}

		return num - 1, nil
	}
}

func (p *Prompter) readLine() (string, error) {
	input, err := p.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", errors.Join(errCanceled, err)
		}

		return "", fmt.Errorf("failed to read input: %w", err)
	}

	return strings.TrimSpace(input), nil
}
