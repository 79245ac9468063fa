// Package taskfile loads batches of tasks for headless runs.
//
// Three formats are accepted, chosen by file extension:
//
//	.yaml/.yml  prefix, suffixes and tasks keys
//	.toml       the same keys
//	anything else  one suffix per line; blank lines and # comments skipped
//
// Entries without their own prefix use the file's prefix, falling back to
// the caller's default.
package taskfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/musher-dev/cmdq/internal/queue"
)

// ErrInvalid wraps every parse and validation failure.
var ErrInvalid = errors.New("invalid task file")

// Format is a task file syntax.
type Format int

const (
	// FormatText is one suffix per line.
	FormatText Format = iota
	// FormatYAML is a YAML document.
	FormatYAML
	// FormatTOML is a TOML document.
	FormatTOML
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	default:
		return "text"
	}
}

// FormatFromPath picks a format by extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatText
	}
}

// Entry is one task with an optional prefix override.
type Entry struct {
	Prefix string `yaml:"prefix" toml:"prefix"`
	Suffix string `yaml:"suffix" toml:"suffix"`
}

// Document is the structured file form.
type Document struct {
	Prefix   string   `yaml:"prefix" toml:"prefix"`
	Suffixes []string `yaml:"suffixes" toml:"suffixes"`
	Tasks    []Entry  `yaml:"tasks" toml:"tasks"`
}

// Load reads the file at path.
func Load(path, defaultPrefix string) ([]queue.Task, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is supplied by the user on the command line
	if err != nil {
		return nil, fmt.Errorf("open task file: %w", err)
	}
	defer f.Close()

	tasks, err := Parse(f, FormatFromPath(path), defaultPrefix)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return tasks, nil
}

// Parse reads tasks from r in the given format.
func Parse(r io.Reader, format Format, defaultPrefix string) ([]queue.Task, error) {
	if format == FormatText {
		return parseText(r, defaultPrefix)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}

	var doc Document

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)

		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()

		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}

	return doc.Resolve(defaultPrefix)
}

// Resolve applies prefix defaults and validates every entry. Suffixes come
// before Tasks in the result.
func (d *Document) Resolve(defaultPrefix string) ([]queue.Task, error) {
	prefix := strings.TrimSpace(d.Prefix)
	if prefix == "" {
		prefix = strings.TrimSpace(defaultPrefix)
	}

	tasks := make([]queue.Task, 0, len(d.Suffixes)+len(d.Tasks))

	for _, s := range d.Suffixes {
		tasks = append(tasks, queue.Task{Prefix: prefix, Suffix: strings.TrimSpace(s)})
	}

	for _, e := range d.Tasks {
		p := strings.TrimSpace(e.Prefix)
		if p == "" {
			p = prefix
		}

		tasks = append(tasks, queue.Task{Prefix: p, Suffix: strings.TrimSpace(e.Suffix)})
	}

	for i, t := range tasks {
		if t.Prefix == "" {
			return nil, fmt.Errorf("%w: task %d (%q) has no prefix", ErrInvalid, i+1, t.Suffix)
		}
	}

	return tasks, nil
}

func parseText(r io.Reader, defaultPrefix string) ([]queue.Task, error) {
	prefix := strings.TrimSpace(defaultPrefix)

	var tasks []queue.Task

	sc := bufio.NewScanner(r)
	n := 0

	for sc.Scan() {
		n++

		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if prefix == "" {
			return nil, fmt.Errorf("%w: line %d: no command prefix configured", ErrInvalid, n)
		}

		tasks = append(tasks, queue.Task{Prefix: prefix, Suffix: line})
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}

	return tasks, nil
}
