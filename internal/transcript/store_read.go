package transcript

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
)

// Session describes one stored transcript session.
type Session struct {
	Meta
	Path string
}

// Active reports whether the session was never closed.
func (s Session) Active() bool {
	return s.ClosedAt == nil
}

// ListSessions returns transcript sessions sorted by newest start time first.
func ListSessions(rootDir string) ([]Session, error) {
	rootDir, err := resolveDir(rootDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("list transcript sessions: %w", err)
	}

	sessions := make([]Session, 0, len(entries))

	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}

		dir := filepath.Join(rootDir, ent.Name())

		meta, err := readMeta(dir)
		if err != nil {
			continue
		}

		sessions = append(sessions, Session{Meta: meta, Path: dir})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})

	return sessions, nil
}

// FindSession resolves an exact session id or a unique id prefix.
func FindSession(rootDir, id string) (Session, error) {
	sessions, err := ListSessions(rootDir)
	if err != nil {
		return Session{}, err
	}

	var matches []Session

	for _, s := range sessions {
		if s.SessionID == id {
			return s, nil
		}

		if id != "" && strings.HasPrefix(s.SessionID, id) {
			matches = append(matches, s)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	default:
		return Session{}, fmt.Errorf("session id %q is ambiguous (%d matches)", id, len(matches))
	}
}

func readMeta(dir string) (Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFileName)) //nolint:gosec // controlled directory
	if err != nil {
		return Meta{}, fmt.Errorf("read transcript meta: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("decode transcript meta: %w", err)
	}

	return meta, nil
}

// ReadEvents reads all events for a given session. Sessions that were never
// closed are read from the live file.
func ReadEvents(rootDir, sessionID string) ([]Event, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	rootDir, err := resolveDir(rootDir)
	if err != nil {
		return nil, err
	}

	sessionDir := filepath.Join(rootDir, sessionID)

	meta, err := readMeta(sessionDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}

		return nil, err
	}

	if meta.ClosedAt == nil {
		return readLiveFile(sessionDir)
	}

	return readCompressed(sessionDir)
}

func readCompressed(sessionDir string) (events []Event, err error) {
	file, err := os.Open(filepath.Join(sessionDir, eventsFileName)) //nolint:gosec // controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return readLiveFile(sessionDir)
		}

		return nil, fmt.Errorf("open transcript events: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}

	defer func() {
		if closeErr := gzipReader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return scanEvents(gzipReader)
}

func readLiveFile(sessionDir string) (events []Event, err error) {
	file, err := os.Open(filepath.Join(sessionDir, eventsLiveFileName)) //nolint:gosec // controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("open live transcript events: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return scanEvents(file)
}

func scanEvents(r io.Reader) ([]Event, error) {
	var events []Event

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		trimmed := bytes.TrimSpace(scanner.Bytes())
		if len(trimmed) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(trimmed, &event); err != nil {
			continue
		}

		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("scan transcript events: %w", err)
	}

	return events, nil
}

// ReadLiveEventsFrom reads live transcript events from a byte offset in the
// append-only JSONL file and returns the offset to resume from.
func ReadLiveEventsFrom(rootDir, sessionID string, offset int64) (events []Event, nextOffset int64, err error) {
	if validateErr := validateSessionID(sessionID); validateErr != nil {
		return nil, offset, validateErr
	}

	if offset < 0 {
		return nil, offset, errors.New("offset must be >= 0")
	}

	rootDir, err = resolveDir(rootDir)
	if err != nil {
		return nil, offset, err
	}

	file, err := os.Open(filepath.Join(rootDir, sessionID, eventsLiveFileName)) //nolint:gosec // controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, offset, nil
		}

		return nil, offset, fmt.Errorf("open live transcript events: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	stat, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("read live transcript file info: %w", err)
	}

	offset = min(offset, stat.Size())

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek live transcript file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	nextOffset = offset

	for {
		line, readErr := reader.ReadBytes('\n')

		// A torn trailing write is retried on the next poll.
		if len(line) > 0 && line[len(line)-1] == '\n' {
			nextOffset += int64(len(line))

			var event Event
			if err := json.Unmarshal(bytes.TrimSpace(line), &event); err == nil {
				events = append(events, event)
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}

			return events, nextOffset, fmt.Errorf("read live transcript line: %w", readErr)
		}
	}

	return events, nextOffset, nil
}

// PruneOlderThan removes closed sessions that ended before the cutoff.
// Sessions still being written are left alone.
func PruneOlderThan(rootDir string, cutoff time.Time) (int, error) {
	sessions, err := ListSessions(rootDir)
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, session := range sessions {
		if session.Active() || !session.ClosedAt.Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(session.Path); err != nil {
			return removed, fmt.Errorf("prune transcript session %q: %w", session.SessionID, err)
		}

		removed++
	}

	return removed, nil
}

// Plain returns the event text with terminal escape sequences removed.
func (e Event) Plain() string {
	return ansi.Strip(e.Text)
}

// Filter returns output events whose plain text contains query,
// case-insensitively. An empty query keeps every output event.
func Filter(events []Event, query string) []Event {
	query = strings.ToLower(query)
	out := make([]Event, 0, len(events))

	for _, ev := range events {
		if ev.Stream == StreamTask {
			continue
		}

		if query == "" || strings.Contains(strings.ToLower(ev.Plain()), query) {
			out = append(out, ev)
		}
	}

	return out
}
