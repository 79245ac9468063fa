package transcript

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/musher-dev/cmdq/internal/runner"
)

const (
	defaultLines       = 10000
	eventsFileName     = "events.jsonl.gz"
	eventsLiveFileName = "events.live.jsonl"
	metaFileName       = "meta.json"
)

// Stream names recorded in events.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	// StreamTask marks the end of a task.
	StreamTask = "task"
)

var (
	// ErrClosed is returned when appending to a closed recorder.
	ErrClosed = errors.New("transcript recorder is closed")
	// ErrSessionNotFound is returned when a session directory does not exist.
	ErrSessionNotFound = errors.New("transcript session not found")
)

// Event is a single transcript record.
type Event struct {
	SessionID string    `json:"sessionId"`
	Seq       uint64    `json:"seq"`
	TS        time.Time `json:"ts"`
	Stream    string    `json:"stream"`
	Text      string    `json:"text,omitempty"`
	Progress  bool      `json:"progress,omitempty"`
}

// Meta stores session metadata for discovery and pruning.
type Meta struct {
	SessionID string     `json:"sessionId"`
	Mode      string     `json:"mode,omitempty"`
	Prefix    string     `json:"prefix,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	Lines     int        `json:"lines"`
	Dropped   int        `json:"dropped,omitempty"`
	Tasks     int        `json:"tasks"`
}

// Options controls recorder behavior.
type Options struct {
	SessionID string
	Dir       string
	// MaxLines caps recorded output lines; later lines are counted as dropped.
	MaxLines int
	Mode     string
	Prefix   string
	Now      func() time.Time
}

// Recorder writes the output of one cmdq session to compressed and live
// JSONL files. It implements runner.Sink so it can sit beside a UI in a
// runner.MultiSink.
type Recorder struct {
	mu sync.Mutex

	meta     Meta
	dir      string
	maxLines int
	seq      uint64
	now      func() time.Time

	file     *os.File
	gz       *gzip.Writer
	bw       *bufio.Writer
	liveFile *os.File
	liveBW   *bufio.Writer

	err    error
	closed bool
}

// NewRecorder creates the session directory and opens its event files.
func NewRecorder(opts Options) (*Recorder, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = NewSessionID(now())
	}

	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	root, err := resolveDir(opts.Dir)
	if err != nil {
		return nil, err
	}

	maxLines := opts.MaxLines
	if maxLines <= 0 {
		maxLines = defaultLines
	}

	sessionDir := filepath.Join(root, sessionID)
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(sessionDir, eventsFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // sessionID is validated
	if err != nil {
		return nil, fmt.Errorf("open transcript events: %w", err)
	}

	liveFile, err := os.OpenFile(filepath.Join(sessionDir, eventsLiveFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // sessionID is validated
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open live transcript events: %w", err)
	}

	gz := gzip.NewWriter(f)

	r := &Recorder{
		meta: Meta{
			SessionID: sessionID,
			Mode:      opts.Mode,
			Prefix:    opts.Prefix,
			StartedAt: now().UTC(),
		},
		dir:      sessionDir,
		maxLines: maxLines,
		now:      now,
		file:     f,
		gz:       gz,
		bw:       bufio.NewWriterSize(gz, 64*1024),
		liveFile: liveFile,
		liveBW:   bufio.NewWriterSize(liveFile, 64*1024),
	}

	if err := r.writeMetaLocked(); err != nil {
		_ = r.Close()
		return nil, err
	}

	return r, nil
}

// SessionID returns the recorder's session id.
func (r *Recorder) SessionID() string {
	return r.meta.SessionID
}

// Err returns the first write error seen by the Sink methods.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}

// Append records one output line.
func (r *Recorder) Append(stream, text string, progress bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	if r.meta.Lines >= r.maxLines {
		r.meta.Dropped++
		return nil
	}

	r.meta.Lines++

	return r.writeLocked(stream, text, progress)
}

// OnLine implements runner.Sink.
func (r *Recorder) OnLine(text string, isErrorStream, isProgress bool) {
	stream := StreamStdout
	if isErrorStream {
		stream = StreamStderr
	}

	r.keep(r.Append(stream, text, isProgress))
}

// OnDashboardChanged implements runner.Sink. Queue state is not recorded.
func (r *Recorder) OnDashboardChanged() {}

// OnTaskFinished implements runner.Sink.
func (r *Recorder) OnTaskFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.meta.Tasks++

	if err := r.writeLocked(StreamTask, "", false); err != nil && r.err == nil {
		r.err = err
	}
}

func (r *Recorder) keep(err error) {
	if err == nil || errors.Is(err, ErrClosed) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err == nil {
		r.err = err
	}
}

func (r *Recorder) writeLocked(stream, text string, progress bool) error {
	r.seq++

	line, err := json.Marshal(&Event{
		SessionID: r.meta.SessionID,
		Seq:       r.seq,
		TS:        r.now().UTC(),
		Stream:    stream,
		Text:      text,
		Progress:  progress,
	})
	if err != nil {
		return fmt.Errorf("marshal transcript event: %w", err)
	}

	line = append(line, '\n')
	if _, err := r.bw.Write(line); err != nil {
		return fmt.Errorf("encode transcript event: %w", err)
	}

	if _, err := r.liveBW.Write(line); err != nil {
		return fmt.Errorf("encode live transcript event: %w", err)
	}

	if err := r.liveBW.Flush(); err != nil {
		return fmt.Errorf("flush live transcript event: %w", err)
	}

	return nil
}

func (r *Recorder) writeMetaLocked() error {
	data, err := json.Marshal(&r.meta)
	if err != nil {
		return fmt.Errorf("marshal transcript meta: %w", err)
	}

	if err := os.WriteFile(filepath.Join(r.dir, metaFileName), data, 0o600); err != nil {
		return fmt.Errorf("write transcript meta: %w", err)
	}

	return nil
}

// Close flushes the event files and stamps the session as closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true

	closedAt := r.now().UTC()
	r.meta.ClosedAt = &closedAt

	var errs []error
	if err := r.writeMetaLocked(); err != nil {
		errs = append(errs, err)
	}

	for _, flush := range []func() error{r.bw.Flush, r.liveBW.Flush, r.gz.Close, r.file.Close, r.liveFile.Close} {
		if err := flush(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}

	if sessionID != filepath.Base(sessionID) || strings.Contains(sessionID, "..") || strings.ContainsAny(sessionID, `/\`) {
		return fmt.Errorf("invalid session id %q", sessionID)
	}

	return nil
}

var _ runner.Sink = (*Recorder)(nil)
