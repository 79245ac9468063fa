//go:build unix

package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/musher-dev/cmdq/internal/queue"
)

type recorded struct {
	Text     string
	Stderr   bool
	Progress bool
}

// recorder captures sink callbacks and the runner's dashboard at each change.
type recorder struct {
	mu         sync.Mutex
	lines      []recorded
	dashboards []Dashboard
	finished   chan struct{}
	runner     *Runner
}

func newRecorder() *recorder {
	return &recorder{finished: make(chan struct{}, 64)}
}

func (r *recorder) OnLine(text string, isErrorStream, isProgress bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = append(r.lines, recorded{Text: text, Stderr: isErrorStream, Progress: isProgress})
}

func (r *recorder) OnDashboardChanged() {
	if r.runner == nil {
		return
	}

	d := r.runner.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.dashboards = append(r.dashboards, d)
}

func (r *recorder) OnTaskFinished() {
	r.finished <- struct{}{}
}

func (r *recorder) waitFinished(t *testing.T, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		select {
		case <-r.finished:
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for task %d of %d", i+1, n)
		}
	}
}

func (r *recorder) snapshot() ([]recorded, []Dashboard) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]recorded(nil), r.lines...), append([]Dashboard(nil), r.dashboards...)
}

func (r *recorder) texts() []string {
	lines, _ := r.snapshot()

	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Text)
	}

	return out
}

func startRunner(t *testing.T, opts Options) (*Runner, *recorder) {
	t.Helper()

	rec := newRecorder()
	opts.Sink = rec

	if opts.Shell == nil {
		opts.Shell = []string{"sh", "-c"}
	}

	r, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rec.runner = r
	r.Start(context.Background())
	t.Cleanup(r.Close)

	return r, rec
}

func indexOf(lines []string, want string) int {
	for i, l := range lines {
		if l == want {
			return i
		}
	}

	return -1
}

func TestRunner_EchoHello(t *testing.T) {
	r, rec := startRunner(t, Options{})

	if err := r.Enqueue("echo", "hello"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	rec.waitFinished(t, 1)

	lines, dashboards := rec.snapshot()
	texts := rec.texts()

	start := indexOf(texts, "$ echo hello")
	hello := indexOf(texts, "hello")
	exit := indexOf(texts, "Process finished. Exit code: 0")

	if start < 0 || hello < 0 || exit < 0 || !(start < hello && hello < exit) {
		t.Fatalf("lines = %q, want announce, hello, exit code in order", texts)
	}

	if lines[hello].Stderr || lines[hello].Progress {
		t.Errorf("hello line = %+v, want normal stdout line", lines[hello])
	}

	var sawRunning bool

	for _, d := range dashboards {
		if d.Running == "echo hello" {
			sawRunning = true
		}
	}

	if !sawRunning {
		t.Errorf("no dashboard reported %q as running: %+v", "echo hello", dashboards)
	}

	last := dashboards[len(dashboards)-1]
	if last.Running != IdleCommand || last.Phase != PhaseIdle {
		t.Errorf("final dashboard = %+v, want idle", last)
	}

	if d := r.Snapshot(); d.Completed != 1 || d.Failed != 0 {
		t.Errorf("counts = %d completed, %d failed", d.Completed, d.Failed)
	}
}

func TestRunner_FIFOOrder(t *testing.T) {
	q := queue.New(8)

	// Queue everything before the runner starts so order is decided by the queue alone.
	for _, s := range []string{"one", "two", "three"} {
		if err := q.TryEnqueue(queue.Task{Prefix: "echo", Suffix: s}); err != nil {
			t.Fatalf("TryEnqueue() error = %v", err)
		}
	}

	_, rec := startRunner(t, Options{Queue: q})
	rec.waitFinished(t, 3)

	texts := rec.texts()

	one, two, three := indexOf(texts, "one"), indexOf(texts, "two"), indexOf(texts, "three")
	if one < 0 || !(one < two && two < three) {
		t.Errorf("lines = %q, want one, two, three in order", texts)
	}
}

func TestRunner_StderrAndExitCode(t *testing.T) {
	r, rec := startRunner(t, Options{})

	if err := r.Enqueue("echo oops 1>&2; exit", "3"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	rec.waitFinished(t, 1)

	lines, _ := rec.snapshot()

	var sawOops bool

	for _, l := range lines {
		if l.Text == "oops" && l.Stderr {
			sawOops = true
		}
	}

	if !sawOops {
		t.Errorf("no stderr line %q in %+v", "oops", lines)
	}

	if indexOf(rec.texts(), "Process finished. Exit code: 3") < 0 {
		t.Errorf("lines = %q, want exit code 3", rec.texts())
	}

	if d := r.Snapshot(); d.Failed != 1 {
		t.Errorf("Failed = %d, want 1", d.Failed)
	}
}

func TestRunner_ProgressLines(t *testing.T) {
	r, rec := startRunner(t, Options{})

	if err := r.Enqueue(`printf '10%%\r20%%\rdone\n'`, ""); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	rec.waitFinished(t, 1)

	lines, _ := rec.snapshot()

	var got []recorded

	for _, l := range lines {
		if strings.HasSuffix(l.Text, "%") || l.Text == "done" {
			got = append(got, l)
		}
	}

	want := []recorded{
		{Text: "10%", Progress: true},
		{Text: "20%", Progress: true},
		{Text: "done"},
	}

	if len(got) != len(want) {
		t.Fatalf("lines = %+v, want %+v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRunner_SpawnFailureContinues(t *testing.T) {
	r, rec := startRunner(t, Options{Shell: []string{}})

	if err := r.Enqueue("/nonexistent/cmdq-missing-binary", ""); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if err := r.Enqueue("echo", "after"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	rec.waitFinished(t, 2)

	lines, _ := rec.snapshot()

	var spawnErr bool

	for _, l := range lines {
		if l.Stderr && strings.HasPrefix(l.Text, "Error: ") && strings.Contains(l.Text, ErrSpawn.Error()) {
			spawnErr = true
		}
	}

	if !spawnErr {
		t.Errorf("no spawn error line in %+v", lines)
	}

	if indexOf(rec.texts(), "after") < 0 {
		t.Errorf("runner stopped after spawn failure: %q", rec.texts())
	}

	if d := r.Snapshot(); d.Completed != 1 || d.Failed != 1 {
		t.Errorf("counts = %d completed, %d failed, want 1 and 1", d.Completed, d.Failed)
	}
}

func TestRunner_PumpTimeout(t *testing.T) {
	r, rec := startRunner(t, Options{DrainTimeout: 100 * time.Millisecond})

	// The background sleep inherits the pipes and keeps them open after sh exits.
	if err := r.Enqueue("sleep 3 & echo started", ""); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	began := time.Now()

	rec.waitFinished(t, 1)

	if elapsed := time.Since(began); elapsed > 2*time.Second {
		t.Errorf("task took %v, drain timeout not enforced", elapsed)
	}

	texts := rec.texts()
	if indexOf(texts, "Error: "+ErrPumpTimeout.Error()) < 0 {
		t.Errorf("lines = %q, want pump timeout report", texts)
	}

	if indexOf(texts, "Process finished. Exit code: 0") < 0 {
		t.Errorf("lines = %q, want exit code after timeout", texts)
	}
}

func TestRunner_EnqueueFull(t *testing.T) {
	r, err := New(Options{Queue: queue.New(1)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := r.Enqueue("echo", "a"); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}

	if err := r.Enqueue("echo", "b"); !errors.Is(err, queue.ErrQueueFull) {
		t.Errorf("second Enqueue() error = %v, want ErrQueueFull", err)
	}

	if err := r.Enqueue("  ", "b"); !errors.Is(err, ErrEmptyPrefix) {
		t.Errorf("blank prefix error = %v, want ErrEmptyPrefix", err)
	}

	d := r.Snapshot()
	if d.Running != IdleCommand || len(d.Pending) != 1 || d.Capacity != 1 {
		t.Errorf("Snapshot() = %+v", d)
	}

	// Never started: Close must not block.
	r.Close()
}

func TestRunner_ShutdownWhileIdle(t *testing.T) {
	r, err := New(Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	r.Start(context.Background())

	done := make(chan struct{})

	go func() {
		r.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close() did not return promptly on an idle runner")
	}
}

func TestRunner_CloseWaitsForQueuedTask(t *testing.T) {
	rec := newRecorder()

	r, err := New(Options{Sink: rec, Shell: []string{"sh", "-c"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rec.runner = r

	if err := r.Enqueue("true", ""); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	r.Start(context.Background())
	r.Close()

	select {
	case <-rec.finished:
	default:
		t.Fatal("Close() returned before the queued task finished")
	}

	select {
	case <-r.done:
	default:
		t.Fatal("Close() returned while the consumer loop was still running")
	}
}

func TestRunner_SecondStartIgnored(t *testing.T) {
	r, rec := startRunner(t, Options{})

	r.Start(context.Background())

	if err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Run() after Start() error = %v, want ErrAlreadyRunning", err)
	}

	if err := r.Enqueue("echo", "once"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	rec.waitFinished(t, 1)

	var n int

	for _, text := range rec.texts() {
		if text == "once" {
			n++
		}
	}

	if n != 1 {
		t.Errorf("task output seen %d times, want 1: %q", n, rec.texts())
	}
}

func TestRunner_ShutdownDrainsPending(t *testing.T) {
	q := queue.New(4)
	_ = q.TryEnqueue(queue.Task{Prefix: "echo", Suffix: "queued"})

	rec := newRecorder()

	r, err := New(Options{Queue: q, Sink: rec, Shell: []string{"sh", "-c"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	r.Shutdown()

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if indexOf(rec.texts(), "queued") < 0 {
		t.Errorf("pending task not run before shutdown: %q", rec.texts())
	}

	if err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestRunner_CancelStopsLoop(t *testing.T) {
	r, err := New(Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() { done <- r.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRunner_KillOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := newRecorder()

	r, err := New(Options{Sink: rec, Shell: []string{"sh", "-c"}, KillOnCancel: true, DrainTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rec.runner = r

	go func() { _ = r.Run(ctx) }()
	t.Cleanup(r.Close)

	if err := r.Enqueue("exec sleep", "30"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for r.Snapshot().Phase != PhaseRunning {
		if time.Now().After(deadline) {
			t.Fatal("task never reached running")
		}

		time.Sleep(10 * time.Millisecond)
	}

	began := time.Now()

	cancel()
	rec.waitFinished(t, 1)

	if elapsed := time.Since(began); elapsed > 5*time.Second {
		t.Errorf("canceled task took %v to stop", elapsed)
	}

	if d := r.Snapshot(); d.Failed != 1 {
		t.Errorf("Failed = %d, want 1 for a terminated task", d.Failed)
	}
}

func TestRunner_PTY(t *testing.T) {
	r, rec := startRunner(t, Options{UsePTY: true})

	if err := r.Enqueue(`printf 'a\nb 10%%\rb 20%%\rdone\n'`, ""); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	rec.waitFinished(t, 1)

	lines, _ := rec.snapshot()

	for _, l := range lines {
		if l.Stderr {
			t.Errorf("unexpected stderr line %+v", l)
		}
	}

	want := []recorded{
		{Text: "a"},
		{Text: "b 10%", Progress: true},
		{Text: "b 20%", Progress: true},
		{Text: "done"},
		{Text: "Process finished. Exit code: 0"},
	}

	start := indexOf(rec.texts(), "a")
	if start < 0 || start+len(want) > len(lines) {
		t.Fatalf("lines = %+v, want %+v", lines, want)
	}

	for i, w := range want {
		if got := lines[start+i]; got != w {
			t.Errorf("line %d = %+v, want %+v", i, got, w)
		}
	}

	if d := r.Snapshot(); d.Completed != 1 || d.Failed != 0 {
		t.Errorf("counts = %d completed, %d failed", d.Completed, d.Failed)
	}
}

func TestNew_RejectsUnknownEncoding(t *testing.T) {
	for _, name := range []string{"klingon", "utf-16le"} {
		if _, err := New(Options{Encoding: name}); err == nil {
			t.Errorf("New(Encoding: %q) error = nil, want error", name)
		}
	}
}
