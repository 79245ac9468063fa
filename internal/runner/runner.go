// Package runner executes queued shell commands one at a time.
//
// A Runner owns one long-lived goroutine that blocks on its queue, launches
// each task with its output redirected into pipes, and streams the output to
// a Sink line by line while it waits for the process to exit.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/musher-dev/cmdq/internal/observability"
	"github.com/musher-dev/cmdq/internal/queue"
	"github.com/musher-dev/cmdq/internal/stream"
)

// DefaultDrainTimeout bounds how long a finished task waits for its output
// readers.
const DefaultDrainTimeout = 5 * time.Second

// closeGrace is the extra wait for readers after their pipes are force-closed.
const closeGrace = 500 * time.Millisecond

// Options configures a Runner.
type Options struct {
	// Queue supplies tasks. Nil creates a queue of queue.DefaultCapacity.
	Queue *queue.Queue

	// Sink receives output lines and state changes. Nil discards them.
	Sink Sink

	// Shell wraps each command line, e.g. ["sh", "-c"]. Empty splits the
	// line on whitespace and executes it directly.
	Shell []string

	// Dir and Env are passed to the child. Empty values inherit ours.
	Dir string
	Env []string

	DrainTimeout time.Duration
	MaxResidual  int
	ReadSize     int

	// Encoding names the child's output encoding (default UTF-8).
	Encoding string

	// UsePTY attaches the child's stdout to a pseudo-terminal.
	UsePTY bool

	// KillOnCancel terminates the running child when the Run context is
	// canceled. Otherwise running tasks always finish naturally.
	KillOnCancel bool

	Logger *slog.Logger
}

// Runner is the single consumer of a task queue.
type Runner struct {
	queue        *queue.Queue
	sink         Sink
	shell        []string
	dir          string
	env          []string
	drainTimeout time.Duration
	maxResidual  int
	readSize     int
	encoding     string
	usePTY       bool
	killOnCancel bool
	logger       *slog.Logger

	started atomic.Bool
	done    chan struct{}

	// Running state (guarded by mu).
	mu        sync.Mutex
	running   string
	phase     Phase
	completed int
	failed    int
}

// New creates a runner. It fails only for an unknown output encoding.
func New(opts Options) (*Runner, error) {
	if _, err := stream.NewDecoder(opts.Encoding); err != nil {
		return nil, err
	}

	q := opts.Queue
	if q == nil {
		q = queue.New(queue.DefaultCapacity)
	}

	sink := opts.Sink
	if sink == nil {
		sink = SinkFuncs{}
	}

	drain := opts.DrainTimeout
	if drain <= 0 {
		drain = DefaultDrainTimeout
	}

	return &Runner{
		queue:        q,
		sink:         sink,
		shell:        append([]string(nil), opts.Shell...),
		dir:          opts.Dir,
		env:          opts.Env,
		drainTimeout: drain,
		maxResidual:  opts.MaxResidual,
		readSize:     opts.ReadSize,
		encoding:     opts.Encoding,
		usePTY:       opts.UsePTY,
		killOnCancel: opts.KillOnCancel,
		logger:       opts.Logger,
		done:         make(chan struct{}),
		running:      IdleCommand,
	}, nil
}

// Queue returns the queue the runner consumes.
func (r *Runner) Queue() *queue.Queue {
	return r.queue
}

// Start runs the consumer loop on its own goroutine. Wait and Close join that
// goroutine as soon as Start returns. A second Start or Run is logged and
// ignored.
func (r *Runner) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		r.log(ctx).Warn("start ignored", slog.String("error", ErrAlreadyRunning.Error()))
		return
	}

	go r.run(ctx)
}

// Run executes tasks until the queue is shut down and drained. Canceling ctx
// shuts the queue down. Run may be called only once.
func (r *Runner) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	r.run(ctx)

	return nil
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)

	stop := context.AfterFunc(ctx, r.queue.Shutdown)
	defer stop()

	logger := r.log(ctx)
	logger.Debug("runner started", slog.Int("queue.capacity", r.queue.Cap()))

	for {
		task, ok := r.queue.Dequeue()
		if !ok {
			logger.Debug("runner stopped")
			return
		}

		if ctx.Err() != nil && r.killOnCancel {
			r.skip(task, ctx.Err())
			continue
		}

		r.execute(ctx, task)
	}
}

// Enqueue adds a task without blocking. It returns queue.ErrQueueFull when
// the queue is at capacity.
func (r *Runner) Enqueue(prefix, suffix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ErrEmptyPrefix
	}

	if err := r.queue.TryEnqueue(queue.Task{Prefix: prefix, Suffix: strings.TrimSpace(suffix)}); err != nil {
		return err
	}

	r.sink.OnDashboardChanged()

	return nil
}

// Shutdown stops the runner once the queue drains. Safe from any goroutine.
func (r *Runner) Shutdown() {
	r.queue.Shutdown()
}

// Wait blocks until Run returns. It returns at once if Run never started.
func (r *Runner) Wait() {
	if !r.started.Load() {
		return
	}

	<-r.done
}

// Close shuts the queue down and waits for the runner to finish.
func (r *Runner) Close() {
	r.Shutdown()
	r.Wait()
}

// Snapshot returns a consistent view of the running command and the queue.
func (r *Runner) Snapshot() Dashboard {
	r.mu.Lock()
	d := Dashboard{
		Running:   r.running,
		Phase:     r.phase,
		Completed: r.completed,
		Failed:    r.failed,
	}
	r.mu.Unlock()

	snap := r.queue.Snapshot()
	d.Pending = snap.Pending
	d.Capacity = r.queue.Cap()

	return d
}

func (r *Runner) execute(ctx context.Context, task queue.Task) {
	line := task.CommandLine()
	logger := r.log(ctx).With(slog.String("task.command", line))

	ctx, span := observability.Tracer("cmdq.runner").Start(ctx, "cmdq.task",
		trace.WithAttributes(attribute.String("task.command", line)),
	)
	defer span.End()

	r.setState(PhaseLaunching, line)
	r.sink.OnDashboardChanged()
	r.sink.OnLine("$ "+line, false, false)

	startedAt := time.Now()

	code, err := r.launch(ctx, line)
	if err != nil {
		logger.Warn("task failed to start", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "spawn failed")
		r.sink.OnLine("Error: "+err.Error(), true, false)
		r.finish(false)

		return
	}

	logger.Info("task finished",
		slog.Int("task.exit_code", code),
		slog.Int64("task.duration_ms", time.Since(startedAt).Milliseconds()),
	)
	span.SetAttributes(attribute.Int("task.exit_code", code))

	if code != 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("exit code %d", code))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	r.sink.OnLine(fmt.Sprintf("Process finished. Exit code: %d", code), false, false)
	r.finish(code == 0)
}

// launch runs one process to completion and returns its exit code. An error
// means the process never started; its partial resources are released.
func (r *Runner) launch(ctx context.Context, line string) (int, error) {
	cmd, err := r.newCommand(ctx, line)
	if err != nil {
		return -1, err
	}

	pipes, err := openPipes(r.usePTY)
	if err != nil {
		return -1, err
	}
	defer pipes.closeReaders()

	cmd.Stdout = pipes.stdoutW
	cmd.Stderr = pipes.stderrW

	if err := cmd.Start(); err != nil {
		pipes.closeWriters()
		return -1, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	pipes.closeWriters()
	r.setPhase(PhaseRunning)

	var group errgroup.Group

	group.Go(r.pump(pipes.stdoutR, stream.Stdout).Run)
	group.Go(r.pump(pipes.stderrR, stream.Stderr).Run)

	waitErr := cmd.Wait()

	r.setPhase(PhaseDraining)
	r.drain(ctx, &group, pipes)

	return exitCode(cmd, waitErr), nil
}

// drain joins the pumps, bounded by the drain timeout. On timeout the read
// ends are closed to unblock them and the runner moves on.
func (r *Runner) drain(ctx context.Context, group *errgroup.Group, pipes *pipeSet) {
	done := make(chan error, 1)

	go func() { done <- group.Wait() }()

	timer := time.NewTimer(r.drainTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			r.log(ctx).Warn("output reader failed", slog.String("error", err.Error()))
		}

		return
	case <-timer.C:
	}

	r.log(ctx).Warn("output readers timed out", slog.Duration("drain_timeout", r.drainTimeout))
	r.sink.OnLine("Error: "+ErrPumpTimeout.Error(), true, false)
	pipes.closeReaders()

	grace := time.NewTimer(closeGrace)
	defer grace.Stop()

	select {
	case <-done:
	case <-grace.C:
	}
}

func (r *Runner) pump(src io.Reader, s stream.Stream) *stream.Pump {
	// Validated in New; a nil decoder falls back to UTF-8.
	dec, _ := stream.NewDecoder(r.encoding)

	return &stream.Pump{
		Source:    src,
		Stream:    s,
		Assembler: stream.NewAssembler(r.maxResidual, dec),
		ReadSize:  r.readSize,
		Emit: func(l stream.Line) {
			r.sink.OnLine(l.Text, l.Stream == stream.Stderr, l.Progress)
		},
	}
}

func (r *Runner) skip(task queue.Task, cause error) {
	r.sink.OnLine(fmt.Sprintf("Error: skipped %q: %v", task.CommandLine(), cause), true, false)

	r.mu.Lock()
	r.failed++
	r.mu.Unlock()

	r.sink.OnDashboardChanged()
	r.sink.OnTaskFinished()
}

func (r *Runner) finish(ok bool) {
	r.mu.Lock()
	r.running = IdleCommand
	r.phase = PhaseIdle

	if ok {
		r.completed++
	} else {
		r.failed++
	}
	r.mu.Unlock()

	r.sink.OnDashboardChanged()
	r.sink.OnTaskFinished()
}

func (r *Runner) setState(phase Phase, running string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.phase = phase
	r.running = running
}

func (r *Runner) setPhase(phase Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.phase = phase
}

func (r *Runner) log(ctx context.Context) *slog.Logger {
	if r.logger != nil {
		return r.logger
	}

	return observability.FromContext(ctx)
}
