package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"
)

// pipeSet holds both ends of the stdout and stderr channels for one task.
type pipeSet struct {
	stdoutR, stdoutW *os.File
	stderrR, stderrW *os.File
}

// openPipes creates the output channels. With usePTY the child's stdout is a
// pseudo-terminal so tools that only draw progress on a TTY keep doing so;
// stderr stays a plain pipe.
func openPipes(usePTY bool) (*pipeSet, error) {
	p := &pipeSet{}

	var err error

	if usePTY {
		p.stdoutR, p.stdoutW, err = pty.Open()
	} else {
		p.stdoutR, p.stdoutW, err = os.Pipe()
	}

	if err != nil {
		return nil, fmt.Errorf("%w: stdout: %w", ErrPipe, err)
	}

	p.stderrR, p.stderrW, err = os.Pipe()
	if err != nil {
		p.closeWriters()
		p.closeReaders()

		return nil, fmt.Errorf("%w: stderr: %w", ErrPipe, err)
	}

	return p, nil
}

// closeWriters releases the parent's write ends. Once the child's copies
// close too, the readers observe end of stream.
func (p *pipeSet) closeWriters() {
	closeFile(&p.stdoutW)
	closeFile(&p.stderrW)
}

func (p *pipeSet) closeReaders() {
	closeFile(&p.stdoutR)
	closeFile(&p.stderrR)
}

func closeFile(f **os.File) {
	if *f != nil {
		_ = (*f).Close()
		*f = nil
	}
}

// commandArgs splits a command line into argv. With a shell such as
// ["sh", "-c"] the whole line is passed as the shell's last argument;
// without one it is split on whitespace.
func commandArgs(shell []string, line string) ([]string, error) {
	if len(shell) > 0 {
		args := make([]string, 0, len(shell)+1)
		args = append(args, shell...)

		return append(args, line), nil
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.New("empty command line")
	}

	return fields, nil
}

// newCommand builds the process for one task. Unless killOnCancel is set the
// child is detached from ctx so cancellation only stops the queue.
func (r *Runner) newCommand(ctx context.Context, line string) (*exec.Cmd, error) {
	argv, err := commandArgs(r.shell, line)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	if !r.killOnCancel {
		ctx = context.WithoutCancel(ctx)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // G204: running user-supplied commands is the point
	cmd.Dir = r.dir
	cmd.Env = r.env
	cmd.Cancel = func() error { return terminate(cmd.Process) }
	cmd.WaitDelay = r.drainTimeout

	return cmd, nil
}

// exitCode extracts the exit status from a Wait result. A process killed by
// a signal reports -1.
func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}
