//go:build unix

package runner

import (
	"os"

	"golang.org/x/sys/unix"
)

// terminate asks the process to exit. exec.Cmd escalates to SIGKILL once
// WaitDelay passes.
func terminate(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}
