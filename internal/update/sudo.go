//go:build !windows

package update

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// keptEnv lists the variables outside the CMDQ_ namespace that decide where
// cmdq reads config and writes update state. sudo resets the environment, so
// they are forwarded explicitly.
var keptEnv = []string{"XDG_CONFIG_HOME", "XDG_STATE_HOME"}

// NeedsElevation reports whether replacing binaryPath requires root. The new
// binary is renamed into place, so only the directory's permissions matter.
func NeedsElevation(binaryPath string) bool {
	return unix.Access(filepath.Dir(binaryPath), unix.W_OK) != nil
}

// ReExecWithSudo replaces the current process with the same cmdq command run
// under sudo. It only returns on failure.
func ReExecWithSudo() error {
	sudoPath, err := exec.LookPath("sudo")
	if err != nil {
		return errors.New(`sudo not found in PATH; rerun "cmdq update" as root`)
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	fmt.Fprintf(os.Stderr, "%s is not writable. Requesting sudo...\n", filepath.Dir(execPath))

	argv := sudoArgv(execPath, os.Args[1:], os.Environ())

	if err := syscall.Exec(sudoPath, argv, os.Environ()); err != nil { //nolint:gosec // G204: intentional sudo re-exec
		return fmt.Errorf("exec sudo process: %w", err)
	}

	return nil
}

// sudoArgv builds the sudo command line for execPath. Set CMDQ_* variables
// and keptEnv are preserved so the elevated run sees the same settings and
// state directory.
func sudoArgv(execPath string, args, environ []string) []string {
	var preserve []string

	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}

		if strings.HasPrefix(name, "CMDQ_") || slices.Contains(keptEnv, name) {
			preserve = append(preserve, name)
		}
	}

	slices.Sort(preserve)
	preserve = slices.Compact(preserve)

	argv := []string{"sudo"}
	if len(preserve) > 0 {
		argv = append(argv, "--preserve-env="+strings.Join(preserve, ","))
	}

	argv = append(argv, "--", execPath)

	return append(argv, args...)
}
