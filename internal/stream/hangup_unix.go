//go:build unix

package stream

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isHangup reports the EIO a pty master returns once every slave fd is closed.
func isHangup(err error) bool {
	return errors.Is(err, unix.EIO)
}
