//go:build windows

package update

import "errors"

// NeedsElevation always returns false on Windows; there is no auto-elevation.
func NeedsElevation(string) bool {
	return false
}

// ReExecWithSudo is not supported on Windows.
func ReExecWithSudo() error {
	return errors.New(`automatic elevation is not supported on Windows; rerun "cmdq update" from an Administrator prompt`)
}
