//go:build !unix

package stream

func isHangup(error) bool {
	return false
}
