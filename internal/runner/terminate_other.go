//go:build !unix

package runner

import "os"

func terminate(p *os.Process) error {
	return p.Kill()
}
