//go:build !unix

package instruments

import "os"

func killProcessGroup(p *os.Process) error {
	return p.Kill()
}
