//go:build !windows

package virfon

import (
	"os"
	"syscall"
)

// processAlive reports whether pid still exists and is not a zombie reaped
// by the launcher.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
