//go:build unix

package lob

import "golang.org/x/sys/unix"

// lowerUmask drops the process creation mask to 022 and returns a function
// restoring the previous mask. The mask is process-wide, so callers restore
// it immediately after the file create it protects.
func lowerUmask() (restore func()) {
	old := unix.Umask(0o022)
	return func() { unix.Umask(old) }
}
