//go:build !unix

package lob

// Platforms without a process creation mask rely on the mode passed to
// OpenFile alone.
func lowerUmask() (restore func()) {
	return func() {}
}
