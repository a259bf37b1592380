//go:build !linux

package search

func withPriority(_ int, fn func()) {
	fn()
}

func lockPriority(int) {}
