//go:build linux

package search

import (
	"log/slog"
	"runtime"

	"golang.org/x/sys/unix"
)

// withPriority runs fn on a dedicated OS thread whose nice value is set
// to nice. The previous value is restored afterwards; if that fails the
// goroutine exits still locked, and the runtime discards the thread.
func withPriority(nice int, fn func()) {
	if nice == 0 {
		fn()
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()

		tid := unix.Gettid()
		// getpriority(2) reports 20 - nice.
		raw, err := unix.Getpriority(unix.PRIO_PROCESS, tid)
		if err != nil {
			runtime.UnlockOSThread()
			fn()
			return
		}
		prev := 20 - raw

		if err := unix.Setpriority(unix.PRIO_PROCESS, tid, nice); err != nil {
			slog.Debug("Could not change thread priority", "nice", nice, "error", err)
			runtime.UnlockOSThread()
			fn()
			return
		}

		fn()

		if err := unix.Setpriority(unix.PRIO_PROCESS, tid, prev); err == nil {
			runtime.UnlockOSThread()
		}
	}()
	<-done
}

// lockPriority sets the nice value of the current OS thread for the rest
// of the calling goroutine, which must not unlock the thread again.
func lockPriority(nice int) {
	if nice == 0 {
		return
	}
	runtime.LockOSThread()
	if err := unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), nice); err != nil {
		slog.Debug("Could not change thread priority", "nice", nice, "error", err)
	}
}
