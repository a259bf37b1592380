package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrLockTimeout indicates the index lock was not acquired in time.
var ErrLockTimeout = errors.New("index lock acquisition timed out")

// IndexLock is an exclusive cross-process lock over one index directory,
// held for the duration of a rebuild or update. It uses flock(2), so the
// lock is released when the process exits.
type IndexLock struct {
	path string
	file *os.File
}

// NewIndexLock creates the lock guarding the index at indexPath.
func NewIndexLock(indexPath string) *IndexLock {
	return &IndexLock{path: indexPath + ".lock"}
}

// TryLock acquires the lock without blocking. It returns false when
// another process holds it.
func (l *IndexLock) TryLock() (bool, error) {
	if err := l.open(); err != nil {
		return false, err
	}

	acquired, err := l.flock()
	if err != nil || !acquired {
		l.release()
	}
	return acquired, err
}

// Lock acquires the lock, polling until timeout expires or ctx is canceled.
func (l *IndexLock) Lock(ctx context.Context, timeout time.Duration) error {
	if err := l.open(); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	pollInterval := 10 * time.Millisecond
	for {
		acquired, err := l.flock()
		if err != nil {
			l.release()
			return err
		}
		if acquired {
			return nil
		}
		if time.Now().After(deadline) {
			l.release()
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			l.release()
			return ctx.Err()
		case <-time.After(pollInterval):
			pollInterval = min(pollInterval*2, 500*time.Millisecond)
		}
	}
}

// Unlock releases the lock. Unlocking an unlocked lock is a no-op.
func (l *IndexLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("index unlock failed: %w", err)
	}
	return closeErr
}

// IsLocked returns true if this instance holds the lock.
func (l *IndexLock) IsLocked() bool {
	return l.file != nil
}

func (l *IndexLock) flock() (bool, error) {
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return false, nil
	}
	return false, fmt.Errorf("flock failed: %w", err)
}

func (l *IndexLock) open() error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	l.file = file
	return nil
}

func (l *IndexLock) release() {
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}
