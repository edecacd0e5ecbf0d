// Package lock provides the exclusive processing lock that decides which l2macd
// instance is allowed to reconcile. Instances that do not hold it stand by.
// The lock is a file lock, so it only excludes instances on the same host.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// DefaultName is the lock name shared by all l2macd instances.
const DefaultName = "ops_l2macd"

// FileLock is an advisory flock(2) lock on a file. Poll never blocks.
type FileLock struct {
	path string

	mu        sync.Mutex
	f         *os.File
	contended bool
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Poll tries to take the lock if it is not already held.
func (l *FileLock) Poll() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open lock file %q: %w", l.path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			l.contended = true
			return nil
		}
		return fmt.Errorf("failed to lock %q: %w", l.path, err)
	}
	l.f = f
	l.contended = false
	return nil
}

func (l *FileLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f != nil
}

// Contended reports whether the last attempt found the lock held by another
// process.
func (l *FileLock) Contended() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.contended
}

func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close()
		return fmt.Errorf("failed to unlock %q: %w", l.path, err)
	}
	return f.Close()
}
