package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// LockFilename is the name of the build lock inside the index directory.
const LockFilename = "build.lock"

// ErrLockTimeout indicates the build lock could not be acquired in time.
var ErrLockTimeout = errors.New("index build lock timed out")

// BuildLock serializes index builds across processes sharing an index
// directory. It uses flock(2), so the lock is released if the holder dies.
type BuildLock struct {
	path string
	file *os.File
}

// NewBuildLock creates a lock backed by the file at path.
func NewBuildLock(path string) *BuildLock {
	return &BuildLock{path: path}
}

// TryLock acquires the lock without blocking.
// It reports false when another process holds it.
func (l *BuildLock) TryLock() (bool, error) {
	if err := l.open(); err != nil {
		return false, err
	}

	ok, err := l.flock()
	if err != nil || !ok {
		l.close()
	}
	return ok, err
}

// Lock blocks until the lock is acquired, timeout expires or ctx is done.
func (l *BuildLock) Lock(ctx context.Context, timeout time.Duration) error {
	if err := l.open(); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	wait := 10 * time.Millisecond

	for {
		ok, err := l.flock()
		if err != nil {
			l.close()
			return err
		}
		if ok {
			return nil
		}

		if time.Now().After(deadline) {
			l.close()
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			l.close()
			return ctx.Err()
		case <-time.After(wait):
			wait = min(wait*2, 500*time.Millisecond)
		}
	}
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *BuildLock) Unlock() error {
	if !l.held() {
		return nil
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close failed: %w", closeErr)
	}
	return nil
}

// held reports whether this instance holds the lock.
func (l *BuildLock) held() bool {
	return l.file != nil
}

// Path returns the lock file path.
func (l *BuildLock) Path() string {
	return l.path
}

func (l *BuildLock) flock() (bool, error) {
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return false, nil
	}
	return false, fmt.Errorf("flock failed: %w", err)
}

func (l *BuildLock) open() error {
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

func (l *BuildLock) close() {
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}
