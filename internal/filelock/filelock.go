// Package filelock provides advisory cross-process file locks with a short
// bounded retry. The platform primitive (flock on unix, LockFileEx on
// windows) is selected at build time; callers only see Locker.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLockTimeout is returned when the lock is still held by someone else
// after every attempt.
var ErrLockTimeout = errors.New("filelock: lock not acquired")

// errWouldBlock is what platform backends return for a contended lock.
var errWouldBlock = errors.New("filelock: would block")

// Release drops a held lock.
type Release func() error

// Locker acquires shared or exclusive locks on one resource.
type Locker interface {
	Lock(ctx context.Context, exclusive bool) (Release, error)
}

// Defaults for New.
const (
	DefaultAttempts = 3
	DefaultBackoff  = 100 * time.Millisecond
)

// FileLock locks a sidecar file next to the protected resource, so the
// resource itself can be replaced by rename while the lock is held.
type FileLock struct {
	path     string
	attempts int
	backoff  time.Duration
}

// Option configures a FileLock.
type Option func(*FileLock)

// WithAttempts sets how many times acquisition is tried.
func WithAttempts(n int) Option {
	return func(l *FileLock) {
		if n > 0 {
			l.attempts = n
		}
	}
}

// WithBackoff sets the pause between attempts.
func WithBackoff(d time.Duration) Option {
	return func(l *FileLock) {
		if d >= 0 {
			l.backoff = d
		}
	}
}

// New returns a lock guarding resource. The lock file is resource + ".lock".
func New(resource string, opts ...Option) *FileLock {
	l := &FileLock{
		path:     resource + ".lock",
		attempts: DefaultAttempts,
		backoff:  DefaultBackoff,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// Lock acquires the lock. It never blocks indefinitely: after the
// configured attempts it returns ErrLockTimeout.
func (l *FileLock) Lock(ctx context.Context, exclusive bool) (Release, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err := tryLock(f, exclusive)
		if err == nil {
			return func() error {
				uerr := unlock(f)
				cerr := f.Close()
				return errors.Join(uerr, cerr)
			}, nil
		}
		if !errors.Is(err, errWouldBlock) {
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", l.path, err)
		}
		if attempt >= l.attempts {
			f.Close()
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(l.backoff):
		}
	}
}

var _ Locker = (*FileLock)(nil)
