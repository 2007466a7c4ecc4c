package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultLockTimeout bounds how long a writer waits for the capture
	// lock before failing with a retryable LockTimeoutError.
	DefaultLockTimeout = 5 * time.Second

	// lockPollInterval is the wait between acquisition attempts.
	lockPollInterval = 50 * time.Millisecond

	// lockStaleAfter is the age past which a lock file is considered
	// abandoned by a crashed writer and may be taken over.
	lockStaleAfter = 60 * time.Second
)

// CaptureLock coordinates writers across OS processes with lock files, one
// per (commitRef, namespace) pair so unrelated captures proceed in parallel.
type CaptureLock struct {
	dir     string
	timeout time.Duration
}

func NewCaptureLock(dir string, timeout time.Duration) *CaptureLock {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &CaptureLock{dir: dir, timeout: timeout}
}

// LockHandle releases one held lock.
type LockHandle struct {
	path string
}

// Release removes the lock file. Safe to call once per acquisition.
func (h *LockHandle) Release() error {
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (l *CaptureLock) lockPath(commitRef string, ns Namespace) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s-%s.lock", ns, ShortRef(commitRef)))
}

// Acquire takes the lock for one (commitRef, namespace) pair, polling up to
// the configured timeout.
func (l *CaptureLock) Acquire(commitRef string, ns Namespace) (*LockHandle, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return nil, &StorageError{Op: "create lock directory", Err: err}
	}

	handle, err := acquireLockFile(l.lockPath(commitRef, ns), l.timeout)
	if errors.Is(err, errLockWaitExpired) {
		return nil, &LockTimeoutError{
			CommitRef: commitRef,
			Namespace: ns,
			Waited:    l.timeout,
		}
	}
	return handle, err
}

// errLockWaitExpired signals the acquisition deadline passed; callers attach
// their own context before surfacing it.
var errLockWaitExpired = errors.New("lock wait expired")

// acquireLockFile polls for exclusive ownership of one lock file.
// O_CREATE|O_EXCL makes creation the atomic ownership test; the file carries
// the owner pid for diagnostics.
func acquireLockFile(path string, timeout time.Duration) (*LockHandle, error) {
	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d %d\n", os.Getpid(), time.Now().UnixMilli())
			if cerr := f.Close(); cerr != nil {
				_ = os.Remove(path)
				return nil, &StorageError{Op: "write lock file", Err: cerr}
			}
			return &LockHandle{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, &StorageError{Op: "create lock file", Err: err}
		}

		removeIfStale(path)

		if time.Now().After(deadline) {
			return nil, errLockWaitExpired
		}
		time.Sleep(lockPollInterval)
	}
}

// removeIfStale clears lock files whose writer died without releasing.
// A racing removal is fine: the subsequent O_EXCL create still decides
// ownership.
func removeIfStale(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) > lockStaleAfter {
		_ = os.Remove(path)
	}
}
