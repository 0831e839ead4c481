package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
)

// LockFileName is created in the artifact directory while a build runs.
const LockFileName = ".build.lock"

// FileLock serializes artifact builds across processes. Two
// `cinesphere index` runs against one directory would otherwise interleave
// their renames and leave a manifest describing the other run's matrix.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock for the artifact directory dir.
func NewFileLock(dir string) *FileLock {
	p := filepath.Join(dir, LockFileName)
	return &FileLock{path: p, flock: flock.New(p)}
}

// Lock blocks until the lock is held.
func (l *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire build lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock takes the lock without waiting. It returns false if another
// process holds it.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire build lock: %w", err)
	}
	l.locked = ok
	return ok, nil
}

// MustTryLock is TryLock that reports a held lock as ErrCodeArtifactsLocked.
func (l *FileLock) MustTryLock() error {
	ok, err := l.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return cerrors.New(cerrors.ErrCodeArtifactsLocked,
			"another build is writing to "+filepath.Dir(l.path), nil).
			WithDetail("lock", l.path).
			WithSuggestion("Wait for the other `cinesphere index` run to finish")
	}
	return nil
}

// Unlock releases the lock. Calling it when not locked is a no-op.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release build lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// IsLocked reports whether this FileLock holds the lock.
func (l *FileLock) IsLocked() bool { return l.locked }
