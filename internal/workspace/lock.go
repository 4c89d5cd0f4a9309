package workspace

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	asterrors "github.com/astdb-dev/astdb/internal/errors"
)

// Lock is the workspace's single-process advisory lock, backed by the
// `.astdb/.lock` file. The metadata store acquires it once at
// initialize and releases it at shutdown, so two core processes never
// open the same workspace concurrently.
type Lock struct {
	path   string
	fl     *flock.Flock
	locked bool
}

// NewLock returns a Lock for the given path. TryLock creates the parent
// directory if it is missing.
func NewLock(path string) *Lock {
	return &Lock{path: path, fl: flock.New(path)}
}

// Path returns the lock file's path.
func (l *Lock) Path() string { return l.path }

// TryLock attempts to acquire the lock without blocking. false, nil
// means another process already holds it.
func (l *Lock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, asterrors.FileSystem(err)
	}
	acquired, err := l.fl.TryLock()
	if err != nil {
		return false, asterrors.FileSystem(err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked Lock.
func (l *Lock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return asterrors.FileSystem(err)
	}
	l.locked = false
	return nil
}

// Locked reports whether this Lock currently holds the lock.
func (l *Lock) Locked() bool { return l.locked }
