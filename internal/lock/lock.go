package lock

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/hoover/setup/internal/errs"
)

// FileName is the advisory lock file under the installation home.
const FileName = ".hoover.lock"

// Lock is a process-wide exclusive advisory lock over the installation
// home. Mutating commands (bootstrap, upgrade, reconfigure) hold it for
// their whole duration so a concurrent invocation fails fast instead of
// interleaving manifest and config writes.
type Lock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates a lock for the given installation home.
func New(home string) *Lock {
	path := filepath.Join(home, FileName)
	return &Lock{path: path, flock: flock.New(path)}
}

// Acquire takes the lock without blocking. If another invocation holds it,
// the error carries errs.KindLock so the CLI exits with the lock-contention
// code.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errs.Wrap(errs.KindExecution, err, "create lock directory")
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return errs.Wrap(errs.KindExecution, err, "acquire lock %s", l.path)
	}
	if !acquired {
		return errs.New(errs.KindLock,
			"another hoover invocation is running (lock held at %s)", l.path)
	}
	l.locked = true
	return nil
}

// Release drops the lock. Safe to call when the lock was never acquired.
func (l *Lock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return errs.Wrap(errs.KindExecution, err, "release lock %s", l.path)
	}
	return nil
}
