package fixture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

const LockFilename = ".op-scenario.lock"

// ErrLedgerBusy is returned when another scenario holds the ledger.
var ErrLedgerBusy = errors.New("ledger is in use by another scenario")

// Lock is exclusive ownership of a ledger location for one scenario.
// Scenarios against the same ledger must never interleave.
//
// The lock is an OS advisory lock on a file in the ledger directory, so it
// is dropped by the kernel when the holding process dies. A lock file left
// behind by a crashed run does not block later runs.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the lock in dir. It fails fast with ErrLedgerBusy instead
// of waiting, since a concurrent holder is a misconfigured run.
func Acquire(dir string) (*Lock, error) {
	if dir == "" {
		return nil, fmt.Errorf("lock directory cannot be empty")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("lock directory %s is not a directory", dir)
	}

	path := filepath.Join(dir, LockFilename)
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		_ = fl.Unlock()
		return nil, fmt.Errorf("%w: %s held by pid %s", ErrLedgerBusy, path, holder(path))
	}

	// The pid is informational only; ownership is the advisory lock.
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("failed to write lock %s: %w", path, err)
	}
	return &Lock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	if l == nil || l.fl == nil {
		return ""
	}
	return l.fl.Path()
}

// Release drops the lock. Releasing twice is a no-op. The lock file is
// left in place; removing it would race with a waiting acquirer.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	fl := l.fl
	l.fl = nil
	if err := fl.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", fl.Path(), err)
	}
	return nil
}

func holder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return "unknown"
	}
	return strings.TrimSpace(string(data))
}
