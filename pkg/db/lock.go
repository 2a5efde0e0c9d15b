package db

import (
	"fmt"
	"os"

	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
)

// InstanceLock guards a single database path against concurrent writers
// started from two separate processes: SQLite's own locking already
// prevents corruption, but a second process racing the first through
// migrations can otherwise apply the same version twice before the WAL
// lock is taken. The lock file lives alongside the database file.
type InstanceLock struct {
	path string
	file *lockedfile.File
}

// AcquireInstanceLock takes an exclusive lock on <dbPath>.lock, blocking
// until it is free.
func AcquireInstanceLock(dbPath string) (*InstanceLock, error) {
	path := dbPath + ".lock"
	f, err := lockedfile.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, cmerrors.Wrap(cmerrors.StoreUnavailable, err, "failed to acquire instance lock")
	}
	_, _ = f.WriteString(fmt.Sprintf("pid=%d\n", os.Getpid()))
	return &InstanceLock{path: path, file: f}, nil
}

// Release drops the lock.
func (l *InstanceLock) Release() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
