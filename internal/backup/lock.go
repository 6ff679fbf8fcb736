package backup

import (
	"path/filepath"

	"github.com/gofrs/flock"
)

// acquireLock takes the advisory lock on the backup directory when locking
// is enabled. The returned function releases it, and is a no-op otherwise.
// A lock held by another process fails fast with CONFLICT_ERROR.
func (m *Manager) acquireLock() (func(), error) {
	if !m.config.Lock {
		return func() {}, nil
	}

	path := filepath.Join(m.config.BackupDir, lockFileName)
	lock := flock.New(path)

	locked, err := lock.TryLock()
	if err != nil {
		return nil, NewIOError("failed to acquire backup lock", err).WithContext("path", path)
	}
	if !locked {
		return nil, NewConflictError("another backup operation holds the lock", nil).WithContext("path", path)
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			m.logger.WithField("path", path).Warnf("Failed to release backup lock: %v", err)
		}
	}, nil
}
