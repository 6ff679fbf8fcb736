package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackupError_Error(t *testing.T) {
	err := NewIOError("failed to copy database", fs.ErrPermission)
	assert.Equal(t, "IO_FAILURE: failed to copy database (caused by: permission denied)", err.Error())
	assert.ErrorIs(t, err, fs.ErrPermission)

	plain := NewConflictError("backup already exists: db_x.sqlite3", nil)
	assert.Equal(t, "CONFLICT_ERROR: backup already exists: db_x.sqlite3", plain.Error())
}

func TestBackupError_WithContext(t *testing.T) {
	err := NewSourceNotFoundError("/srv/db.sqlite3")
	assert.Equal(t, "/srv/db.sqlite3", err.Context["path"])

	err = (&BackupError{Type: BackupErrorTypeIO}).WithContext("k", 1)
	assert.Equal(t, 1, err.Context["k"])
}

func TestIsKind(t *testing.T) {
	wrapped := fmt.Errorf("restore: %w", NewBackupNotFoundError("/b/x.gz"))

	assert.True(t, IsKind(wrapped, BackupErrorTypeBackupNotFound))
	assert.False(t, IsKind(wrapped, BackupErrorTypeSourceNotFound))
	assert.False(t, IsKind(errors.New("plain"), BackupErrorTypeIO))
	assert.False(t, IsKind(nil, BackupErrorTypeIO))

	assert.Equal(t, BackupErrorTypeBackupNotFound, KindOf(wrapped))
	assert.Equal(t, BackupErrorType(""), KindOf(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{NewIOError("x", nil), true},
		{NewStorageError("x", nil), true},
		{NewConflictError("x", nil), true},
		{NewSourceNotFoundError("/x"), false},
		{NewCorruptionError("x", nil), false},
		{errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.False(t, errs.HasErrors())
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("backup_dir", "backup directory is required", nil)
	assert.Equal(t, "validation error for field 'backup_dir': backup directory is required", errs.Error())

	errs.Add("method", "method must be copy or vacuum", "rsync")
	assert.True(t, errs.HasErrors())
	assert.Contains(t, errs.Error(), "2 validation errors")
	assert.Contains(t, errs.Error(), "(and 1 more)")
}
