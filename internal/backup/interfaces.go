package backup

import (
	"context"

	"sqlite-backup/internal/snapshot"
)

// Service is the set of snapshot operations exposed to the CLI and scheduler
type Service interface {
	// EnsureDirectory creates the backup directory if it does not exist
	EnsureDirectory() error
	// CreateBackup writes a new snapshot of the live database
	CreateBackup(ctx context.Context, compress bool) (*snapshot.Snapshot, error)
	// RestoreBackup replaces the live database with a snapshot's content
	RestoreBackup(ctx context.Context, snapshotPath string) error
	// CleanupBackups deletes snapshots older than retentionDays
	CleanupBackups(ctx context.Context, retentionDays int) (*CleanupResult, error)
	// ListBackups returns snapshots newest first
	ListBackups(ctx context.Context) ([]*snapshot.Snapshot, error)
	// VerifyBackup runs an integrity check on a snapshot
	VerifyBackup(ctx context.Context, snapshotPath string) error
	// Config returns the effective configuration
	Config() Config
}

// Verifier checks that a file is a healthy SQLite database
type Verifier interface {
	Verify(ctx context.Context, path string) error
}

// Exporter writes a transactionally consistent copy of a database file
type Exporter interface {
	Export(ctx context.Context, src, dest string) error
}

var _ Service = (*Manager)(nil)
