// Package backup creates, restores, verifies and expires timestamped snapshots
// of a single SQLite database file.
//
// Snapshots live flat in one backup directory and are named
// db_YYYY-MM-DD_HHMMSS.sqlite3, optionally followed by a codec extension
// (.gz, .zst, .lz4). Every write goes to a hidden temporary file in the
// destination directory and is renamed into place only after it has been
// fully written and synced, so a failed run never leaves a partial snapshot
// or a half-restored database behind.
//
// Core Components:
//
// - Manager: implements Service and owns the configuration, clock and collaborators
// - CompressionManager: streaming gzip, zstd and lz4 codecs
// - retention: age-based expiry with an optional minimum keep count
// - mirror: optional off-site copy through storage.Mirror
//
// Example usage:
//
//	cfg := backup.DefaultConfig(baseDir)
//	manager, err := backup.NewManager(cfg, backup.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//
//	snap, err := manager.CreateBackup(ctx, true)
//	if err != nil {
//		return fmt.Errorf("backup failed: %w", err)
//	}
//
//	result, err := manager.CleanupBackups(ctx, 7)
//	if err != nil {
//		return err
//	}
//	fmt.Printf("%s kept, %d deleted\n", snap.Name, len(result.Deleted))
package backup
