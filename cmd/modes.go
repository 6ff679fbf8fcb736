package cmd

import (
	"context"
	"fmt"

	"sqlite-backup/internal/backup"
	"sqlite-backup/internal/snapshot"
)

// ensureDirectory creates the backup directory and, unless silent, reports it
func (a *app) ensureDirectory(silent bool) error {
	if err := a.service.EnsureDirectory(); err != nil {
		a.display.Failure(fmt.Sprintf("Failed to create backup directory: %v", err))
		return errFailed
	}
	if !silent {
		a.display.Success("Backup directory: " + a.config.BackupDir)
	}
	return nil
}

func (a *app) createBackup(ctx context.Context, compress bool) error {
	snap, err := a.service.CreateBackup(ctx, compress)
	if snap != nil {
		a.reportBackup(snap)
	}
	if err != nil {
		a.reportBackupError(snap, err)
		return errFailed
	}
	return nil
}

func (a *app) reportBackup(snap *snapshot.Snapshot) {
	if snap.Compressed() {
		a.display.Success(fmt.Sprintf("Database backed up (compressed): %s (%.2f MB)", snap.Path, snap.SizeMB()))
		return
	}
	a.display.Success(fmt.Sprintf("Database backed up: %s (%.2f MB)", snap.Path, snap.SizeMB()))
}

// reportBackupError prints a failed backup. snap is set when the snapshot
// was written but a later step such as the mirror upload failed.
func (a *app) reportBackupError(snap *snapshot.Snapshot, err error) {
	switch {
	case backup.IsKind(err, backup.BackupErrorTypeSourceNotFound):
		a.display.Failure("Database not found at " + a.config.DatabasePath)
	case snap != nil:
		a.display.Warning(fmt.Sprintf("Mirror upload failed: %v", err))
	default:
		a.display.Failure(fmt.Sprintf("Backup failed: %v", err))
	}
}

func (a *app) restoreBackup(ctx context.Context, path string) error {
	if err := a.service.RestoreBackup(ctx, path); err != nil {
		if backup.IsKind(err, backup.BackupErrorTypeBackupNotFound) {
			a.display.Failure("Backup file not found: " + path)
		} else {
			a.display.Failure(fmt.Sprintf("Restore failed: %v", err))
		}
		return errFailed
	}

	if snapshot.CompressionFromPath(path) != snapshot.CompressionTypeNone {
		a.display.Success("Database restored from compressed backup: " + path)
	} else {
		a.display.Success("Database restored from backup: " + path)
	}
	return nil
}

// cleanupBackups reports each deletion and a summary. Per-file failures are
// warnings; the command still succeeds once the sweep completes.
func (a *app) cleanupBackups(ctx context.Context, days int) error {
	result, err := a.service.CleanupBackups(ctx, days)
	if err != nil {
		a.display.Failure(fmt.Sprintf("Cleanup failed: %v", err))
		return errFailed
	}
	a.reportCleanup(result)
	return nil
}

func (a *app) reportCleanup(result *backup.CleanupResult) {
	if result.DirectoryMissing {
		a.display.Info("Backup directory doesn't exist yet")
		return
	}

	verb := "Deleted"
	if result.DryRun {
		verb = "Would delete"
	}
	for _, s := range result.Deleted {
		a.display.Detail(verb + ": " + s.Name)
	}
	for _, name := range result.RemoteDeleted {
		a.display.Detail(verb + " from mirror: " + name)
	}
	for _, f := range result.Failures {
		if f.Remote {
			a.display.Warning(fmt.Sprintf("Failed to delete %s from mirror: %s", f.Name, f.Error))
			continue
		}
		a.display.Warning(fmt.Sprintf("Failed to delete %s: %s", f.Name, f.Error))
	}

	if result.DryRun {
		a.display.Success(fmt.Sprintf("Dry run complete: %d old backup(s) would be deleted", result.Count()))
		return
	}
	a.display.Success(fmt.Sprintf("Cleanup complete: %d old backup(s) deleted", result.Count()))
}

func (a *app) listBackups(ctx context.Context) error {
	snaps, err := a.service.ListBackups(ctx)
	if err != nil {
		a.display.Failure(fmt.Sprintf("Failed to list backups: %v", err))
		return errFailed
	}
	if err := a.display.PrintSnapshots(a.config.BackupDir, snaps); err != nil {
		return setupError(err)
	}
	return nil
}
