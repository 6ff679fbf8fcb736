package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"sqlite-backup/internal/logging"
	"sqlite-backup/internal/snapshot"
	"sqlite-backup/internal/sqlite"
	"sqlite-backup/internal/storage"
)

const lockFileName = ".sqlite-backup.lock"

// Manager creates, restores, lists and prunes snapshots of one database file
type Manager struct {
	config         Config
	logger         *logging.Logger
	compressionMgr *CompressionManager
	verifier       Verifier
	exporter       Exporter
	mirror         storage.Mirror
	now            func() time.Time
	remove         func(string) error
}

// Option customises a Manager
type Option func(*Manager)

// WithLogger sets the structured logger
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces time.Now, which names snapshots and computes retention cutoffs
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRemover replaces os.Remove, which cleanup uses to delete expired snapshots
func WithRemover(remove func(string) error) Option {
	return func(m *Manager) {
		if remove != nil {
			m.remove = remove
		}
	}
}

// WithVerifier replaces the SQLite integrity checker
func WithVerifier(v Verifier) Option {
	return func(m *Manager) {
		m.verifier = v
	}
}

// WithExporter replaces the VACUUM INTO exporter used by the vacuum method
func WithExporter(e Exporter) Option {
	return func(m *Manager) {
		m.exporter = e
	}
}

// WithMirror uploads every new snapshot to mirror and lets cleanup prune it
func WithMirror(mirror storage.Mirror) Option {
	return func(m *Manager) {
		m.mirror = mirror
	}
}

// NewManager validates config and returns a Manager
func NewManager(config Config, opts ...Option) (*Manager, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid backup configuration", err)
	}

	sqliteVerifier := sqlite.NewVerifier()
	m := &Manager{
		config:         config,
		logger:         logging.NewNopLogger(),
		compressionMgr: NewCompressionManager(),
		verifier:       sqliteVerifier,
		exporter:       sqliteVerifier,
		now:            time.Now,
		remove:         os.Remove,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the effective configuration
func (m *Manager) Config() Config {
	return m.config
}

// EnsureDirectory creates the backup directory, including parents. Idempotent.
func (m *Manager) EnsureDirectory() error {
	if err := os.MkdirAll(m.config.BackupDir, m.config.DirPermissions); err != nil {
		return NewIOError("failed to create backup directory", err).WithContext("path", m.config.BackupDir)
	}
	return nil
}

// CreateBackup writes a snapshot of the live database. compress selects the
// configured algorithm; otherwise the snapshot is a byte-for-byte copy.
func (m *Manager) CreateBackup(ctx context.Context, compress bool) (*snapshot.Snapshot, error) {
	compression := CompressionTypeNone
	if compress {
		ct, err := m.config.Compression.Type()
		if err != nil {
			return nil, NewConfigurationError("invalid compression algorithm", err)
		}
		compression = ct
	}
	return m.CreateBackupWithCompression(ctx, compression)
}

// CreateBackupWithCompression writes a snapshot using the given codec.
//
// The data goes to a hidden temp file that is renamed into place only once
// complete, so a failure never leaves a partial file under a snapshot name.
// If a mirror is configured and the upload fails, the local snapshot is
// returned together with a STORAGE_ERROR.
// With VerifyOnCreate, a snapshot that fails the integrity check is removed;
// other verification errors leave it in place.
func (m *Manager) CreateBackupWithCompression(ctx context.Context, compression CompressionType) (snap *snapshot.Snapshot, err error) {
	start := time.Now()
	done := m.logger.LogOperationStart("backup_create", map[string]interface{}{
		"source":      m.config.DatabasePath,
		"compression": string(compression),
		"method":      string(m.config.Method),
	})
	defer func() { done(err) }()

	if !compression.IsValid() {
		return nil, NewValidationError(fmt.Sprintf("unsupported compression algorithm: %s", compression), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, NewIOError("backup cancelled", err)
	}

	srcInfo, err := os.Stat(m.config.DatabasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewSourceNotFoundError(m.config.DatabasePath)
		}
		return nil, NewIOError("failed to stat database", err).WithContext("path", m.config.DatabasePath)
	}
	if !srcInfo.Mode().IsRegular() {
		return nil, NewIOError("database path is not a regular file", nil).WithContext("path", m.config.DatabasePath)
	}

	if err := m.EnsureDirectory(); err != nil {
		return nil, err
	}
	unlock, err := m.acquireLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	name := snapshot.FileName(m.now(), compression)
	target := filepath.Join(m.config.BackupDir, name)

	exists, err := fileExists(target)
	if err != nil {
		return nil, NewIOError("failed to stat backup target", err).WithContext("path", target)
	}
	if exists {
		return nil, NewConflictError("backup already exists: "+name, nil).WithContext("path", target)
	}

	source := m.config.DatabasePath
	if m.config.Method == MethodVacuum {
		exported, cleanup, err := m.exportConsistentCopy(ctx, name)
		defer cleanup()
		if err != nil {
			return nil, err
		}
		source = exported
	}

	if err := m.writeSnapshot(ctx, source, target, srcInfo, compression); err != nil {
		m.logger.LogBackupCreated(m.config.DatabasePath, target, 0, time.Since(start), err)
		return nil, err
	}

	if m.config.Method == MethodCopy {
		if after, statErr := os.Stat(m.config.DatabasePath); statErr == nil && sourceChanged(srcInfo, after) {
			m.logger.WithField("path", m.config.DatabasePath).
				Warn("Database changed while it was being copied; consider method vacuum for live databases")
		}
	}

	if m.config.Validation.VerifyOnCreate {
		if verr := m.VerifyBackup(ctx, target); verr != nil {
			// only a snapshot that failed the check is discarded
			if IsKind(verr, BackupErrorTypeCorruption) {
				os.Remove(target)
			}
			return nil, verr
		}
	}

	snap, err = snapshot.Stat(target)
	if err != nil {
		return nil, NewIOError("failed to stat new backup", err).WithContext("path", target)
	}
	m.logger.LogBackupCreated(m.config.DatabasePath, target, snap.Size, time.Since(start), nil)

	if m.mirror != nil {
		if uerr := m.mirror.Upload(ctx, target); uerr != nil {
			m.logger.LogMirror(m.mirror.Name(), "upload", name, uerr)
			return snap, NewStorageError("backup created but mirror upload failed", uerr).
				WithContext("mirror", m.mirror.Name())
		}
		m.logger.LogMirror(m.mirror.Name(), "upload", name, nil)
	}

	return snap, nil
}

// writeSnapshot copies or compresses source into target atomically.
func (m *Manager) writeSnapshot(ctx context.Context, source, target string, srcInfo os.FileInfo, compression CompressionType) error {
	perm := os.FileMode(0o644)
	if compression == CompressionTypeNone {
		perm = srcInfo.Mode().Perm()
	}

	out, err := createAtomic(target, perm)
	if err != nil {
		return NewIOError("failed to create backup file", err).WithContext("path", target)
	}
	defer out.Abort()

	if compression == CompressionTypeNone {
		if _, err := copyFileContents(out, source); err != nil {
			return NewIOError("failed to copy database", err).WithContext("path", source)
		}
	} else {
		in, err := os.Open(source)
		if err != nil {
			return NewIOError("failed to open database", err).WithContext("path", source)
		}
		_, err = m.compressionMgr.Compress(out, in, compression, m.config.Compression.Level)
		in.Close()
		if err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return NewIOError("backup cancelled", err)
	}
	if err := out.Commit(); err != nil {
		return NewIOError("failed to finalize backup file", err).WithContext("path", target)
	}

	if compression == CompressionTypeNone {
		if err := preserveMetadata(target, srcInfo); err != nil {
			m.logger.WithField("path", target).Warnf("Failed to preserve file metadata: %v", err)
		}
	}
	return nil
}

// exportConsistentCopy runs VACUUM INTO a hidden file in the backup directory.
// The returned cleanup removes the export and anything SQLite left beside it.
func (m *Manager) exportConsistentCopy(ctx context.Context, name string) (string, func(), error) {
	exportPath := filepath.Join(m.config.BackupDir, "."+name+".vacuum")
	cleanup := func() {
		os.Remove(exportPath)
		for _, sidecar := range journalSidecars(exportPath) {
			os.Remove(sidecar)
		}
	}
	cleanup()

	if m.exporter == nil {
		return "", cleanup, NewConfigurationError("vacuum method requires an exporter", nil)
	}
	if err := m.exporter.Export(ctx, m.config.DatabasePath, exportPath); err != nil {
		return "", cleanup, NewIOError("failed to export consistent copy", err).WithContext("path", m.config.DatabasePath)
	}
	return exportPath, cleanup, nil
}

// RestoreBackup replaces the live database with the content of a snapshot.
// Compressed snapshots are recognised by extension. The new content is
// written beside the live file and renamed over it, so a failed restore
// leaves the live database as it was.
func (m *Manager) RestoreBackup(ctx context.Context, snapshotPath string) (err error) {
	start := time.Now()
	defer func() {
		m.logger.LogRestore(snapshotPath, m.config.DatabasePath, time.Since(start), err)
	}()

	info, err := os.Stat(snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return NewBackupNotFoundError(snapshotPath)
		}
		return NewIOError("failed to stat backup file", err).WithContext("path", snapshotPath)
	}
	if !info.Mode().IsRegular() {
		return NewBackupNotFoundError(snapshotPath).WithContext("reason", "not a regular file")
	}
	if err := ctx.Err(); err != nil {
		return NewIOError("restore cancelled", err)
	}

	if m.config.Lock {
		if err := m.EnsureDirectory(); err != nil {
			return err
		}
	}
	unlock, err := m.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	compression := snapshot.CompressionFromPath(snapshotPath)

	perm := info.Mode().Perm()
	if compression != CompressionTypeNone {
		perm = 0o644
		if live, statErr := os.Stat(m.config.DatabasePath); statErr == nil {
			perm = live.Mode().Perm()
		}
	}

	out, err := createAtomic(m.config.DatabasePath, perm)
	if err != nil {
		return NewIOError("failed to create restore file", err).WithContext("path", m.config.DatabasePath)
	}
	defer out.Abort()

	in, err := os.Open(snapshotPath)
	if err != nil {
		return NewIOError("failed to open backup file", err).WithContext("path", snapshotPath)
	}
	_, err = m.compressionMgr.Decompress(out, in, compression)
	in.Close()
	if err != nil {
		return err
	}

	if m.config.Validation.VerifyOnRestore && m.verifier != nil {
		if err := out.Sync(); err != nil {
			return NewIOError("failed to sync restore file", err)
		}
		if verr := m.verifier.Verify(ctx, out.Name()); verr != nil {
			return NewCorruptionError("restored content failed integrity check", verr).WithContext("path", snapshotPath)
		}
	}

	if err := ctx.Err(); err != nil {
		return NewIOError("restore cancelled", err)
	}
	if err := out.Commit(); err != nil {
		return NewIOError("failed to replace database", err).WithContext("path", m.config.DatabasePath)
	}

	if compression == CompressionTypeNone {
		if err := preserveMetadata(m.config.DatabasePath, info); err != nil {
			m.logger.WithField("path", m.config.DatabasePath).Warnf("Failed to preserve file metadata: %v", err)
		}
	}

	if m.config.JournalCleanupEnabled() {
		for _, sidecar := range journalSidecars(m.config.DatabasePath) {
			if rmErr := os.Remove(sidecar); rmErr != nil && !os.IsNotExist(rmErr) {
				m.logger.WithField("path", sidecar).Warnf("Failed to remove stale journal file: %v", rmErr)
			}
		}
	}

	return nil
}

// CleanupBackups deletes snapshots whose modification time is more than
// retentionDays before now. Individual delete failures are collected in the
// result and do not stop the sweep. A missing backup directory is not an error.
func (m *Manager) CleanupBackups(ctx context.Context, retentionDays int) (*CleanupResult, error) {
	if retentionDays <= 0 {
		return nil, NewValidationError("retention days must be positive", nil).WithContext("days", retentionDays)
	}

	start := time.Now()
	cutoff := retentionCutoff(m.now(), retentionDays)
	result := &CleanupResult{
		RetentionDays: retentionDays,
		Cutoff:        cutoff,
		DryRun:        m.config.Retention.DryRun,
	}

	if _, err := os.Stat(m.config.BackupDir); err != nil {
		if os.IsNotExist(err) {
			result.DirectoryMissing = true
			return result, nil
		}
		return nil, NewIOError("failed to stat backup directory", err).WithContext("path", m.config.BackupDir)
	}

	unlock, err := m.acquireLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	snaps, err := m.scan()
	if err != nil {
		return nil, err
	}

	expired, kept := selectExpired(snaps, cutoff, m.config.Retention.MinKeep)
	result.Kept = kept

	for _, s := range expired {
		if err := ctx.Err(); err != nil {
			return result, NewIOError("cleanup cancelled", err)
		}
		if result.DryRun {
			m.logger.LogRetentionDeletion(s.Name, s.ModTime, true, nil)
			result.Deleted = append(result.Deleted, s)
			continue
		}
		if err := m.remove(s.Path); err != nil {
			m.logger.LogRetentionDeletion(s.Name, s.ModTime, false, err)
			result.Failures = append(result.Failures, CleanupFailure{Name: s.Name, Error: err.Error()})
			continue
		}
		m.logger.LogRetentionDeletion(s.Name, s.ModTime, false, nil)
		result.Deleted = append(result.Deleted, s)
	}

	if m.mirror != nil && m.config.Mirror.Prune {
		m.pruneMirror(ctx, cutoff, kept, result)
	}

	m.logger.LogCleanup(retentionDays, len(result.Deleted), len(result.Kept), len(result.Failures), time.Since(start))
	return result, nil
}

// ListBackups returns every snapshot in the backup directory, newest first.
// A missing directory yields an empty list.
func (m *Manager) ListBackups(ctx context.Context) ([]*snapshot.Snapshot, error) {
	snaps, err := m.scan()
	if err != nil {
		return nil, err
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name > snaps[j].Name })
	return snaps, nil
}

// VerifyBackup runs an integrity check on a snapshot, decompressing it to a
// temp file first when needed.
func (m *Manager) VerifyBackup(ctx context.Context, snapshotPath string) error {
	info, err := os.Stat(snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return NewBackupNotFoundError(snapshotPath)
		}
		return NewIOError("failed to stat backup file", err).WithContext("path", snapshotPath)
	}
	if !info.Mode().IsRegular() {
		return NewBackupNotFoundError(snapshotPath).WithContext("reason", "not a regular file")
	}
	if m.verifier == nil {
		return NewConfigurationError("no integrity verifier configured", nil)
	}

	path := snapshotPath
	if compression := snapshot.CompressionFromPath(snapshotPath); compression != CompressionTypeNone {
		tmp, err := os.CreateTemp("", ".sqlite-backup-verify-*.sqlite3")
		if err != nil {
			return NewIOError("failed to create temp file", err)
		}
		defer os.Remove(tmp.Name())

		in, err := os.Open(snapshotPath)
		if err != nil {
			tmp.Close()
			return NewIOError("failed to open backup file", err).WithContext("path", snapshotPath)
		}
		_, err = m.compressionMgr.Decompress(tmp, in, compression)
		in.Close()
		if cerr := tmp.Close(); err == nil && cerr != nil {
			err = NewIOError("failed to write temp file", cerr)
		}
		if err != nil {
			if IsKind(err, BackupErrorTypeCompression) {
				return NewCorruptionError("backup could not be decompressed", err).WithContext("path", snapshotPath)
			}
			return err
		}
		path = tmp.Name()
	}

	if err := m.verifier.Verify(ctx, path); err != nil {
		var integrityErr *sqlite.IntegrityError
		if errors.As(err, &integrityErr) {
			return NewCorruptionError("backup failed integrity check", err).WithContext("path", snapshotPath)
		}
		return NewIOError("failed to check backup integrity", err).WithContext("path", snapshotPath)
	}
	return nil
}

// scan reads the backup directory and returns the entries that are snapshots.
func (m *Manager) scan() ([]*snapshot.Snapshot, error) {
	entries, err := os.ReadDir(m.config.BackupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*snapshot.Snapshot{}, nil
		}
		return nil, NewIOError("failed to read backup directory", err).WithContext("path", m.config.BackupDir)
	}

	snaps := make([]*snapshot.Snapshot, 0, len(entries))
	for _, entry := range entries {
		if !snapshot.IsSnapshotName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		if s, ok := snapshot.FromFileInfo(m.config.BackupDir, info); ok {
			snaps = append(snaps, s)
		}
	}
	return snaps, nil
}
