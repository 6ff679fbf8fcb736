package backup

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"sqlite-backup/internal/snapshot"
	"sqlite-backup/internal/storage"
)

// Method selects how the live database is read during backup
type Method string

const (
	// MethodCopy copies the file bytes as they are on disk.
	MethodCopy Method = "copy"
	// MethodVacuum exports a consistent copy with VACUUM INTO first.
	MethodVacuum Method = "vacuum"
)

const (
	DefaultDatabaseFile   = "db.sqlite3"
	DefaultBackupDirName  = "backups"
	DefaultDirPermissions = os.FileMode(0o755)
)

// Config holds everything the Manager needs
type Config struct {
	DatabasePath   string      `yaml:"database_path" mapstructure:"database_path"`
	BackupDir      string      `yaml:"backup_dir" mapstructure:"backup_dir"`
	DirPermissions os.FileMode `yaml:"dir_permissions" mapstructure:"dir_permissions"`
	Method         Method      `yaml:"method" mapstructure:"method"`

	Compression CompressionConfig `yaml:"compression" mapstructure:"compression"`
	Retention   RetentionConfig   `yaml:"retention" mapstructure:"retention"`
	Validation  ValidationConfig  `yaml:"validation" mapstructure:"validation"`
	Mirror      storage.Config    `yaml:"mirror" mapstructure:"mirror"`

	// RemoveJournalOnRestore deletes -wal, -shm and -journal files left next
	// to the live database after it is replaced. Nil means true.
	RemoveJournalOnRestore *bool `yaml:"remove_journal_on_restore" mapstructure:"remove_journal_on_restore"`
	// Lock takes an advisory lock on the backup directory during mutations.
	Lock bool `yaml:"lock" mapstructure:"lock"`
}

// CompressionConfig defines compression settings
type CompressionConfig struct {
	// Algorithm used when a compressed backup is requested: gzip, zstd or lz4.
	Algorithm string `yaml:"algorithm" mapstructure:"algorithm"`
	// Level 0 selects the codec default.
	Level int `yaml:"level" mapstructure:"level"`
}

// RetentionConfig defines backup retention policies
type RetentionConfig struct {
	// Days is the default age threshold for scheduled cleanups. 0 disables them.
	Days int `yaml:"days" mapstructure:"days"`
	// MinKeep newest snapshots survive cleanup regardless of age.
	MinKeep int `yaml:"min_keep" mapstructure:"min_keep"`
	// DryRun reports what cleanup would delete without deleting.
	DryRun bool `yaml:"dry_run" mapstructure:"dry_run"`
}

// ValidationConfig defines snapshot integrity checks
type ValidationConfig struct {
	VerifyOnCreate  bool `yaml:"verify_on_create" mapstructure:"verify_on_create"`
	VerifyOnRestore bool `yaml:"verify_on_restore" mapstructure:"verify_on_restore"`
}

// DefaultConfig returns the configuration rooted at baseDir: the database
// at <baseDir>/db.sqlite3 and snapshots under <baseDir>/backups.
func DefaultConfig(baseDir string) Config {
	cfg := Config{
		DatabasePath: filepath.Join(baseDir, DefaultDatabaseFile),
		BackupDir:    filepath.Join(baseDir, DefaultBackupDirName),
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for unset fields
func (c *Config) SetDefaults() {
	if c.DirPermissions == 0 {
		c.DirPermissions = DefaultDirPermissions
	}
	c.Method = Method(strings.ToLower(string(c.Method)))
	if c.Method == "" {
		c.Method = MethodCopy
	}
	if c.RemoveJournalOnRestore == nil {
		enabled := true
		c.RemoveJournalOnRestore = &enabled
	}
	c.Compression.SetDefaults()
	if c.Mirror.Enabled {
		c.Mirror.SetDefaults()
	}
}

// Validate validates the Config
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.DatabasePath == "" {
		errs.Add("database_path", "database path is required", nil)
	}
	if c.BackupDir == "" {
		errs.Add("backup_dir", "backup directory is required", nil)
	}
	if c.DatabasePath != "" && c.BackupDir != "" &&
		filepath.Clean(c.DatabasePath) == filepath.Clean(c.BackupDir) {
		errs.Add("backup_dir", "backup directory must differ from the database path", c.BackupDir)
	}
	switch c.Method {
	case MethodCopy, MethodVacuum, "":
	default:
		errs.Add("method", "method must be copy or vacuum", c.Method)
	}

	if err := c.Compression.Validate(); err != nil {
		var compressionErrs ValidationErrors
		if errors.As(err, &compressionErrs) {
			errs = append(errs, compressionErrs...)
		} else {
			errs.Add("compression", err.Error(), nil)
		}
	}

	if err := c.Retention.Validate(); err != nil {
		var retentionErrs ValidationErrors
		if errors.As(err, &retentionErrs) {
			errs = append(errs, retentionErrs...)
		} else {
			errs.Add("retention", err.Error(), nil)
		}
	}

	if c.Mirror.Enabled {
		if err := c.Mirror.Validate(); err != nil {
			errs.Add("mirror", err.Error(), c.Mirror.Provider)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// JournalCleanupEnabled reports whether restore removes stale sidecar files.
func (c *Config) JournalCleanupEnabled() bool {
	return c.RemoveJournalOnRestore == nil || *c.RemoveJournalOnRestore
}

// SetDefaults sets default values for the compression configuration
func (cc *CompressionConfig) SetDefaults() {
	if cc.Algorithm == "" {
		cc.Algorithm = "gzip"
	}
	cc.Algorithm = strings.ToLower(cc.Algorithm)
}

// Validate validates the CompressionConfig
func (cc *CompressionConfig) Validate() error {
	var errs ValidationErrors

	ct, err := cc.Type()
	if err != nil {
		errs.Add("compression.algorithm", err.Error(), cc.Algorithm)
	} else if ct == CompressionTypeNone {
		errs.Add("compression.algorithm", "use --no-compress instead of algorithm none", cc.Algorithm)
	}
	if cc.Level < 0 {
		errs.Add("compression.level", "compression level cannot be negative", cc.Level)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Type returns the codec selected by Algorithm.
func (cc *CompressionConfig) Type() (CompressionType, error) {
	if cc.Algorithm == "" {
		return CompressionTypeGzip, nil
	}
	return snapshot.ParseCompressionType(cc.Algorithm)
}

// Validate validates the RetentionConfig
func (rc *RetentionConfig) Validate() error {
	var errs ValidationErrors

	if rc.Days < 0 {
		errs.Add("retention.days", "retention days cannot be negative", rc.Days)
	}
	if rc.MinKeep < 0 {
		errs.Add("retention.min_keep", "min_keep cannot be negative", rc.MinKeep)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
