package backup

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlite-backup/internal/storage"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/srv/app")

	assert.Equal(t, filepath.Join("/srv/app", "db.sqlite3"), cfg.DatabasePath)
	assert.Equal(t, filepath.Join("/srv/app", "backups"), cfg.BackupDir)
	assert.Equal(t, DefaultDirPermissions, cfg.DirPermissions)
	assert.Equal(t, MethodCopy, cfg.Method)
	assert.Equal(t, "gzip", cfg.Compression.Algorithm)
	assert.True(t, cfg.JournalCleanupEnabled())
	assert.False(t, cfg.Lock)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "missing database path",
			mutate:    func(c *Config) { c.DatabasePath = "" },
			wantField: "database_path",
		},
		{
			name:      "missing backup dir",
			mutate:    func(c *Config) { c.BackupDir = "" },
			wantField: "backup_dir",
		},
		{
			name:      "backup dir equals database",
			mutate:    func(c *Config) { c.BackupDir = c.DatabasePath },
			wantField: "backup_dir",
		},
		{
			name:      "unknown method",
			mutate:    func(c *Config) { c.Method = "rsync" },
			wantField: "method",
		},
		{
			name:      "unknown algorithm",
			mutate:    func(c *Config) { c.Compression.Algorithm = "brotli" },
			wantField: "compression.algorithm",
		},
		{
			name:      "algorithm none",
			mutate:    func(c *Config) { c.Compression.Algorithm = "none" },
			wantField: "compression.algorithm",
		},
		{
			name:      "negative level",
			mutate:    func(c *Config) { c.Compression.Level = -1 },
			wantField: "compression.level",
		},
		{
			name:      "negative retention",
			mutate:    func(c *Config) { c.Retention.Days = -1 },
			wantField: "retention.days",
		},
		{
			name:      "negative min keep",
			mutate:    func(c *Config) { c.Retention.MinKeep = -2 },
			wantField: "retention.min_keep",
		},
		{
			name: "mirror enabled without provider section",
			mutate: func(c *Config) {
				c.Mirror = storage.Config{Enabled: true, Provider: storage.ProviderS3}
			},
			wantField: "mirror",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(t.TempDir())
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var errs ValidationErrors
			require.True(t, errors.As(err, &errs))
			fields := make([]string, 0, len(errs))
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestConfig_SetDefaultsNormalises(t *testing.T) {
	cfg := Config{
		DatabasePath: "/d/db.sqlite3",
		BackupDir:    "/d/backups",
		Method:       "VACUUM",
		Compression:  CompressionConfig{Algorithm: "ZSTD", Level: 7},
		Mirror: storage.Config{
			Enabled:  true,
			Provider: "local",
			Local:    &storage.LocalConfig{BasePath: "/mnt/offsite"},
		},
	}
	cfg.SetDefaults()

	assert.Equal(t, MethodVacuum, cfg.Method)
	assert.Equal(t, "zstd", cfg.Compression.Algorithm)
	assert.Equal(t, storage.ProviderLocal, cfg.Mirror.Provider)
	assert.Equal(t, storage.DefaultPrefix, cfg.Mirror.Prefix)
	require.NoError(t, cfg.Validate())

	ct, err := cfg.Compression.Type()
	require.NoError(t, err)
	assert.Equal(t, CompressionTypeZstd, ct)
}

func TestConfig_JournalCleanupToggle(t *testing.T) {
	off := false
	cfg := Config{RemoveJournalOnRestore: &off}
	cfg.SetDefaults()
	assert.False(t, cfg.JournalCleanupEnabled())
}
