package snapshot

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 3, 7, 9, 5, 2, 0, time.Local)

	tests := []struct {
		compression CompressionType
		want        string
	}{
		{CompressionTypeNone, "db_2024-03-07_090502.sqlite3"},
		{CompressionTypeGzip, "db_2024-03-07_090502.sqlite3.gz"},
		{CompressionTypeZstd, "db_2024-03-07_090502.sqlite3.zst"},
		{CompressionTypeLZ4, "db_2024-03-07_090502.sqlite3.lz4"},
	}

	for _, tt := range tests {
		t.Run(string(tt.compression), func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(ts, tt.compression))
		})
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		ok          bool
		compression CompressionType
	}{
		{"plain", "db_2024-01-15_143022.sqlite3", true, CompressionTypeNone},
		{"gzip", "db_2024-01-15_143022.sqlite3.gz", true, CompressionTypeGzip},
		{"zstd", "db_2024-01-15_143022.sqlite3.zst", true, CompressionTypeZstd},
		{"lz4", "db_2024-01-15_143022.sqlite3.lz4", true, CompressionTypeLZ4},
		{"wrong prefix", "backup_2024-01-15_143022.sqlite3", false, ""},
		{"bad timestamp", "db_2024-13-15_143022.sqlite3", false, ""},
		{"short timestamp", "db_2024-1-15_143022.sqlite3", false, ""},
		{"unknown extension", "db_2024-01-15_143022.sqlite3.bak", false, ""},
		{"temp file", ".db_2024-01-15_143022.sqlite3.gz.tmp", false, ""},
		{"missing base extension", "db_2024-01-15_143022.gz", false, ""},
		{"unrelated", "notes.txt", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, ct, ok := ParseName(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.compression, ct)
				assert.Equal(t, time.Date(2024, 1, 15, 14, 30, 22, 0, time.Local), ts)
			}
		})
	}
}

func TestNamesSortChronologically(t *testing.T) {
	base := time.Date(2023, 12, 31, 23, 59, 58, 0, time.Local)
	var times []time.Time
	var names []string
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i*37) * time.Hour).Add(time.Duration(i) * time.Second)
		times = append(times, ts)
		names = append(names, FileName(ts, CompressionTypeGzip))
	}

	shuffled := []string{names[3], names[0], names[4], names[1], names[2]}
	sort.Strings(shuffled)
	assert.Equal(t, names, shuffled)

	for i, name := range shuffled {
		ts, _, ok := ParseName(name)
		require.True(t, ok)
		assert.Equal(t, times[i], ts)
	}
}

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		input   string
		want    CompressionType
		wantErr bool
	}{
		{"gzip", CompressionTypeGzip, false},
		{"GZIP", CompressionTypeGzip, false},
		{"zstd", CompressionTypeZstd, false},
		{"lz4", CompressionTypeLZ4, false},
		{"none", CompressionTypeNone, false},
		{"brotli", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCompressionType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompressionFromPath(t *testing.T) {
	assert.Equal(t, CompressionTypeGzip, CompressionFromPath("/b/db_2024-01-01_000000.sqlite3.gz"))
	assert.Equal(t, CompressionTypeZstd, CompressionFromPath("x.zst"))
	assert.Equal(t, CompressionTypeLZ4, CompressionFromPath("x.lz4"))
	assert.Equal(t, CompressionTypeNone, CompressionFromPath("/b/db_2024-01-01_000000.sqlite3"))
	assert.Equal(t, CompressionTypeNone, CompressionFromPath("/tmp/copy.db"))
}

func TestExtensionCaseAgreesWithParseName(t *testing.T) {
	for _, name := range []string{
		"db_2024-06-01_120000.sqlite3.GZ",
		"db_2024-06-01_120000.sqlite3.Zst",
		"db_2024-06-01_120000.sqlite3.LZ4",
	} {
		_, _, ok := ParseName(name)
		assert.False(t, ok, name)
		assert.Equal(t, CompressionTypeNone, CompressionFromPath(name), name)
	}

	name := "db_2024-06-01_120000.sqlite3.gz"
	_, ct, ok := ParseName(name)
	require.True(t, ok)
	assert.Equal(t, ct, CompressionFromPath(name))
}

func TestStat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db_2024-05-01_101010.sqlite3.gz")
	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0o644))

	snap, err := Stat(path)
	require.NoError(t, err)
	assert.Equal(t, "db_2024-05-01_101010.sqlite3.gz", snap.Name)
	assert.Equal(t, int64(2048), snap.Size)
	assert.True(t, snap.Compressed())
	assert.InDelta(t, 2048.0/(1024*1024), snap.SizeMB(), 1e-9)

	other := filepath.Join(dir, "readme.txt")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	_, err = Stat(other)
	assert.Error(t, err)
}

func TestFromFileInfoSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "db_2024-05-01_101010.sqlite3")
	require.NoError(t, os.Mkdir(sub, 0o755))

	info, err := os.Stat(sub)
	require.NoError(t, err)
	_, ok := FromFileInfo(dir, info)
	assert.False(t, ok)
}
