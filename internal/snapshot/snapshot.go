// Package snapshot defines the on-disk naming scheme for database snapshots.
//
// A snapshot file is named db_<YYYY-MM-DD_HHMMSS>.sqlite3 with an optional
// compression extension. The timestamp is fixed width and zero padded, so
// lexicographic order of names equals chronological order of capture.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// Prefix starts every snapshot name.
	Prefix = "db_"
	// BaseExtension follows the timestamp in every snapshot name.
	BaseExtension = ".sqlite3"
	// TimestampLayout is the capture time layout embedded in names.
	TimestampLayout = "2006-01-02_150405"
)

// CompressionType identifies the codec a snapshot was written with
type CompressionType string

const (
	CompressionTypeNone CompressionType = "NONE"
	CompressionTypeGzip CompressionType = "GZIP"
	CompressionTypeZstd CompressionType = "ZSTD"
	CompressionTypeLZ4  CompressionType = "LZ4"
)

var extensions = map[CompressionType]string{
	CompressionTypeNone: "",
	CompressionTypeGzip: ".gz",
	CompressionTypeZstd: ".zst",
	CompressionTypeLZ4:  ".lz4",
}

// Extension returns the file suffix appended after BaseExtension.
func (c CompressionType) Extension() string {
	return extensions[c]
}

// IsValid reports whether c is a known compression type.
func (c CompressionType) IsValid() bool {
	_, ok := extensions[c]
	return ok
}

func (c CompressionType) String() string {
	return string(c)
}

// ParseCompressionType accepts the algorithm names used in configuration
// ("gzip", "zstd", "lz4", "none"), case-insensitively.
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gzip", "gz":
		return CompressionTypeGzip, nil
	case "zstd", "zst":
		return CompressionTypeZstd, nil
	case "lz4":
		return CompressionTypeLZ4, nil
	case "none", "":
		return CompressionTypeNone, nil
	default:
		return "", fmt.Errorf("unknown compression algorithm %q", s)
	}
}

// CompressionFromPath infers the codec from a file's extension. Matching is
// case-sensitive, as in ParseName, so "x.GZ" is a plain copy.
func CompressionFromPath(path string) CompressionType {
	ext := filepath.Ext(path)
	for ct, e := range extensions {
		if e != "" && e == ext {
			return ct
		}
	}
	return CompressionTypeNone
}

// Snapshot describes one snapshot file in the backup directory
type Snapshot struct {
	Path        string          `json:"path" yaml:"path"`
	Name        string          `json:"name" yaml:"name"`
	Size        int64           `json:"size" yaml:"size"`
	ModTime     time.Time       `json:"mod_time" yaml:"mod_time"`
	CapturedAt  time.Time       `json:"captured_at" yaml:"captured_at"`
	Compression CompressionType `json:"compression" yaml:"compression"`
}

// Compressed reports whether the snapshot is stored compressed.
func (s *Snapshot) Compressed() bool {
	return s.Compression != CompressionTypeNone
}

// SizeMB returns the size in mebibytes, as shown to users.
func (s *Snapshot) SizeMB() float64 {
	return float64(s.Size) / (1024 * 1024)
}

// FileName builds the snapshot name for a capture time and codec.
func FileName(capturedAt time.Time, compression CompressionType) string {
	return Prefix + capturedAt.Format(TimestampLayout) + BaseExtension + compression.Extension()
}

// ParseName extracts capture time and codec from a snapshot file name.
// ok is false for names that do not follow the scheme exactly.
func ParseName(name string) (capturedAt time.Time, compression CompressionType, ok bool) {
	if !strings.HasPrefix(name, Prefix) {
		return time.Time{}, "", false
	}
	rest := strings.TrimPrefix(name, Prefix)

	idx := strings.Index(rest, BaseExtension)
	if idx != len(TimestampLayout) {
		return time.Time{}, "", false
	}

	ts, err := time.ParseInLocation(TimestampLayout, rest[:idx], time.Local)
	if err != nil {
		return time.Time{}, "", false
	}

	suffix := rest[idx+len(BaseExtension):]
	for ct, ext := range extensions {
		if ext == suffix {
			return ts, ct, true
		}
	}
	return time.Time{}, "", false
}

// IsSnapshotName reports whether name follows the snapshot naming scheme.
func IsSnapshotName(name string) bool {
	_, _, ok := ParseName(name)
	return ok
}

// FromFileInfo builds a Snapshot for an entry of dir. It returns false if the
// entry is not a regular file with a snapshot name.
func FromFileInfo(dir string, info os.FileInfo) (*Snapshot, bool) {
	if !info.Mode().IsRegular() {
		return nil, false
	}
	capturedAt, compression, ok := ParseName(info.Name())
	if !ok {
		return nil, false
	}
	return &Snapshot{
		Path:        filepath.Join(dir, info.Name()),
		Name:        info.Name(),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		CapturedAt:  capturedAt,
		Compression: compression,
	}, true
}

// Stat loads snapshot metadata for a single path.
func Stat(path string) (*Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	snap, ok := FromFileInfo(filepath.Dir(path), info)
	if !ok {
		return nil, fmt.Errorf("%s is not a snapshot file", path)
	}
	return snap, nil
}
