package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalMirror copies snapshots into a directory, typically a mounted network share
type LocalMirror struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalMirror creates the mirror directory if needed
func NewLocalMirror(config *LocalConfig, prefix string) (*LocalMirror, error) {
	if config == nil {
		return nil, errors.New("local mirror configuration is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	perm := config.Permissions
	if perm == 0 {
		perm = 0o755
	}

	m := &LocalMirror{
		basePath:    filepath.Join(config.BasePath, filepath.FromSlash(strings.TrimSuffix(prefix, "/"))),
		permissions: perm,
	}
	if err := os.MkdirAll(m.basePath, m.permissions); err != nil {
		return nil, fmt.Errorf("failed to create mirror directory %s: %w", m.basePath, err)
	}
	return m, nil
}

// Name implements Mirror
func (m *LocalMirror) Name() string {
	return "local:" + m.basePath
}

// Upload copies the file through a temp file and rename so a partial copy
// never shows up under the final name.
func (m *LocalMirror) Upload(ctx context.Context, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := filepath.Base(localPath)
	if err := validateName(name); err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(m.basePath, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", m.basePath, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		return fmt.Errorf("failed to copy %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, filepath.Join(m.basePath, name)); err != nil {
		return fmt.Errorf("failed to rename %s: %w", name, err)
	}
	committed = true
	return nil
}

// List implements Mirror. Hidden files are skipped.
func (m *LocalMirror) List(ctx context.Context) ([]Object, error) {
	entries, err := os.ReadDir(m.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read mirror directory: %w", err)
	}

	var objects []Object
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		objects = append(objects, Object{
			Name:         entry.Name(),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
	}
	return objects, nil
}

// Delete implements Mirror
func (m *LocalMirror) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(m.basePath, name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}
