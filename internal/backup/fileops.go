package backup

import (
	"io"
	"os"
	"path/filepath"
	"time"
)

// atomicFile is a temp file in the destination directory that becomes the
// destination only on Commit. Abort, or a failed Commit, removes it.
type atomicFile struct {
	*os.File
	dest string
	done bool
}

// createAtomic opens a hidden temp file next to dest. The leading dot keeps
// the temp name outside the snapshot naming scheme.
func createAtomic(dest string, perm os.FileMode) (*atomicFile, error) {
	dir, base := filepath.Split(dest)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return nil, err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	return &atomicFile{File: tmp, dest: dest}, nil
}

// Commit flushes the temp file to stable storage and renames it over dest.
func (f *atomicFile) Commit() error {
	if f.done {
		return nil
	}
	if err := f.Sync(); err != nil {
		f.Abort()
		return err
	}
	if err := f.Close(); err != nil {
		f.Abort()
		return err
	}
	if err := os.Rename(f.Name(), f.dest); err != nil {
		f.Abort()
		return err
	}
	f.done = true
	syncDir(filepath.Dir(f.dest))
	return nil
}

// Abort discards the temp file. Safe to call after Commit.
func (f *atomicFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	f.Close()
	os.Remove(f.Name())
}

// syncDir makes a rename durable. Errors are ignored: some platforms and
// file systems cannot fsync a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}

// copyFileContents streams src into w and returns the byte count.
func copyFileContents(w io.Writer, src string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	return io.Copy(w, in)
}

// sourceChanged reports whether a file was modified between two stats.
func sourceChanged(before, after os.FileInfo) bool {
	return after.Size() != before.Size() || after.ModTime().After(before.ModTime())
}

// preserveMetadata copies permission bits and modification time, as cp -p does.
func preserveMetadata(path string, info os.FileInfo) error {
	if err := os.Chmod(path, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(path, time.Now(), info.ModTime())
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// journalSidecars lists the files SQLite may keep next to a database.
func journalSidecars(dbPath string) []string {
	return []string{dbPath + "-wal", dbPath + "-shm", dbPath + "-journal"}
}
