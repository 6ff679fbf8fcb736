// Package sqlite opens SQLite files with the pure Go modernc.org/sqlite
// driver and runs the maintenance statements the backup tool relies on.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// IntegrityError lists the problems reported by PRAGMA integrity_check.
type IntegrityError struct {
	Path     string
	Problems []string
}

func (e *IntegrityError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("integrity check failed for %s: %s", e.Path, e.Problems[0])
	}
	return fmt.Sprintf("integrity check failed for %s: %d problems, first: %s", e.Path, len(e.Problems), e.Problems[0])
}

// Open opens the database at path. With readOnly the connection cannot write.
// The file is never created if missing.
func Open(path string, readOnly bool) (*sql.DB, error) {
	mode := "rw"
	if readOnly {
		mode = "ro"
	}
	return open(path, "mode="+mode)
}

// openImmutable opens a file that nothing else writes, such as a snapshot.
// SQLite then skips locking and never creates -wal or -shm files.
func openImmutable(path string) (*sql.DB, error) {
	return open(path, "mode=ro&immutable=1")
}

func open(path, query string) (*sql.DB, error) {
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?" + query

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// CheckIntegrity runs PRAGMA integrity_check. A healthy database returns a
// single "ok" row.
func CheckIntegrity(ctx context.Context, db *sql.DB, label string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return fmt.Errorf("integrity check on %s: %w", label, err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("integrity check on %s: %w", label, err)
		}
		if !strings.EqualFold(line, "ok") {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("integrity check on %s: %w", label, err)
	}

	if len(problems) > 0 {
		return &IntegrityError{Path: label, Problems: problems}
	}
	return nil
}

// VacuumInto writes a compacted, transactionally consistent copy of db to dest.
// dest must not exist.
func VacuumInto(ctx context.Context, db *sql.DB, dest string) error {
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// Verifier checks database files on disk
type Verifier struct{}

// NewVerifier returns a Verifier
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify opens path immutable and runs an integrity check. A file that is not
// a database at all surfaces as an IntegrityError too.
func (v *Verifier) Verify(ctx context.Context, path string) error {
	db, err := openImmutable(path)
	if err != nil {
		return err
	}
	defer db.Close()

	err = CheckIntegrity(ctx, db, path)
	if err != nil && isNotADatabase(err) {
		return &IntegrityError{Path: path, Problems: []string{err.Error()}}
	}
	return err
}

// Export writes a consistent copy of the database at src to dest using VACUUM INTO.
// The source is opened read-write so a WAL database can be read without
// its -shm file; VACUUM INTO itself only reads from it.
func (v *Verifier) Export(ctx context.Context, src, dest string) error {
	db, err := Open(src, false)
	if err != nil {
		return err
	}
	defer db.Close()

	return VacuumInto(ctx, db, dest)
}

func isNotADatabase(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not a database") || strings.Contains(msg, "malformed")
}
