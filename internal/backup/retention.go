package backup

import (
	"context"
	"errors"
	"sort"
	"time"

	"sqlite-backup/internal/snapshot"
	"sqlite-backup/internal/storage"
)

// CleanupFailure records a snapshot that could not be removed
type CleanupFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
	// Remote is set when the failure happened on the mirror.
	Remote bool `json:"remote,omitempty"`
}

// CleanupResult contains the outcome of one retention sweep
type CleanupResult struct {
	RetentionDays int                  `json:"retention_days"`
	Cutoff        time.Time            `json:"cutoff"`
	DryRun        bool                 `json:"dry_run"`
	Deleted       []*snapshot.Snapshot `json:"deleted"`
	Kept          []*snapshot.Snapshot `json:"kept"`
	Failures      []CleanupFailure     `json:"failures,omitempty"`
	RemoteDeleted []string             `json:"remote_deleted,omitempty"`
	// DirectoryMissing is set when there was no backup directory to sweep.
	DirectoryMissing bool `json:"directory_missing,omitempty"`
}

// Count returns the number of local snapshots removed (or that would be, in a dry run).
func (r *CleanupResult) Count() int {
	return len(r.Deleted)
}

// retentionCutoff returns the instant before which snapshots are expired.
func retentionCutoff(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

// selectExpired splits snapshots into those to delete and those to keep.
// A snapshot expires when its modification time is strictly before cutoff;
// the minKeep newest snapshots are always kept.
func selectExpired(snaps []*snapshot.Snapshot, cutoff time.Time, minKeep int) (expired, kept []*snapshot.Snapshot) {
	sorted := make([]*snapshot.Snapshot, len(snaps))
	copy(sorted, snaps)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].ModTime.Equal(sorted[j].ModTime) {
			return sorted[i].ModTime.After(sorted[j].ModTime)
		}
		return sorted[i].Name > sorted[j].Name
	})

	for i, s := range sorted {
		if i < minKeep || !s.ModTime.Before(cutoff) {
			kept = append(kept, s)
			continue
		}
		expired = append(expired, s)
	}
	return expired, kept
}

// pruneMirror removes remote snapshots whose capture time is before cutoff,
// never touching names that are still kept locally.
func (m *Manager) pruneMirror(ctx context.Context, cutoff time.Time, kept []*snapshot.Snapshot, result *CleanupResult) {
	objects, err := m.mirror.List(ctx)
	if err != nil {
		m.logger.LogMirror(m.mirror.Name(), "list", "", err)
		result.Failures = append(result.Failures, CleanupFailure{Name: m.mirror.Name(), Error: err.Error(), Remote: true})
		return
	}

	keep := make(map[string]bool, len(kept))
	for _, s := range kept {
		keep[s.Name] = true
	}

	for _, obj := range objects {
		if ctx.Err() != nil {
			return
		}
		capturedAt, _, ok := snapshot.ParseName(obj.Name)
		if !ok || keep[obj.Name] || !capturedAt.Before(cutoff) {
			continue
		}
		if result.DryRun {
			result.RemoteDeleted = append(result.RemoteDeleted, obj.Name)
			continue
		}

		err := m.mirror.Delete(ctx, obj.Name)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.logger.LogMirror(m.mirror.Name(), "delete", obj.Name, err)
			result.Failures = append(result.Failures, CleanupFailure{Name: obj.Name, Error: err.Error(), Remote: true})
			continue
		}
		m.logger.LogMirror(m.mirror.Name(), "delete", obj.Name, nil)
		result.RemoteDeleted = append(result.RemoteDeleted, obj.Name)
	}
}
