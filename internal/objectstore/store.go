// ABOUTME: ObjectStore interface and shared types for versioned skill package storage

package objectstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested version or skill has no objects.
var ErrNotFound = errors.New("objectstore: not found")

// ErrInvalidVersion is returned for non-positive or otherwise malformed version numbers.
var ErrInvalidVersion = errors.New("objectstore: invalid version")

// FileTree is the set of files that make up one version of a skill package,
// keyed by path relative to the package root (e.g. "SKILL.md",
// "scripts/run.sh").
type FileTree map[string][]byte

// TotalSize returns the sum of all file sizes in the tree.
func (t FileTree) TotalSize() int64 {
	var total int64
	for _, b := range t {
		total += int64(len(b))
	}
	return total
}

// LatestPointer is the contents of a skill's "latest.json" commit-point object.
type LatestPointer struct {
	Version     int       `json:"version"`
	PublishedAt time.Time `json:"published_at"`
}

// ObjectStore stores and retrieves versioned skill package file trees.
//
// Version directories are immutable once PutVersion returns successfully.
// SetLatest is the commit point of a publish: it must be called only after
// PutVersion has durably written every file of the version being published.
type ObjectStore interface {
	// PutVersion durably writes tree under skills/{id}/v{version}/ and
	// returns the object key prefix it was written under.
	PutVersion(ctx context.Context, skillID string, version int, tree FileTree) (objectKey string, err error)

	// GetVersion returns the complete file set for skillID at version, as
	// observed by an object listing under that version's prefix.
	GetVersion(ctx context.Context, skillID string, version int) (FileTree, error)

	// ListVersions returns every version number written for skillID, ascending.
	ListVersions(ctx context.Context, skillID string) ([]int, error)

	// DeleteVersion removes a version's file tree. It does not touch latest.json.
	DeleteVersion(ctx context.Context, skillID string, version int) error

	// GetLatest reads the commit-point pointer for skillID.
	GetLatest(ctx context.Context, skillID string) (LatestPointer, error)

	// SetLatest writes the commit-point pointer for skillID. Callers must
	// have already durably written the referenced version via PutVersion.
	SetLatest(ctx context.Context, skillID string, version int, publishedAt time.Time) error

	// SyncAll mirrors every object reachable from the store into
	// localCacheDir, returning the number of files written. Used by the
	// remote backend to warm a local read-through cache; a no-op returning
	// the existing file count for the local backend.
	SyncAll(ctx context.Context, localCacheDir string) (int, error)

	// Close releases any held resources (file watchers, connections).
	Close() error
}
