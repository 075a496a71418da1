// ABOUTME: Filesystem-rooted ObjectStore backend for SKILL_CACHE_DIR
// ABOUTME: Watches the root with fsnotify so local edits trigger near-instant catalog reload

package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const latestObjectName = "latest.json"

// LocalStore implements ObjectStore rooted at a directory on the local filesystem.
type LocalStore struct {
	root string

	watcher   *fsnotify.Watcher
	changedCh chan string

	closeOnce sync.Once
}

// NewLocalStore creates a LocalStore rooted at root, creating it if needed,
// and starts an fsnotify watch over it. Changed reports the skill id a
// filesystem change was observed for; it is closed when the store is closed.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("objectstore: root path required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: creating root: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("objectstore: starting watcher: %w", err)
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("objectstore: watching root: %w", err)
	}

	s := &LocalStore{
		root:      root,
		watcher:   watcher,
		changedCh: make(chan string, 32),
	}
	go s.watchLoop()
	return s, nil
}

// Changed returns a channel that receives a skill id whenever a file under
// that skill's directory changes out of band. The catalog's refresh loop
// selects on this to short-circuit its polling interval.
func (s *LocalStore) Changed() <-chan string { return s.changedCh }

func (s *LocalStore) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if id := s.skillIDFromPath(event.Name); id != "" {
				select {
				case s.changedCh <- id:
				default:
				}
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *LocalStore) skillIDFromPath(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}
	return parts[0]
}

func (s *LocalStore) versionDir(skillID string, version int) string {
	return filepath.Join(s.root, skillID, "v"+strconv.Itoa(version))
}

func (s *LocalStore) skillDir(skillID string) string {
	return filepath.Join(s.root, skillID)
}

func (s *LocalStore) latestPath(skillID string) string {
	return filepath.Join(s.skillDir(skillID), latestObjectName)
}

// PutVersion writes tree under root/{id}/v{version}/.
func (s *LocalStore) PutVersion(_ context.Context, skillID string, version int, tree FileTree) (string, error) {
	if version <= 0 {
		return "", ErrInvalidVersion
	}
	dir := s.versionDir(skillID, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("objectstore: creating version dir: %w", err)
	}

	for relPath, content := range tree {
		full, err := resolveWithinRoot(dir, relPath)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", fmt.Errorf("objectstore: creating parent dir for %q: %w", relPath, err)
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			return "", fmt.Errorf("objectstore: writing %q: %w", relPath, err)
		}
	}

	return fmt.Sprintf("skills/%s/v%d", skillID, version), nil
}

// GetVersion reads back the file tree written by PutVersion.
func (s *LocalStore) GetVersion(_ context.Context, skillID string, version int) (FileTree, error) {
	if version <= 0 {
		return nil, ErrInvalidVersion
	}
	dir := s.versionDir(skillID, version)
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("objectstore: stat version dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("objectstore: %q is not a directory", dir)
	}

	tree := FileTree{}
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tree[filepath.ToSlash(rel)] = content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: reading version: %w", err)
	}
	return tree, nil
}

// ListVersions returns every "vN" directory under the skill's root, ascending.
func (s *LocalStore) ListVersions(_ context.Context, skillID string) ([]int, error) {
	entries, err := os.ReadDir(s.skillDir(skillID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("objectstore: listing versions: %w", err)
	}

	var versions []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "v") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "v"))
		if err != nil {
			continue
		}
		versions = append(versions, n)
	}
	sort.Ints(versions)
	return versions, nil
}

// DeleteVersion removes a version's directory.
func (s *LocalStore) DeleteVersion(_ context.Context, skillID string, version int) error {
	if version <= 0 {
		return ErrInvalidVersion
	}
	if err := os.RemoveAll(s.versionDir(skillID, version)); err != nil {
		return fmt.Errorf("objectstore: deleting version: %w", err)
	}
	return nil
}

// GetLatest reads the commit-point pointer file.
func (s *LocalStore) GetLatest(_ context.Context, skillID string) (LatestPointer, error) {
	raw, err := os.ReadFile(s.latestPath(skillID))
	if errors.Is(err, os.ErrNotExist) {
		return LatestPointer{}, ErrNotFound
	}
	if err != nil {
		return LatestPointer{}, fmt.Errorf("objectstore: reading latest pointer: %w", err)
	}
	var ptr LatestPointer
	if err := json.Unmarshal(raw, &ptr); err != nil {
		return LatestPointer{}, fmt.Errorf("objectstore: decoding latest pointer: %w", err)
	}
	return ptr, nil
}

// SetLatest writes the commit-point pointer file last, atomically via rename.
func (s *LocalStore) SetLatest(_ context.Context, skillID string, version int, publishedAt time.Time) error {
	if version <= 0 {
		return ErrInvalidVersion
	}
	dir := s.skillDir(skillID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("objectstore: creating skill dir: %w", err)
	}

	ptr := LatestPointer{Version: version, PublishedAt: publishedAt}
	raw, err := json.Marshal(ptr)
	if err != nil {
		return fmt.Errorf("objectstore: encoding latest pointer: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".latest-*.json.tmp")
	if err != nil {
		return fmt.Errorf("objectstore: creating latest pointer temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("objectstore: writing latest pointer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("objectstore: closing latest pointer temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.latestPath(skillID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("objectstore: committing latest pointer: %w", err)
	}
	return nil
}

// SyncAll is a no-op for the local backend: the filesystem root is already
// the authoritative store, so there is nothing to mirror. It returns the
// number of files currently present under localCacheDir for parity with the
// remote backend's return value.
func (s *LocalStore) SyncAll(_ context.Context, localCacheDir string) (int, error) {
	count := 0
	err := filepath.WalkDir(localCacheDir, func(_ string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, os.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("objectstore: counting local cache: %w", err)
	}
	return count, nil
}

// Close stops the fsnotify watcher.
func (s *LocalStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.watcher.Close()
		close(s.changedCh)
	})
	return err
}

// resolveWithinRoot joins base and relPath, rejecting traversal outside base.
func resolveWithinRoot(base, relPath string) (string, error) {
	cleaned := filepath.Clean("/" + relPath)[1:]
	full := filepath.Join(base, cleaned)
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("objectstore: path %q escapes package root", relPath)
	}
	return full, nil
}
