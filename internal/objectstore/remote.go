// ABOUTME: S3-compatible ObjectStore backend on top of github.com/minio/minio-go/v7
// ABOUTME: Objects live under skills/{id}/v{version}/ plus a latest.json commit pointer per skill

package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// RemoteConfig controls the S3-compatible backend.
type RemoteConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Insecure  bool
}

// RemoteStore implements ObjectStore against an S3-compatible bucket.
type RemoteStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewRemoteStore constructs a RemoteStore using static or environment credentials.
func NewRemoteStore(cfg RemoteConfig) (*RemoteStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("objectstore: bucket is required for remote backend")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("objectstore: endpoint is required for remote backend")
	}

	var creds *credentials.Credentials
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.IAM{},
		})
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: !cfg.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: creating client: %w", err)
	}

	return &RemoteStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *RemoteStore) objectKey(parts ...string) string {
	joined := path.Join(parts...)
	if s.prefix == "" {
		return joined
	}
	return path.Join(s.prefix, joined)
}

func (s *RemoteStore) versionPrefix(skillID string, version int) string {
	return s.objectKey("skills", skillID, "v"+strconv.Itoa(version)) + "/"
}

func (s *RemoteStore) latestKey(skillID string) string {
	return s.objectKey("skills", skillID, latestObjectName)
}

// PutVersion uploads every file in tree under the version prefix.
func (s *RemoteStore) PutVersion(ctx context.Context, skillID string, version int, tree FileTree) (string, error) {
	if version <= 0 {
		return "", ErrInvalidVersion
	}
	prefix := s.versionPrefix(skillID, version)

	names := make([]string, 0, len(tree))
	for name := range tree {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		content := tree[name]
		object := prefix + name
		_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		if err != nil {
			return "", fmt.Errorf("objectstore: uploading %s (%s): %w", name, humanize.Bytes(uint64(len(content))), err)
		}
	}

	return fmt.Sprintf("skills/%s/v%d", skillID, version), nil
}

// GetVersion downloads every object under the version prefix.
func (s *RemoteStore) GetVersion(ctx context.Context, skillID string, version int) (FileTree, error) {
	if version <= 0 {
		return nil, ErrInvalidVersion
	}
	prefix := s.versionPrefix(skillID, version)

	tree := FileTree{}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("objectstore: listing version: %w", obj.Err)
		}
		rel := strings.TrimPrefix(obj.Key, prefix)
		if rel == "" {
			continue
		}
		data, err := s.getObjectBytes(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		tree[rel] = data
	}
	if len(tree) == 0 {
		return nil, ErrNotFound
	}
	return tree, nil
}

func (s *RemoteStore) getObjectBytes(ctx context.Context, object string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("objectstore: fetching %s: %w", object, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFoundErr(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("objectstore: reading %s: %w", object, err)
	}
	return data, nil
}

// ListVersions enumerates version prefixes under skills/{id}/.
func (s *RemoteStore) ListVersions(ctx context.Context, skillID string) ([]int, error) {
	root := s.objectKey("skills", skillID) + "/"
	seen := map[int]struct{}{}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: root, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("objectstore: listing versions: %w", obj.Err)
		}
		rel := strings.TrimPrefix(obj.Key, root)
		parts := strings.SplitN(rel, "/", 2)
		if len(parts) < 2 || !strings.HasPrefix(parts[0], "v") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(parts[0], "v"))
		if err != nil {
			continue
		}
		seen[n] = struct{}{}
	}
	versions := make([]int, 0, len(seen))
	for v := range seen {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions, nil
}

// DeleteVersion removes every object under the version prefix.
func (s *RemoteStore) DeleteVersion(ctx context.Context, skillID string, version int) error {
	if version <= 0 {
		return ErrInvalidVersion
	}
	prefix := s.versionPrefix(skillID, version)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("objectstore: listing for delete: %w", obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("objectstore: deleting %s: %w", obj.Key, err)
		}
	}
	return nil
}

// GetLatest downloads and decodes the latest.json commit-point object.
func (s *RemoteStore) GetLatest(ctx context.Context, skillID string) (LatestPointer, error) {
	data, err := s.getObjectBytes(ctx, s.latestKey(skillID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LatestPointer{}, ErrNotFound
		}
		return LatestPointer{}, err
	}
	var ptr LatestPointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		return LatestPointer{}, fmt.Errorf("objectstore: decoding latest pointer: %w", err)
	}
	return ptr, nil
}

// SetLatest uploads the commit-point object last, after all version files are written.
func (s *RemoteStore) SetLatest(ctx context.Context, skillID string, version int, publishedAt time.Time) error {
	if version <= 0 {
		return ErrInvalidVersion
	}
	ptr := LatestPointer{Version: version, PublishedAt: publishedAt}
	raw, err := json.Marshal(ptr)
	if err != nil {
		return fmt.Errorf("objectstore: encoding latest pointer: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.latestKey(skillID), bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("objectstore: committing latest pointer: %w", err)
	}
	return nil
}

// Close is a no-op: the minio client holds no resources requiring explicit shutdown.
func (s *RemoteStore) Close() error { return nil }

// SyncAll downloads every object reachable under the configured prefix into
// localCacheDir, mirroring the bucket layout, and returns the file count.
func (s *RemoteStore) SyncAll(ctx context.Context, localCacheDir string) (int, error) {
	if err := os.MkdirAll(localCacheDir, 0o755); err != nil {
		return 0, fmt.Errorf("objectstore: creating local cache dir: %w", err)
	}

	root := s.prefix
	if root != "" {
		root += "/"
	}

	count := 0
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: root, Recursive: true}) {
		if obj.Err != nil {
			return count, fmt.Errorf("objectstore: listing for sync: %w", obj.Err)
		}
		rel := strings.TrimPrefix(obj.Key, root)
		if rel == "" {
			continue
		}
		data, err := s.getObjectBytes(ctx, obj.Key)
		if err != nil {
			return count, err
		}
		dest := filepath.Join(localCacheDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return count, fmt.Errorf("objectstore: creating cache subdir: %w", err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return count, fmt.Errorf("objectstore: writing cache file: %w", err)
		}
		count++
	}
	return count, nil
}

func isNotFoundErr(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound
}
