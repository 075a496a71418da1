// ABOUTME: Redis implementation of MetadataStore: one hash per skill plus a
// ABOUTME: sorted-set secondary index on updated_at for active-skill listing

package metastore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisMetaHashPrefix  = "meta:"
	redisActiveIndexKey  = "meta:index:active"
	incrementMaxAttempts = 3
)

// RedisStore implements MetadataStore against a Redis instance.
//
// Each skill's metadata lives in a hash "meta:{id}". Active skills are also
// tracked in a sorted set "meta:index:active" scored by updated_at (as a
// Unix timestamp) so listing by status doesn't require a full key scan.
// IncrementInvocation uses HINCRBY, which is a single atomic Redis
// operation and therefore never loses a concurrent update on its own; the
// bounded retry here exists only to absorb transient connection errors.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore connected to addr.
func NewRedisStore(addr string) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("metastore: redis address is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: client}, nil
}

func hashKey(id string) string { return redisMetaHashPrefix + id }

// Put writes meta's fields into its hash and maintains the active index.
func (s *RedisStore) Put(ctx context.Context, meta SkillMeta) error {
	fields := map[string]any{
		"status":           meta.Status,
		"version":          meta.Version,
		"invocation_count": meta.InvocationCount,
		"created_at":       meta.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":       meta.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if meta.LastInvokedAt != nil {
		fields["last_invoked_at"] = meta.LastInvokedAt.UTC().Format(time.RFC3339)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, hashKey(meta.ID), fields)
	if meta.Status == "active" {
		pipe.ZAdd(ctx, redisActiveIndexKey, redis.Z{Score: float64(meta.UpdatedAt.Unix()), Member: meta.ID})
	} else {
		pipe.ZRem(ctx, redisActiveIndexKey, meta.ID)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("metastore: writing redis metadata: %w", err)
	}
	return nil
}

// Get reads meta.ID's hash.
func (s *RedisStore) Get(ctx context.Context, id string) (SkillMeta, error) {
	result, err := s.client.HGetAll(ctx, hashKey(id)).Result()
	if err != nil {
		return SkillMeta{}, fmt.Errorf("metastore: reading redis metadata: %w", err)
	}
	if len(result) == 0 {
		return SkillMeta{}, ErrNotFound
	}
	return decodeSkillMeta(id, result)
}

// List returns metadata for every skill in the active index when status is
// "active", or falls back to SCAN over all meta:* hashes otherwise.
func (s *RedisStore) List(ctx context.Context, status string) ([]SkillMeta, error) {
	if status == "active" {
		ids, err := s.client.ZRevRange(ctx, redisActiveIndexKey, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("metastore: reading active index: %w", err)
		}
		return s.getAll(ctx, ids)
	}

	var ids []string
	iter := s.client.Scan(ctx, 0, redisMetaHashPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(redisMetaHashPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("metastore: scanning metadata keys: %w", err)
	}

	all, err := s.getAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return all, nil
	}
	filtered := all[:0]
	for _, m := range all {
		if m.Status == status {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

func (s *RedisStore) getAll(ctx context.Context, ids []string) ([]SkillMeta, error) {
	out := make([]SkillMeta, 0, len(ids))
	for _, id := range ids {
		meta, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

// Delete removes the hash and any active-index entry for id.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, hashKey(id))
	pipe.ZRem(ctx, redisActiveIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("metastore: deleting redis metadata: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementInvocation uses HINCRBY, an atomic single-key operation, so
// concurrent replicas never lose a count. The retry loop only guards
// against transient connection errors, with a bounded exponential backoff.
func (s *RedisStore) IncrementInvocation(ctx context.Context, id string, at time.Time) error {
	var lastErr error
	for attempt := 0; attempt < incrementMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 10 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		key := hashKey(id)
		exists, err := s.client.Exists(ctx, key).Result()
		if err != nil {
			lastErr = err
			continue
		}
		if exists == 0 {
			return ErrNotFound
		}

		pipe := s.client.TxPipeline()
		pipe.HIncrBy(ctx, key, "invocation_count", 1)
		pipe.HSet(ctx, key, "last_invoked_at", at.UTC().Format(time.RFC3339), "updated_at", at.UTC().Format(time.RFC3339))
		if _, err := pipe.Exec(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("metastore: incrementing invocation count after %d attempts: %w", incrementMaxAttempts, lastErr)
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeSkillMeta(id string, fields map[string]string) (SkillMeta, error) {
	meta := SkillMeta{ID: id, Status: fields["status"]}

	version, err := strconv.Atoi(fields["version"])
	if err != nil {
		return SkillMeta{}, fmt.Errorf("metastore: parsing version: %w", err)
	}
	meta.Version = version

	if raw, ok := fields["invocation_count"]; ok && raw != "" {
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return SkillMeta{}, fmt.Errorf("metastore: parsing invocation_count: %w", err)
		}
		meta.InvocationCount = count
	}

	meta.CreatedAt, err = time.Parse(time.RFC3339, fields["created_at"])
	if err != nil {
		return SkillMeta{}, fmt.Errorf("metastore: parsing created_at: %w", err)
	}
	meta.UpdatedAt, err = time.Parse(time.RFC3339, fields["updated_at"])
	if err != nil {
		return SkillMeta{}, fmt.Errorf("metastore: parsing updated_at: %w", err)
	}
	if raw, ok := fields["last_invoked_at"]; ok && raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return SkillMeta{}, fmt.Errorf("metastore: parsing last_invoked_at: %w", err)
		}
		meta.LastInvokedAt = &t
	}

	return meta, nil
}
