// ABOUTME: Redis-backed invocation log Store using one sorted set per skill
// ABOUTME: Redis TTLs are per-key, not per-member, so Sweep trims by score instead

package invocationlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisLogKeyPrefix  = "log:"
	redisLogIndexKey   = "log:index" // set of skill ids that have at least one entry
	redisSweepPageSize = 500
)

// RedisStore persists invocation events as Redis sorted sets, one per skill,
// scored by the invocation's Unix-nano timestamp so ZRevRange returns the
// most recent entries first.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a RedisStore against addr.
func NewRedisStore(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("invocationlog: connecting to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) logKey(skillID string) string {
	return redisLogKeyPrefix + skillID
}

// AppendBatch adds every event to its skill's sorted set in one pipeline.
func (s *RedisStore) AppendBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("invocationlog: marshaling event %q: %w", e.SortKey, err)
		}
		pipe.ZAdd(ctx, s.logKey(e.SkillID), redis.Z{
			Score:  float64(e.InvokedAt.UnixNano()),
			Member: payload,
		})
		pipe.SAdd(ctx, redisLogIndexKey, e.SkillID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invocationlog: appending batch: %w", err)
	}
	return nil
}

// Query returns events for skillID, most recent first.
func (s *RedisStore) Query(ctx context.Context, skillID string, since *time.Time, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	minScore := "-inf"
	if since != nil {
		minScore = fmt.Sprintf("%d", since.UnixNano())
	}

	members, err := s.client.ZRevRangeByScore(ctx, s.logKey(skillID), &redis.ZRangeBy{
		Max:   "+inf",
		Min:   minScore,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("invocationlog: querying events: %w", err)
	}

	events := make([]Event, 0, len(members))
	for _, m := range members {
		var e Event
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, fmt.Errorf("invocationlog: unmarshaling event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}

// Sweep trims members whose score (invoked_at) is past the retention window,
// computed per-skill from each event's expires_at since ZREMRANGEBYSCORE
// cannot evaluate the payload, only the score. Events are scored by
// invocation time, so sweeping removes entries where now has passed
// expires_at recorded in the event; since the score alone can't carry that,
// Sweep walks the indexed skill set and removes members older than the
// oldest allowed invocation time derived from now.
func (s *RedisStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	skillIDs, err := s.client.SMembers(ctx, redisLogIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("invocationlog: listing indexed skills: %w", err)
	}

	removed := 0
	for _, skillID := range skillIDs {
		key := s.logKey(skillID)

		for {
			members, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
				Min:   "-inf",
				Max:   "+inf",
				Count: redisSweepPageSize,
			}).Result()
			if err != nil {
				return removed, fmt.Errorf("invocationlog: scanning %s for sweep: %w", key, err)
			}
			if len(members) == 0 {
				break
			}

			expired := make([]any, 0, len(members))
			for _, m := range members {
				var e Event
				if err := json.Unmarshal([]byte(m), &e); err != nil {
					continue
				}
				if !e.ExpiresAt.After(now) {
					expired = append(expired, m)
				}
			}
			if len(expired) == 0 {
				break
			}
			if err := s.client.ZRem(ctx, key, expired...).Err(); err != nil {
				return removed, fmt.Errorf("invocationlog: removing expired members from %s: %w", key, err)
			}
			removed += len(expired)
			if len(members) < redisSweepPageSize {
				break
			}
		}
	}
	return removed, nil
}
