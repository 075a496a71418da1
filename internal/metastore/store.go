// ABOUTME: MetadataStore interface and shared types for per-skill metadata

package metastore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a skill has no metadata record.
var ErrNotFound = errors.New("metastore: not found")

// SkillMeta is the persisted metadata record for one skill.
type SkillMeta struct {
	ID              string
	Status          string
	Version         int
	InvocationCount int64
	LastInvokedAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MetadataStore persists per-skill metadata with a secondary index on
// (status, updated_at) for efficient active-skill listing.
//
// IncrementInvocation must be a single conditional update: concurrent
// replicas calling it simultaneously must not lose counts. Implementations
// retry up to 3 times with bounded exponential backoff on contention, then
// give up and return the last error.
type MetadataStore interface {
	Put(ctx context.Context, meta SkillMeta) error
	Get(ctx context.Context, id string) (SkillMeta, error)
	List(ctx context.Context, status string) ([]SkillMeta, error)
	Delete(ctx context.Context, id string) error
	IncrementInvocation(ctx context.Context, id string, at time.Time) error
	Close() error
}
