// ABOUTME: Shared table-driven contract run against every MetadataStore implementation
// ABOUTME: SQLiteStore and the in-memory fake standing in for RedisStore both exercise this suite

package metastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMetadataStoreContract exercises the documented MetadataStore behavior
// against a store built fresh by newStore, so the local (SQLite) and remote
// (Redis) backends are held to the same contract.
func testMetadataStoreContract(t *testing.T, newStore func(t *testing.T) MetadataStore) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		meta := SkillMeta{ID: "echo", Status: "active", Version: 1, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, store.Put(ctx, meta))

		got, err := store.Get(ctx, "echo")
		require.NoError(t, err)
		assert.Equal(t, "active", got.Status)
		assert.Equal(t, 1, got.Version)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PutUpsert", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		require.NoError(t, store.Put(ctx, SkillMeta{ID: "echo", Status: "draft", Version: 1, CreatedAt: now, UpdatedAt: now}))
		require.NoError(t, store.Put(ctx, SkillMeta{ID: "echo", Status: "active", Version: 2, CreatedAt: now, UpdatedAt: now.Add(time.Minute)}))

		got, err := store.Get(ctx, "echo")
		require.NoError(t, err)
		assert.Equal(t, "active", got.Status)
		assert.Equal(t, 2, got.Version)
	})

	t.Run("ListByStatus", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		require.NoError(t, store.Put(ctx, SkillMeta{ID: "a", Status: "active", Version: 1, CreatedAt: now, UpdatedAt: now}))
		require.NoError(t, store.Put(ctx, SkillMeta{ID: "b", Status: "inactive", Version: 1, CreatedAt: now, UpdatedAt: now}))
		require.NoError(t, store.Put(ctx, SkillMeta{ID: "c", Status: "active", Version: 1, CreatedAt: now, UpdatedAt: now}))

		active, err := store.List(ctx, "active")
		require.NoError(t, err)
		assert.Len(t, active, 2)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()

		require.NoError(t, store.Put(ctx, SkillMeta{ID: "echo", Status: "active", Version: 1, CreatedAt: now, UpdatedAt: now}))
		require.NoError(t, store.Delete(ctx, "echo"))
		assert.ErrorIs(t, store.Delete(ctx, "echo"), ErrNotFound)
	})

	t.Run("IncrementInvocation", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()

		require.NoError(t, store.Put(ctx, SkillMeta{ID: "echo", Status: "active", Version: 1, CreatedAt: now, UpdatedAt: now}))

		for i := 0; i < 3; i++ {
			require.NoError(t, store.IncrementInvocation(ctx, "echo", now.Add(time.Duration(i)*time.Second)))
		}

		got, err := store.Get(ctx, "echo")
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.InvocationCount)
		assert.NotNil(t, got.LastInvokedAt)
	})

	t.Run("IncrementInvocationNotFound", func(t *testing.T) {
		store := newStore(t)
		err := store.IncrementInvocation(context.Background(), "missing", time.Now())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
