// ABOUTME: Shared table-driven contract run against every ObjectStore implementation
// ABOUTME: LocalStore and the in-memory fake standing in for RemoteStore both exercise this suite

package objectstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testObjectStoreContract exercises the documented ObjectStore behavior
// against a store built fresh by newStore, so the local (filesystem) and
// remote (S3-compatible) backends are held to the same contract.
func testObjectStoreContract(t *testing.T, newStore func(t *testing.T) ObjectStore) {
	t.Helper()

	t.Run("PutGetVersion", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		tree := FileTree{
			"SKILL.md":          []byte("---\nname: echo\n---\nbody"),
			"references/foo.md": []byte("# reference"),
		}

		_, err := store.PutVersion(ctx, "echo", 1, tree)
		require.NoError(t, err)

		got, err := store.GetVersion(ctx, "echo", 1)
		require.NoError(t, err)
		require.Len(t, got, len(tree))
		for name, content := range tree {
			assert.Equal(t, string(content), string(got[name]), "file %q", name)
		}
	})

	t.Run("GetVersionNotFound", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetVersion(context.Background(), "missing", 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListVersions", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for _, v := range []int{2, 1, 3} {
			_, err := store.PutVersion(ctx, "echo", v, FileTree{"SKILL.md": []byte("x")})
			require.NoError(t, err)
		}

		versions, err := store.ListVersions(ctx, "echo")
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, versions)
	})

	t.Run("DeleteVersion", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.PutVersion(ctx, "echo", 1, FileTree{"SKILL.md": []byte("x")})
		require.NoError(t, err)
		require.NoError(t, store.DeleteVersion(ctx, "echo", 1))

		_, err = store.GetVersion(ctx, "echo", 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("LatestPointerCommitOrder", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.GetLatest(ctx, "echo")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = store.PutVersion(ctx, "echo", 1, FileTree{"SKILL.md": []byte("x")})
		require.NoError(t, err)
		now := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, store.SetLatest(ctx, "echo", 1, now))

		ptr, err := store.GetLatest(ctx, "echo")
		require.NoError(t, err)
		assert.Equal(t, 1, ptr.Version)
		assert.True(t, ptr.PublishedAt.Equal(now))
	})

	t.Run("InvalidVersion", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.PutVersion(ctx, "echo", 0, FileTree{})
		assert.ErrorIs(t, err, ErrInvalidVersion)

		_, err = store.GetVersion(ctx, "echo", -1)
		assert.ErrorIs(t, err, ErrInvalidVersion)
	})
}
