// ABOUTME: Tests for the filesystem-rooted ObjectStore backend

package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Contract(t *testing.T) {
	testObjectStoreContract(t, func(t *testing.T) ObjectStore {
		store, err := NewLocalStore(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestLocalStore_PutVersionKeyFormat(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	key, err := store.PutVersion(context.Background(), "echo", 1, FileTree{"SKILL.md": []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "skills/echo/v1", key)
}

func TestLocalStore_PathTraversalNeutralized(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	tree := FileTree{"../../etc/passwd": []byte("x")}
	_, err = store.PutVersion(ctx, "echo", 1, tree)
	require.NoError(t, err)

	got, err := store.GetVersion(ctx, "echo", 1)
	require.NoError(t, err)
	_, ok := got["etc/passwd"]
	assert.True(t, ok, "traversal path was not rooted inside the version dir, got keys %v", got)
}
