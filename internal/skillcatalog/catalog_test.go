// ABOUTME: End-to-end Catalog tests against the real local ObjectStore and SQLite MetadataStore

package skillcatalog

import (
	"archive/zip"
	"bytes"
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/skillserver/internal/catalog"
	"github.com/2389/skillserver/internal/metastore"
	"github.com/2389/skillserver/internal/objectstore"
)

const sampleSkillMD = `---
name: echo
description: echoes the provided input back to the caller
---

# Echo

Echo the user's message verbatim.
`

func buildZip(t *testing.T, skillMD string, extra map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	f, err := w.Create("SKILL.md")
	require.NoError(t, err)
	_, err = f.Write([]byte(skillMD))
	require.NoError(t, err)

	for name, content := range extra {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	objects, err := objectstore.NewLocalStore(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)
	t.Cleanup(func() { objects.Close() })

	meta, err := metastore.NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	return New(objects, meta)
}

func TestCatalog_PublishAndGet(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	archive := buildZip(t, sampleSkillMD, map[string]string{"references/foo.md": "# notes"})
	skill, err := c.Publish(ctx, "echo", archive)
	require.NoError(t, err)
	assert.Equal(t, 1, skill.Version)
	assert.Equal(t, catalog.StatusActive, skill.Status)

	got, err := c.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", got.Manifest.Name)
}

func TestCatalog_PublishIncrementsVersion(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	archive := buildZip(t, sampleSkillMD, nil)
	_, err := c.Publish(ctx, "echo", archive)
	require.NoError(t, err)
	second, err := c.Publish(ctx, "echo", archive)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
}

func TestCatalog_RollbackThenPublishContinuesVersionSequence(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	archive := buildZip(t, sampleSkillMD, nil)
	for i := 0; i < 2; i++ {
		_, err := c.Publish(ctx, "echo", archive)
		require.NoError(t, err, "Publish() #%d", i)
	}

	rolled, err := c.Rollback(ctx, "echo", 1)
	require.NoError(t, err)
	require.Equal(t, 1, rolled.Version)

	third, err := c.Publish(ctx, "echo", archive)
	require.NoError(t, err)
	assert.Equal(t, 3, third.Version, "want 3 (not 2) after rollback")
}

func TestCatalog_RollbackUnknownVersion(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	archive := buildZip(t, sampleSkillMD, nil)
	_, err := c.Publish(ctx, "echo", archive)
	require.NoError(t, err)

	_, err = c.Rollback(ctx, "echo", 99)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestCatalog_UnloadThenBootOmitsSkill(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	archive := buildZip(t, sampleSkillMD, nil)
	_, err := c.Publish(ctx, "echo", archive)
	require.NoError(t, err)
	require.NoError(t, c.Unload(ctx, "echo"))

	_, err = c.Get("echo")
	assert.ErrorIs(t, err, ErrSkillNotFound)

	require.NoError(t, c.Boot(ctx))
	assert.Empty(t, c.List())
}

func TestCatalog_BootRecoversLoadFailureWithoutAbortingOthers(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	good := buildZip(t, sampleSkillMD, nil)
	_, err := c.Publish(ctx, "echo", good)
	require.NoError(t, err)

	badMD := "---\nname: bad\n---\n\ntoo short"
	bad := buildZip(t, badMD, nil)
	_, err = c.Publish(ctx, "bad", bad)
	require.Error(t, err, "want a validation error")

	require.NoError(t, c.Boot(ctx))
	_, err = c.Get("echo")
	assert.NoError(t, err)
}

func TestCatalog_PublishInvalidID(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.Publish(context.Background(), "EchoSkill!", buildZip(t, sampleSkillMD, nil))
	assert.Error(t, err, "want error for invalid id")
}

func TestCatalog_ConcurrentPublishSerializesVersionAssignment(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	archive := buildZip(t, sampleSkillMD, nil)

	const n = 8
	versions := make([]int, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			skill, err := c.Publish(ctx, "echo", archive)
			require.NoError(t, err)
			versions[i] = skill.Version
		}(i)
	}
	wg.Wait()

	sort.Ints(versions)
	for i, v := range versions {
		assert.Equal(t, i+1, v, "concurrent Publish calls must assign a gap-free, non-duplicated version sequence")
	}
}

func TestCatalog_ValidateDoesNotPublish(t *testing.T) {
	c := newTestCatalog(t)
	archive := buildZip(t, sampleSkillMD, nil)

	skill, err := c.Validate("echo", archive)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusActive, skill.Status)
	assert.Equal(t, 0, skill.Version)

	_, err = c.Get("echo")
	assert.ErrorIs(t, err, ErrSkillNotFound)
}
