// ABOUTME: Shared table-driven contract run against every invocationlog Store implementation
// ABOUTME: SQLiteStore and the in-memory fake standing in for RedisStore both exercise this suite

package invocationlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent(skillID, sortKey string, invokedAt time.Time) Event {
	return Event{
		SkillID:       skillID,
		InvokedAt:     invokedAt,
		SortKey:       sortKey,
		SessionID:     "sess-1",
		Method:        "tools/call",
		DurationMS:    42,
		Status:        StatusSuccess,
		ParamsExcerpt: `{"arg":"value"}`,
		ExpiresAt:     invokedAt.Add(30 * 24 * time.Hour),
	}
}

// testInvocationLogStoreContract exercises the documented Store behavior
// against a store built fresh by newStore, so the local (SQLite) and remote
// (Redis) backends are held to the same contract.
func testInvocationLogStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("AppendAndQuery", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		events := []Event{
			sampleEvent("echo", "k1", now.Add(-2*time.Minute)),
			sampleEvent("echo", "k2", now.Add(-time.Minute)),
			sampleEvent("other", "k3", now),
		}
		require.NoError(t, store.AppendBatch(ctx, events))

		got, err := store.Query(ctx, "echo", nil, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "k2", got[0].SortKey, "want most recent first")
	})

	t.Run("QuerySince", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		events := []Event{
			sampleEvent("echo", "k1", now.Add(-time.Hour)),
			sampleEvent("echo", "k2", now),
		}
		require.NoError(t, store.AppendBatch(ctx, events))

		since := now.Add(-time.Minute)
		got, err := store.Query(ctx, "echo", &since, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "k2", got[0].SortKey)
	})

	t.Run("QueryLimit", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		var events []Event
		for i := 0; i < 5; i++ {
			events = append(events, sampleEvent("echo", string(rune('a'+i)), now.Add(time.Duration(i)*time.Second)))
		}
		require.NoError(t, store.AppendBatch(ctx, events))

		got, err := store.Query(ctx, "echo", nil, 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("Sweep", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		expired := sampleEvent("echo", "k-expired", now.Add(-48*time.Hour))
		expired.ExpiresAt = now.Add(-time.Hour)
		fresh := sampleEvent("echo", "k-fresh", now)

		require.NoError(t, store.AppendBatch(ctx, []Event{expired, fresh}))

		removed, err := store.Sweep(ctx, now)
		require.NoError(t, err)
		require.Equal(t, 1, removed)

		got, err := store.Query(ctx, "echo", nil, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "k-fresh", got[0].SortKey)
	})

	t.Run("AppendBatchEmpty", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.AppendBatch(context.Background(), nil))
	})
}
