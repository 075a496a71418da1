// ABOUTME: In-memory fake standing in for RedisStore, exercised by the shared MetadataStore contract
// ABOUTME: No live Redis is available in tests, so fakeMetadataStore follows the teacher's MockStore idiom

package metastore

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeMetadataStore is an in-memory MetadataStore, standing in for RedisStore
// the way the teacher's MockStore stands in for a SQLite-backed Store in
// tests that shouldn't require a live service.
type fakeMetadataStore struct {
	mu    sync.Mutex
	byID  map[string]SkillMeta
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{byID: make(map[string]SkillMeta)}
}

func (f *fakeMetadataStore) Put(ctx context.Context, meta SkillMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[meta.ID] = meta
	return nil
}

func (f *fakeMetadataStore) Get(ctx context.Context, id string) (SkillMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return SkillMeta{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeMetadataStore) List(ctx context.Context, status string) ([]SkillMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SkillMeta
	for _, m := range f.byID {
		if status == "" || m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMetadataStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeMetadataStore) IncrementInvocation(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	m.InvocationCount++
	atCopy := at
	m.LastInvokedAt = &atCopy
	m.UpdatedAt = at
	f.byID[id] = m
	return nil
}

func (f *fakeMetadataStore) Close() error { return nil }

func TestFakeMetadataStore_Contract(t *testing.T) {
	testMetadataStoreContract(t, func(t *testing.T) MetadataStore { return newFakeMetadataStore() })
}
