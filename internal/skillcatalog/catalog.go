// ABOUTME: In-memory Catalog of active Skills, backed by ObjectStore + MetadataStore
// ABOUTME: publish/rollback/reload flip the in-memory map only after the durable write commits

package skillcatalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/2389/skillserver/internal/catalog"
	"github.com/2389/skillserver/internal/metastore"
	"github.com/2389/skillserver/internal/objectstore"
)

// ErrSkillNotFound is returned when an operation names an unknown skill id.
var ErrSkillNotFound = errors.New("skillcatalog: skill not found")

// ErrVersionNotFound is returned by rollback when the target version was
// never published for that skill.
var ErrVersionNotFound = errors.New("skillcatalog: version not found")

// idLockShards is the stripe count for per-skill-id serialization of
// mutating operations, sized the same as internal/session's shard count.
const idLockShards = 16

// idLocker stripes a mutex per skill id hash so Publish/Rollback/Reload/
// Unload on the same id never interleave their read-modify-write sequence
// against ObjectStore/MetadataStore, while unrelated ids don't contend.
type idLocker struct {
	shards [idLockShards]sync.Mutex
}

func (l *idLocker) lock(id string) func() {
	sh := &l.shards[fnv32(id)%idLockShards]
	sh.Lock()
	return sh.Unlock
}

func fnv32(s string) uint32 {
	const prime = 16777619
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= prime
	}
	return hash
}

// Catalog is the authoritative in-process view of loaded skills.
type Catalog struct {
	objects  objectstore.ObjectStore
	meta     metastore.MetadataStore
	loader   *catalog.Loader
	logger   *slog.Logger

	idLocks idLocker

	mu     sync.RWMutex
	skills map[string]catalog.Skill
}

// New creates a Catalog over the given durable stores.
func New(objects objectstore.ObjectStore, meta metastore.MetadataStore) *Catalog {
	return &Catalog{
		objects: objects,
		meta:    meta,
		loader:  catalog.NewLoader(),
		logger:  slog.Default().With("component", "skillcatalog"),
		skills:  make(map[string]catalog.Skill),
	}
}

// Boot pulls the active skill list from the MetadataStore, fetches each
// one's latest version from the ObjectStore, and loads it into the
// in-memory map. A single skill's failure to load does not abort boot; it
// is recorded with Status=StatusError so /admin/skills surfaces it.
func (c *Catalog) Boot(ctx context.Context) error {
	metas, err := c.meta.List(ctx, "active")
	if err != nil {
		return fmt.Errorf("skillcatalog: listing active skills: %w", err)
	}

	loaded := make(map[string]catalog.Skill, len(metas))
	for _, m := range metas {
		skill, err := c.fetchAndLoad(ctx, m.ID, m.Version)
		if err != nil {
			c.logger.Error("failed to load skill during boot", "skill_id", m.ID, "version", m.Version, "error", err)
			skill = catalog.Skill{ID: m.ID, Version: m.Version, Status: catalog.StatusError, LoadError: err.Error()}
		}
		skill.InvocationCount = m.InvocationCount
		skill.LastInvokedAt = m.LastInvokedAt
		skill.CreatedAt = m.CreatedAt
		skill.UpdatedAt = m.UpdatedAt
		loaded[m.ID] = skill
	}

	c.mu.Lock()
	c.skills = loaded
	c.mu.Unlock()

	c.logger.Info("catalog boot complete", "skill_count", len(loaded))
	return nil
}

func (c *Catalog) fetchAndLoad(ctx context.Context, id string, version int) (catalog.Skill, error) {
	tree, err := c.objects.GetVersion(ctx, id, version)
	if err != nil {
		return catalog.Skill{}, fmt.Errorf("fetching version %d: %w", version, err)
	}

	dir, err := os.MkdirTemp("", "skill-load-*")
	if err != nil {
		return catalog.Skill{}, fmt.Errorf("creating load directory: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := writeTreeToDir(dir, tree); err != nil {
		return catalog.Skill{}, err
	}

	skill := c.loader.Load(id, version, dir)
	if skill.Status == catalog.StatusError {
		return skill, errors.New(skill.LoadError)
	}
	return skill, nil
}

// Publish unpacks a zip archive, validates it, assigns the next version
// number, writes it to the ObjectStore, updates the MetadataStore, and
// only then flips the in-memory entry. On any failure the in-memory map is
// left untouched and the partially-written ObjectStore version is orphaned
// for later garbage collection.
func (c *Catalog) Publish(ctx context.Context, id string, archive []byte) (catalog.Skill, error) {
	if !catalog.ValidID(id) {
		return catalog.Skill{}, fmt.Errorf("skillcatalog: invalid skill id %q", id)
	}

	unlock := c.idLocks.lock(id)
	defer unlock()

	scratch, err := unpackZip(archive)
	if err != nil {
		return catalog.Skill{}, err
	}
	defer os.RemoveAll(scratch)

	version, err := c.nextVersion(ctx, id)
	if err != nil {
		return catalog.Skill{}, err
	}

	skill := c.loader.Load(id, version, scratch)
	if skill.Status == catalog.StatusError {
		return skill, fmt.Errorf("skillcatalog: validation failed: %s", skill.LoadError)
	}

	tree, err := treeFromDir(scratch)
	if err != nil {
		return catalog.Skill{}, err
	}

	if _, err := c.objects.PutVersion(ctx, id, version, tree); err != nil {
		return catalog.Skill{}, fmt.Errorf("skillcatalog: writing version %d: %w", version, err)
	}

	now := time.Now().UTC()
	existing, getErr := c.meta.Get(ctx, id)
	createdAt := now
	if getErr == nil {
		createdAt = existing.CreatedAt
	}
	metaRow := metastore.SkillMeta{
		ID:        id,
		Status:    string(catalog.StatusActive),
		Version:   version,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	if getErr == nil {
		metaRow.InvocationCount = existing.InvocationCount
		metaRow.LastInvokedAt = existing.LastInvokedAt
	}
	if err := c.meta.Put(ctx, metaRow); err != nil {
		return catalog.Skill{}, fmt.Errorf("skillcatalog: writing metadata for %s: %w", id, err)
	}

	if err := c.objects.SetLatest(ctx, id, version, now); err != nil {
		return catalog.Skill{}, fmt.Errorf("skillcatalog: committing latest pointer: %w", err)
	}

	skill.CreatedAt = metaRow.CreatedAt
	skill.UpdatedAt = metaRow.UpdatedAt
	skill.InvocationCount = metaRow.InvocationCount
	skill.LastInvokedAt = metaRow.LastInvokedAt

	c.mu.Lock()
	c.skills[id] = skill
	c.mu.Unlock()

	c.logger.Info("published skill", "skill_id", id, "version", version)
	return skill, nil
}

// Validate unpacks and loads an archive without writing anything durable,
// so /admin/skills/validate can report load errors without mutating catalog
// state. The returned Skill's Version is always 0.
func (c *Catalog) Validate(id string, archive []byte) (catalog.Skill, error) {
	if !catalog.ValidID(id) {
		return catalog.Skill{}, fmt.Errorf("skillcatalog: invalid skill id %q", id)
	}

	scratch, err := unpackZip(archive)
	if err != nil {
		return catalog.Skill{}, err
	}
	defer os.RemoveAll(scratch)

	skill := c.loader.Load(id, 0, scratch)
	if skill.Status == catalog.StatusError {
		return skill, nil
	}
	return skill, nil
}

func (c *Catalog) nextVersion(ctx context.Context, id string) (int, error) {
	versions, err := c.objects.ListVersions(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("skillcatalog: listing versions for %s: %w", id, err)
	}
	max := 0
	for _, v := range versions {
		if v > max {
			max = v
		}
	}
	return max + 1, nil
}

// Rollback reactivates a previously-published version of a skill. The
// target version is not renumbered: the next Publish after a rollback
// still continues the version sequence from the highest version ever
// written, never from target_version.
func (c *Catalog) Rollback(ctx context.Context, id string, targetVersion int) (catalog.Skill, error) {
	unlock := c.idLocks.lock(id)
	defer unlock()

	versions, err := c.objects.ListVersions(ctx, id)
	if err != nil {
		return catalog.Skill{}, fmt.Errorf("skillcatalog: listing versions for %s: %w", id, err)
	}
	if !containsInt(versions, targetVersion) {
		return catalog.Skill{}, ErrVersionNotFound
	}

	skill, err := c.fetchAndLoad(ctx, id, targetVersion)
	if err != nil {
		return catalog.Skill{}, err
	}

	now := time.Now().UTC()
	existing, err := c.meta.Get(ctx, id)
	if err != nil {
		return catalog.Skill{}, fmt.Errorf("skillcatalog: reading metadata for %s: %w", id, err)
	}
	existing.Version = targetVersion
	existing.Status = string(catalog.StatusActive)
	existing.UpdatedAt = now
	if err := c.meta.Put(ctx, existing); err != nil {
		return catalog.Skill{}, fmt.Errorf("skillcatalog: writing rollback metadata: %w", err)
	}
	if err := c.objects.SetLatest(ctx, id, targetVersion, now); err != nil {
		return catalog.Skill{}, fmt.Errorf("skillcatalog: committing rollback latest pointer: %w", err)
	}

	skill.CreatedAt = existing.CreatedAt
	skill.UpdatedAt = existing.UpdatedAt
	skill.InvocationCount = existing.InvocationCount
	skill.LastInvokedAt = existing.LastInvokedAt

	c.mu.Lock()
	c.skills[id] = skill
	c.mu.Unlock()

	c.logger.Info("rolled back skill", "skill_id", id, "target_version", targetVersion)
	return skill, nil
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Reload re-reads the currently active version from the ObjectStore and
// replaces the in-memory entry without changing version or status.
func (c *Catalog) Reload(ctx context.Context, id string) (catalog.Skill, error) {
	unlock := c.idLocks.lock(id)
	defer unlock()

	meta, err := c.meta.Get(ctx, id)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			return catalog.Skill{}, ErrSkillNotFound
		}
		return catalog.Skill{}, err
	}

	skill, err := c.fetchAndLoad(ctx, id, meta.Version)
	if err != nil {
		return catalog.Skill{}, err
	}
	skill.InvocationCount = meta.InvocationCount
	skill.LastInvokedAt = meta.LastInvokedAt
	skill.CreatedAt = meta.CreatedAt
	skill.UpdatedAt = meta.UpdatedAt

	c.mu.Lock()
	c.skills[id] = skill
	c.mu.Unlock()

	c.logger.Info("reloaded skill", "skill_id", id, "version", meta.Version)
	return skill, nil
}

// Unload removes the skill from the in-memory map and marks its metadata
// row inactive. The underlying ObjectStore data is left intact.
func (c *Catalog) Unload(ctx context.Context, id string) error {
	unlock := c.idLocks.lock(id)
	defer unlock()

	meta, err := c.meta.Get(ctx, id)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			return ErrSkillNotFound
		}
		return err
	}
	meta.Status = string(catalog.StatusInactive)
	meta.UpdatedAt = time.Now().UTC()
	if err := c.meta.Put(ctx, meta); err != nil {
		return fmt.Errorf("skillcatalog: marking %s inactive: %w", id, err)
	}

	c.mu.Lock()
	delete(c.skills, id)
	c.mu.Unlock()

	c.logger.Info("unloaded skill", "skill_id", id)
	return nil
}

// List returns every currently-loaded skill, sorted by id.
func (c *Catalog) List() []catalog.Skill {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]catalog.Skill, 0, len(c.skills))
	for _, s := range c.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the currently-loaded skill by id.
func (c *Catalog) Get(id string) (catalog.Skill, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	skill, ok := c.skills[id]
	if !ok {
		return catalog.Skill{}, ErrSkillNotFound
	}
	return skill, nil
}

// RecordInvocation increments the durable MetadataStore invocation counter
// for id and, on success, updates the in-memory Skill's InvocationCount and
// LastInvokedAt in lockstep, so GET /admin/skills/{id} reflects tools/call
// activity immediately instead of only after the next refresh cycle (the
// refresh loop never reloads an id on count/timestamp changes alone, since
// those don't bump Version).
func (c *Catalog) RecordInvocation(ctx context.Context, id string, at time.Time) error {
	if err := c.meta.IncrementInvocation(ctx, id, at); err != nil {
		return err
	}

	c.mu.Lock()
	if skill, ok := c.skills[id]; ok {
		skill.InvocationCount++
		skill.LastInvokedAt = &at
		c.skills[id] = skill
	}
	c.mu.Unlock()
	return nil
}

// ActiveCount returns the number of skills currently loaded in memory,
// reported to Prometheus as catalog_active_skills by the refresh loop.
func (c *Catalog) ActiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.skills)
}
