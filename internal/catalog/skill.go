// ABOUTME: Core Skill data model: manifest, files, status, and runtime counters
// ABOUTME: Skill values are treated as immutable per version; the catalog swaps pointers, never mutates fields

package catalog

import (
	"regexp"
	"strconv"
	"time"
)

// Status is the lifecycle state of a loaded Skill.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusError    Status = "error"
)

// idPattern matches valid skill identifiers: lowercase, starts with a
// letter, 3-50 characters total.
var idPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{2,49}$`)

// ValidID reports whether id satisfies the skill id grammar.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Manifest is the parsed YAML front matter of SKILL.md.
type Manifest struct {
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	License       string         `yaml:"license,omitempty"`
	AllowedTools  []string       `yaml:"allowed-tools,omitempty"`
	UserInvocable *bool          `yaml:"user-invocable,omitempty"`
	Model         string         `yaml:"model,omitempty"`
	Context       string         `yaml:"context,omitempty"`
	Metadata      ManifestMeta   `yaml:"metadata,omitempty"`
}

// ManifestMeta is the nested metadata block of the manifest.
type ManifestMeta struct {
	Author  string   `yaml:"author,omitempty"`
	Version string   `yaml:"version,omitempty"`
	Tags    []string `yaml:"tags,omitempty"`
}

// IsUserInvocable returns the effective user-invocable flag, defaulting to
// true when the manifest did not set it.
func (m Manifest) IsUserInvocable() bool {
	if m.UserInvocable == nil {
		return true
	}
	return *m.UserInvocable
}

// FileEntry describes one packaged file by its path relative to the
// package root and its size in bytes.
type FileEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// FileManifest categorizes a skill's non-manifest files.
type FileManifest struct {
	Scripts    []FileEntry `json:"scripts"`
	References []FileEntry `json:"references"`
	Assets     []FileEntry `json:"assets"`
}

// TotalSize sums the byte size of every categorized file.
func (f FileManifest) TotalSize() int64 {
	var total int64
	for _, list := range [][]FileEntry{f.Scripts, f.References, f.Assets} {
		for _, entry := range list {
			total += entry.Size
		}
	}
	return total
}

// Skill is an immutable-per-version bundle of instructions, metadata, and
// packaged files, as produced by the SkillLoader and held by the
// SkillCatalog.
type Skill struct {
	ID           string
	Version      int
	Manifest     Manifest
	Instructions string
	Files        FileManifest
	Status       Status
	LoadError    string

	InvocationCount int64
	LastInvokedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// VersionLabel renders the version as "v{n}".
func (s Skill) VersionLabel() string {
	return versionLabel(s.Version)
}

func versionLabel(v int) string {
	return "v" + strconv.Itoa(v)
}
