// ABOUTME: SkillLoader: parses a directory of unpacked skill files into a canonical Skill
// ABOUTME: Validates size limits, path safety, and runs a best-effort credential scan

package catalog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

const (
	skillManifestFile = "SKILL.md"

	maxSkillMDBytes  = 100 * 1024        // 100 KiB
	maxFileBytes     = 1 * 1024 * 1024   // 1 MiB, applies to any single file and to any script
	maxPackageBytes  = 10 * 1024 * 1024  // 10 MiB total
)

// LoadError wraps a validation failure with the reason a skill ended up in StatusError.
type LoadError struct {
	Reason string
}

func (e *LoadError) Error() string { return e.Reason }

// Loader parses and validates skill packages on disk into canonical Skills.
type Loader struct {
	md goldmark.Markdown
}

// NewLoader creates a SkillLoader. The returned value is safe for concurrent use.
func NewLoader() *Loader {
	return &Loader{md: goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID()))}
}

// Load reads dir (the unpacked contents of a skill package) and produces a
// Skill. id is the caller-asserted skill identifier (from the upload path
// or the manifest's directory name); version is assigned by the catalog,
// not the loader. On any validation failure, Load returns a Skill with
// Status=StatusError and LoadError populated rather than an error, so
// callers can record the failure without aborting a batch boot.
func (l *Loader) Load(id string, version int, dir string) Skill {
	skill := Skill{ID: id, Version: version, Status: StatusError}

	manifestPath := filepath.Join(dir, skillManifestFile)
	raw, err := readLimited(manifestPath, maxSkillMDBytes+1)
	if err != nil {
		skill.LoadError = fmt.Sprintf("reading %s: %v", skillManifestFile, err)
		return skill
	}
	if len(raw) > maxSkillMDBytes {
		skill.LoadError = fmt.Sprintf("%s exceeds %d bytes", skillManifestFile, maxSkillMDBytes)
		return skill
	}

	frontMatter, body, err := splitFrontMatter(string(raw))
	if err != nil {
		skill.LoadError = err.Error()
		return skill
	}

	manifest, err := parseManifest(frontMatter)
	if err != nil {
		skill.LoadError = err.Error()
		return skill
	}

	if err := l.validateMarkdown(body); err != nil {
		skill.LoadError = fmt.Sprintf("instructions body: %v", err)
		return skill
	}

	files, totalSize, err := enumerateFiles(dir)
	if err != nil {
		skill.LoadError = err.Error()
		return skill
	}
	if totalSize > maxPackageBytes {
		skill.LoadError = fmt.Sprintf("package exceeds %d bytes (got %d)", maxPackageBytes, totalSize)
		return skill
	}

	if err := scanForCredentials(dir, files); err != nil {
		skill.LoadError = err.Error()
		return skill
	}

	skill.Manifest = manifest
	skill.Instructions = body
	skill.Files = files
	skill.Status = StatusActive
	return skill
}

func (l *Loader) validateMarkdown(body string) error {
	doc := l.md.Parser().Parse(text.NewReader([]byte(body)))
	if doc == nil {
		return errors.New("failed to parse Markdown")
	}
	return nil
}

// enumerateFiles walks dir, categorizing every file under scripts/,
// references/, or assets/ and rejecting files that fall outside those
// three directories (other than SKILL.md itself) or that resolve outside
// the package root via symlink/traversal tricks.
func enumerateFiles(dir string) (FileManifest, int64, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return FileManifest{}, 0, fmt.Errorf("resolving package root: %w", err)
	}

	var manifest FileManifest
	var total int64

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if rel == skillManifestFile {
			return nil
		}

		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", rel, err)
		}
		if !strings.HasPrefix(resolved, root+string(filepath.Separator)) && resolved != root {
			return fmt.Errorf("file %q resolves outside package root", rel)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		size := info.Size()
		if size > maxFileBytes {
			return fmt.Errorf("file %q exceeds %d bytes", rel, maxFileBytes)
		}

		entry := FileEntry{Path: rel, Size: size}
		switch {
		case strings.HasPrefix(rel, "scripts/"):
			if size > maxFileBytes {
				return fmt.Errorf("script %q exceeds %d bytes", rel, maxFileBytes)
			}
			manifest.Scripts = append(manifest.Scripts, entry)
		case strings.HasPrefix(rel, "references/"):
			manifest.References = append(manifest.References, entry)
		case strings.HasPrefix(rel, "assets/"):
			manifest.Assets = append(manifest.Assets, entry)
		default:
			return fmt.Errorf("unexpected file %q outside scripts/, references/, assets/", rel)
		}
		total += size
		return nil
	})
	if err != nil {
		return FileManifest{}, 0, err
	}

	sortEntries(manifest.Scripts)
	sortEntries(manifest.References)
	sortEntries(manifest.Assets)

	return manifest, total, nil
}

func sortEntries(entries []FileEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}

func readLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(io.LimitReader(f, limit))
}
