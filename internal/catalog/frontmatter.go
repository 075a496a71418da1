// ABOUTME: Front-matter/body splitting and manifest unmarshaling for SKILL.md
// ABOUTME: Restricted to the documented manifest keys; unknown top-level keys are rejected

package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoFrontMatter is returned when SKILL.md does not begin with a "---" delimited block.
var ErrNoFrontMatter = errors.New("SKILL.md must begin with YAML front matter")

// ErrUnterminatedFrontMatter is returned when the opening "---" has no matching closing line.
var ErrUnterminatedFrontMatter = errors.New("front matter missing closing '---'")

var allowedManifestKeys = map[string]bool{
	"name":           true,
	"description":    true,
	"license":        true,
	"allowed-tools":  true,
	"user-invocable": true,
	"model":          true,
	"context":        true,
	"metadata":       true,
}

// splitFrontMatter separates the "---" delimited YAML block from the
// Markdown body that follows it.
func splitFrontMatter(content string) (frontMatter, body string, err error) {
	reader := bufio.NewReader(strings.NewReader(content))

	first, ferr := reader.ReadString('\n')
	if ferr != nil && !errors.Is(ferr, io.EOF) {
		return "", "", ferr
	}
	if strings.TrimSpace(strings.TrimRight(first, "\r\n")) != "---" {
		return "", "", ErrNoFrontMatter
	}

	var lines []string
	closed := false
	for {
		line, lerr := reader.ReadString('\n')
		if lerr != nil && !errors.Is(lerr, io.EOF) {
			return "", "", lerr
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(trimmed) == "---" {
			closed = true
			break
		}
		lines = append(lines, trimmed)
		if errors.Is(lerr, io.EOF) {
			break
		}
	}
	if !closed {
		return "", "", ErrUnterminatedFrontMatter
	}

	rest, err := io.ReadAll(reader)
	if err != nil {
		return "", "", err
	}

	return strings.Join(lines, "\n"), strings.TrimLeft(string(rest), "\r\n"), nil
}

// parseManifest parses and validates the YAML front matter into a Manifest,
// rejecting unknown top-level keys per the restricted schema.
func parseManifest(frontMatter string) (Manifest, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal([]byte(frontMatter), &raw); err != nil {
		return Manifest{}, fmt.Errorf("invalid front matter YAML: %w", err)
	}

	for key := range raw {
		if !allowedManifestKeys[key] {
			return Manifest{}, fmt.Errorf("unknown manifest key %q", key)
		}
	}

	var m Manifest
	if err := yaml.Unmarshal([]byte(frontMatter), &m); err != nil {
		return Manifest{}, fmt.Errorf("invalid front matter YAML: %w", err)
	}

	if strings.TrimSpace(m.Name) == "" {
		return Manifest{}, errors.New("manifest.name is required")
	}
	if len(strings.TrimSpace(m.Description)) < 10 {
		return Manifest{}, errors.New("manifest.description must be at least 10 characters")
	}

	return m, nil
}
