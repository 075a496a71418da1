// Package catalog defines the Skill data model and the SkillLoader that
// turns an unpacked directory of files into a validated Skill: front
// matter parsing against a restricted manifest schema, Markdown body
// validation, file categorization and size limits, and a best-effort
// credential scan. Loading is deterministic — the same bytes always
// produce a structurally equal Skill.
package catalog
