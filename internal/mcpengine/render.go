// ABOUTME: Renders a skill's instructions against caller-supplied arguments
// ABOUTME: Uses text/template so {{.arg_name}} placeholders in SKILL.md bodies resolve; a missing key renders as empty, it never fails the call

package mcpengine

import (
	"strings"
	"text/template"
)

// renderInstructions interpolates arguments into a skill's instructions
// body. Rendering is best-effort: a template error falls back to the raw
// instructions rather than failing the call, since tools/call is
// documented as side-effect free and deterministic in the core.
func renderInstructions(instructions string, arguments map[string]any) string {
	tmpl, err := template.New("instructions").Option("missingkey=zero").Parse(instructions)
	if err != nil {
		return instructions
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, arguments); err != nil {
		return instructions
	}
	return buf.String()
}
