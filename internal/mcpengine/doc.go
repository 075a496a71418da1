// Package mcpengine implements the MCP JSON-RPC 2.0 method dispatcher:
// initialize/initialized handshake, tools/prompts/resources listing and
// invocation, and completion. It reads the SkillCatalog and SessionRegistry
// and writes invocation accounting to the InvocationLog and MetadataStore.
package mcpengine
