// Package transport implements the Streamable HTTP surface: POST/GET/DELETE
// /mcp, SSE framing with heartbeats, session header handling accepting the
// legacy lowercase variant, and the liveness/readiness/info endpoints. It
// is the thin HTTP shell around mcpengine.Engine and session.Registry.
package transport
