// Package admin implements the REST admin surface under /admin: skill
// list/get/upload/validate/reload/reload-all/unload/rollback/versions/logs.
// It bypasses MCP session state entirely and is gated by a bearer token
// checked against auth.TokenVerifier.
package admin
