// Package session implements the SessionRegistry: per-connection MCP
// state (protocol version, negotiated capabilities, pending notification
// buffer) held in a sharded in-memory map, with a background sweeper that
// ages sessions through initializing -> active -> suspended -> closed.
package session
