// Package metastore stores per-skill metadata — status, current version,
// invocation counters — keyed by skill id, with a secondary index on
// (status, updated_at) for listing active skills without a full scan.
package metastore
