// Package skillcatalog holds the authoritative in-process view of loaded
// skills: boot, publish, rollback, reload, unload, list, get. The in-memory
// map is the source of truth for request handling; the ObjectStore and
// MetadataStore behind it are the durable source of truth that survives a
// restart and that peer instances converge on through periodic refresh.
package skillcatalog
