// Package objectstore stores versioned skill package file trees under a
// pluggable backend: a filesystem root for local development, or an
// S3-compatible bucket for deployed instances. Version directories are
// immutable once written; a latest pointer object is written last during
// publish and acts as the commit point.
package objectstore
