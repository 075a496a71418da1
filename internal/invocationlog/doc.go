// Package invocationlog records skill invocations for audit and
// completion-argument history. Appends are fire-and-forget: they land in a
// bounded in-memory queue drained by a background worker, so logging never
// blocks the request path. Durability is at-most-once — if the queue is
// full, the oldest buffered event is dropped and a counter is incremented.
package invocationlog
