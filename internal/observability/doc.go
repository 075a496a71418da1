// Package observability wires structured logging, OpenTelemetry tracing,
// and the startup banner shared across every skillserver component.
package observability
