// Package capture holds the domain types for a single photo capture:
// positioning metadata with its bearing provenance, the capture mode
// policy, and capture id generation. Orchestration of captures into the
// queue lives in package coordinator.
package capture
