// Package bindflow provides an identity verification and account-binding
// workflow engine: multi-step password recovery and account-bind flows built
// around one-time codes, a guard-token challenge, and a durable session
// projection.
//
// The package is designed for long-lived client processes: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build] and [Engine.Start].
//
// # Architecture boundaries
//
// bindflow is the public surface. It exposes [Engine], [Builder], [Config],
// the flow handles ([RecoveryFlow], [BindFlow]), and value types
// (MetricsSnapshot, AuditEvent). Flow orchestration lives under internal/
// and is never exported; storage backends, the notifier, the identity
// bridge, and the REST client live in their own packages and are wired
// through the Builder.
//
// # What this package must NOT do
//
//   - Re-read durable storage after the one startup load; the in-memory
//     session projection is the source of truth.
//   - Interpret the bearer token; it is opaque and forwarded verbatim.
//   - Retry a rejected submission on its own; every retry is user-driven.
package bindflow
