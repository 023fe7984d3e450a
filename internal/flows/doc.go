// Package flows holds the verification flow state machines, isolated from
// the public engine surface. Each flow is a step-indexed machine fed through
// a deps struct, so transitions and invariants stay checkable without the
// engine, the API client, or any rendering layer.
package flows
