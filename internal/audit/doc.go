// Package audit implements async event dispatching for credential and session
// lifecycle operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, fan-out, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured audit record with timestamp, type, user, tenant, IP, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the rotation and session managers do.
//
// Sink failures are logged and counted here and are never propagated to the
// operation that produced the event.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authlife or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
