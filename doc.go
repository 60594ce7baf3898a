// Package authlife manages the lifetime of authentication credentials: a
// rotating set of signing secrets and server-side login sessions governed by
// idle and absolute timeouts.
//
// Construct an [Engine] with [Builder]. The engine owns a [RotationManager]
// (current secret plus a bounded history of previous ones, with scheduled,
// manual and emergency rotation) and a [SessionManager] (validity checks,
// activity extension, invalidation). All Engine methods are safe to call from
// multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// authlife is the public surface. Session persistence lives behind
// [session.Store] (Redis and PostgreSQL implementations ship in session and
// session/sqlstore). Key-management notification lives behind
// [keysink.Notifier]. Audit dispatch lives under internal/audit.
//
// # What this package must NOT do
//
//   - Log or return secret material outside the explicit secret accessors.
//   - Install OS signal handlers. [Engine.Close] is the shutdown hook.
//   - Import any sub-package that re-imports authlife (no import cycles).
//
// # Performance contract
//
// Secret reads are lock-free against an immutable snapshot. Session reads
// are one store round trip; activity updates within
// SessionConfig.MinExtensionInterval of the previous write skip the store.
package authlife
