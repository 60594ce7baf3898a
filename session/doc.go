// Package session defines the persisted session record, the [Store] contract
// the lifecycle manager depends on, and a Redis implementation of it.
//
// # Redis layout
//
// Each session is a hash holding a compact binary identity blob plus the
// mutable timestamps as unix milliseconds. A per-user set indexes session IDs
// and a token key maps the opaque session token to its ID. Keys expire at the
// session's expiresAt; timeout policy itself is NOT evaluated here.
//
// # What this package must NOT do
//
//   - Import authlife (no upward imports).
//   - Decide whether a session is idle or expired; that belongs to the manager.
//   - Lower a stored expiresAt. Extension is monotonic at the store level.
package session
