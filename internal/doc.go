// Package internal contains helper utilities that are intentionally private to
// authlife: session identifiers and opaque session tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//
// # What this package must NOT do
//
//   - Export types that appear in the public authlife API.
//   - Be imported by any package outside the authlife module.
package internal
