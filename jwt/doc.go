// Package jwt issues and verifies HS256 access tokens against a rotating set
// of signing secrets.
//
// # Architecture boundaries
//
// The package never owns secret material. A [KeySource] (the root package's
// RotationManager) supplies the current secret for signing and every still
// valid secret for verification. Tokens carry the signing secret's
// fingerprint in the "kid" header so verification normally costs one HMAC.
//
// # What this package must NOT do
//
//   - Cache secrets beyond a single Issue or Parse call.
//   - Decide whether the referenced session is alive.
//   - Accept algorithms other than HS256.
package jwt
