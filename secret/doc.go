// Package secret generates signing secrets and keeps the rotating set of valid
// secrets in memguard enclaves.
//
// # Components
//
//   - [Generator] produces hex-encoded secrets with 512 bits of entropy.
//   - [Keyring] holds the current secret plus at most [MaxPrevious] previous
//     secrets. Readers observe immutable snapshots; rotations are serialized.
//   - [Mask] and [Fingerprint] render secrets safely for logs and key IDs.
//
// # What this package must NOT do
//
//   - Log or return secret material other than through explicit accessors.
//   - Decide when to rotate. Scheduling and audit belong to the root package.
package secret
