// Package keysink delivers secret rotation notices to external key-management
// systems.
//
// Notification is best effort. The rotation manager bounds each call with a
// timeout, logs and counts failures, and never rolls a rotation back because
// a sink failed.
//
// # Components
//
//   - [Notifier]: the collaborator interface, with [NotifierFunc] and [Multi].
//   - [RedisPublisher]: publishes a JSON notice (without secret material) on a
//     Redis channel so peer instances can react.
//   - [SecretsManager]: writes the new current secret to AWS Secrets Manager
//     as a new secret version.
package keysink
