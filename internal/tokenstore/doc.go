// Package tokenstore provides durable storage for the refresh credential.
//
// Supports several storage backends with different security and deployment tradeoffs:
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Diskv: Directory-backed key/value store, one file per key
//   - Redis: Shared storage for deployments running several relay instances
//   - Memory: Process-local storage that does not survive a restart
//
// A store holds exactly one value. Refresh token rotation overwrites it and a
// failed refresh deletes it.
package tokenstore
