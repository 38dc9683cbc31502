// Package credentials provides the sources a backup run reads its vault credentials from.
//
// Supports three sources with different deployment tradeoffs:
//   - Env: Read-only environment variable access (service units, external secret management)
//   - Prompt: Masked terminal input for interactive runs
//   - Keyring: OS-native credential storage (Linux Secret Service, macOS Keychain, etc.)
//
// Every source returns a Set whose secrets live only in process memory and must be
// wiped by the caller once the run is over.
package credentials
