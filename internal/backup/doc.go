// Package backup runs one encrypted export of a password vault.
//
// A run is a fixed sequence: resolve the vault CLI, load credentials, wait for the
// backup mount, provision the dated output directory, log in, unlock, export, log
// out. Credentials and session tokens live only for the duration of Run; cleanup is
// deferred so it executes on every return path, including context cancellation.
package backup
