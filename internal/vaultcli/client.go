package vaultcli

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Environment variables recognized by the Bitwarden CLI.
const (
	EnvClientID     = "BW_CLIENTID"
	EnvClientSecret = "BW_CLIENTSECRET"
	EnvSession      = "BW_SESSION"
	EnvPassword     = "BW_PASSWORD"
)

// SecretEnv lists the variables never inherited by a child process.
var SecretEnv = []string{EnvClientID, EnvClientSecret, EnvSession, EnvPassword}

// Session is an opaque session token returned by login or unlock.
type Session string

// String redacts the token.
func (s Session) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// Result carries the outcome of a single CLI invocation.
type Result struct {
	ExitCode int
	// Stdout is empty when output was streamed to a caller-provided writer.
	Stdout string
	// Stderr is truncated to a bounded size.
	Stderr string
}

// Succeeded reports whether the command exited with status zero.
func (r Result) Succeeded() bool {
	return r.ExitCode == 0
}

// Token returns stdout trimmed of surrounding whitespace, as printed by --raw commands.
func (r Result) Token() Session {
	return Session(strings.TrimSpace(r.Stdout))
}

// Err returns nil on success and a descriptive error otherwise.
func (r Result) Err() error {
	if r.Succeeded() {
		return nil
	}
	if msg := lastLine(r.Stderr); msg != "" {
		return fmt.Errorf("exit status %d: %s", r.ExitCode, msg)
	}
	return fmt.Errorf("exit status %d", r.ExitCode)
}

// Status is the parsed output of `bw status`.
type Status struct {
	ServerURL string `json:"serverUrl"`
	UserEmail string `json:"userEmail"`
	Status    string `json:"status"`
}

// Vault states reported by `bw status`.
const (
	StatusUnauthenticated = "unauthenticated"
	StatusLocked          = "locked"
	StatusUnlocked        = "unlocked"
)

// Authenticated reports whether a user is logged in, locked or not.
func (s Status) Authenticated() bool {
	return s.Status == StatusLocked || s.Status == StatusUnlocked
}

// Client is the set of vault CLI operations a backup run needs.
//
// The returned error is reserved for failures to run the command at all (binary
// missing, context cancelled); a command that ran and failed reports a non-zero
// Result.ExitCode with a nil error.
type Client interface {
	Status(ctx context.Context) (Status, error)
	ConfigureServer(ctx context.Context, serverURL string) (Result, error)
	Login(ctx context.Context, clientID, clientSecret string) (Result, error)
	Unlock(ctx context.Context, session Session, password string) (Result, error)
	// Export streams the export to w.
	Export(ctx context.Context, session Session, password, format string, w io.Writer) (Result, error)
	Logout(ctx context.Context) (Result, error)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
