package backup

import (
	"context"
	"errors"
)

// Fatal run errors. Each aborts the run; callers map them to process exit codes.
var (
	// ErrMissingDependency indicates the vault CLI binary could not be resolved.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrInvalidCredentials indicates a required credential is unset or empty.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMountUnavailable indicates the backup mount never became writable.
	ErrMountUnavailable = errors.New("backup mount unavailable")

	// ErrCommandFailed indicates a vault CLI invocation failed.
	ErrCommandFailed = errors.New("vault command failed")
)

// Process exit codes.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitMissingDependency = 2
	ExitInvalidCredential = 3
	ExitMountUnavailable  = 4
	ExitCommandFailed     = 5
	ExitInterrupted       = 130
)

// ExitCode maps an error returned by Run to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	// Cancellation is reported as an interrupt even when it aborted a CLI command.
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, ErrMissingDependency):
		return ExitMissingDependency
	case errors.Is(err, ErrInvalidCredentials):
		return ExitInvalidCredential
	case errors.Is(err, ErrMountUnavailable):
		return ExitMountUnavailable
	case errors.Is(err, ErrCommandFailed):
		return ExitCommandFailed
	default:
		return ExitFailure
	}
}
