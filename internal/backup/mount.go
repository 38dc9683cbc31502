package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/juju/retry"
)

// MountPolicy bounds how long a run waits for the backup mount.
type MountPolicy struct {
	Path     string
	Attempts int
	Delay    time.Duration
	Clock    retry.Clock
}

// WaitForMount polls the mount path until it exists, is a directory and accepts a
// check file. Returns an error wrapping ErrMountUnavailable once the attempts are
// exhausted, or the context error if ctx is cancelled first.
func WaitForMount(ctx context.Context, policy MountPolicy) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return checkWritable(policy.Path)
		},
		NotifyFunc: func(err error, attempt int) {
			slog.WarnContext(ctx, "backup mount not ready",
				"path", policy.Path, "attempt", attempt, "attempts", policy.Attempts, "error", err)
		},
		Attempts: policy.Attempts,
		Delay:    policy.Delay,
		Clock:    policy.Clock,
		Stop:     ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if retry.IsAttemptsExceeded(err) {
		err = retry.LastError(err)
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrMountUnavailable, policy.Path, policy.Attempts, err)
}

func checkWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	check, err := os.CreateTemp(path, ".vaultbackup-write-check-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", path, err)
	}
	name := check.Name()
	_ = check.Close()
	return os.Remove(name)
}
