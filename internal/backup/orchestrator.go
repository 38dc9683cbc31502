package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/florianilch/vaultbackup/internal/credentials"
	"github.com/florianilch/vaultbackup/internal/vaultcli"
)

// logoutTimeout bounds the best-effort logout, which also runs after cancellation.
const logoutTimeout = 30 * time.Second

// Config describes a single backup run.
type Config struct {
	// Credentials provides the client id, client secret and master password.
	Credentials credentials.Source

	// BackupRoot is the directory the dated output directories are created in.
	BackupRoot string
	// MountPath is polled for readiness before anything is written. Defaults to BackupRoot.
	MountPath string
	// WaitForMount enables the mount readiness poll.
	WaitForMount bool
	RetryCount   int
	RetryDelay   time.Duration

	// CLIPath is the vault CLI binary, resolved through the search path.
	CLIPath string
	// ServerURL optionally points the CLI at a self-hosted server before login.
	ServerURL string

	// CleanupEnv lists process environment variables unset when the run ends.
	CleanupEnv []string

	// Hooks for tests. Nil values select the real implementations.
	LookPath  func(string) (string, error)
	NewClient func(path string) vaultcli.Client
	Now       func() time.Time
	Clock     retry.Clock
}

// DefaultCleanupEnv lists the credential and session variables cleared after every run.
var DefaultCleanupEnv = []string{
	credentials.DefaultClientIDEnv,
	credentials.DefaultClientSecretEnv,
	credentials.DefaultPasswordEnv,
	vaultcli.EnvSession,
}

// Report summarizes a successful run.
type Report struct {
	RunID        string
	ArtifactPath string
	Bytes        int64
	Duration     time.Duration
}

// Orchestrator runs backups for one configuration.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Orchestrator, filling unset hooks with their real implementations.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("missing credential source")
	}
	if cfg.BackupRoot == "" {
		return nil, errors.New("missing backup root")
	}
	if cfg.CLIPath == "" {
		return nil, errors.New("missing vault CLI path")
	}
	if cfg.WaitForMount && (cfg.RetryCount < 1 || cfg.RetryDelay <= 0) {
		return nil, fmt.Errorf("invalid mount retry policy: %d attempts, %s delay", cfg.RetryCount, cfg.RetryDelay)
	}

	if cfg.MountPath == "" {
		cfg.MountPath = cfg.BackupRoot
	}
	if cfg.CleanupEnv == nil {
		cfg.CleanupEnv = DefaultCleanupEnv
	}
	if cfg.LookPath == nil {
		cfg.LookPath = vaultcli.LookPath
	}
	if cfg.NewClient == nil {
		cfg.NewClient = func(path string) vaultcli.Client {
			return vaultcli.NewExecClient(path)
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}

	return &Orchestrator{cfg: cfg, logger: slog.Default()}, nil
}

// Run performs one backup. It produces exactly one artifact or returns an error
// wrapping one of the package's sentinel errors. Secrets are wiped and the cleanup
// variables unset before Run returns, whatever the outcome.
func (o *Orchestrator) Run(ctx context.Context) (report Report, err error) {
	start := o.cfg.Now()
	report.RunID = uuid.NewString()
	logger := o.logger.With("run_id", report.RunID)

	var creds *credentials.Set
	defer func() {
		o.cleanup(ctx, logger, creds)
		if err != nil {
			logger.ErrorContext(ctx, "backup failed", "error", err)
		}
	}()

	logger.InfoContext(ctx, "backup started", "backup_root", o.cfg.BackupRoot)

	cliPath, err := o.cfg.LookPath(o.cfg.CLIPath)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrMissingDependency, err)
	}
	logger.DebugContext(ctx, "vault CLI resolved", "path", cliPath)
	client := o.cfg.NewClient(cliPath)

	creds, err = o.cfg.Credentials.Load(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		return report, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if err := creds.Validate(); err != nil {
		return report, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	if o.cfg.WaitForMount {
		logger.InfoContext(ctx, "waiting for backup mount", "path", o.cfg.MountPath)
		err := WaitForMount(ctx, MountPolicy{
			Path:     o.cfg.MountPath,
			Attempts: o.cfg.RetryCount,
			Delay:    o.cfg.RetryDelay,
			Clock:    o.cfg.Clock,
		})
		if err != nil {
			return report, err
		}
	}

	dir := DateDir(o.cfg.BackupRoot, start)
	if err := provisionDir(dir); err != nil {
		return report, err
	}

	if err := o.prepareCLI(ctx, logger, client); err != nil {
		return report, err
	}

	res, err := client.Login(ctx, creds.ClientID.Reveal(), creds.ClientSecret.Reveal())
	if err != nil {
		return report, fmt.Errorf("%w: login: %w", ErrCommandFailed, err)
	}
	if err := res.Err(); err != nil {
		return report, fmt.Errorf("%w: login: %w", ErrCommandFailed, err)
	}
	defer o.logout(ctx, logger, client)

	session := res.Token()
	if session == "" {
		return report, fmt.Errorf("%w: login returned an empty session", ErrCommandFailed)
	}
	logger.InfoContext(ctx, "logged in")

	res, err = client.Unlock(ctx, session, creds.MasterPassword.Reveal())
	if err != nil {
		return report, fmt.Errorf("%w: unlock: %w", ErrCommandFailed, err)
	}
	if err := res.Err(); err != nil {
		return report, fmt.Errorf("%w: unlock: %w", ErrCommandFailed, err)
	}
	if session = res.Token(); session == "" {
		return report, fmt.Errorf("%w: unlock returned an empty session", ErrCommandFailed)
	}
	logger.InfoContext(ctx, "vault unlocked")

	path := filepath.Join(dir, ArtifactName(start))
	n, err := o.export(ctx, client, session, creds.MasterPassword.Reveal(), path)
	if err != nil {
		return report, err
	}

	report.ArtifactPath = path
	report.Bytes = n
	report.Duration = o.cfg.Now().Sub(start)
	logger.InfoContext(ctx, "backup completed",
		"path", path, "bytes", n, "duration", report.Duration)

	return report, nil
}

// prepareCLI logs out a leftover session and points the CLI at the configured server.
func (o *Orchestrator) prepareCLI(ctx context.Context, logger *slog.Logger, client vaultcli.Client) error {
	status, err := client.Status(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Older CLI releases print banners around the JSON; login reports real problems.
		logger.WarnContext(ctx, "could not determine vault CLI status", "error", err)
		return o.configureServer(ctx, logger, client, "")
	}

	if status.Authenticated() {
		logger.InfoContext(ctx, "logging out existing session", "user", status.UserEmail)
		res, err := client.Logout(ctx)
		if err == nil {
			err = res.Err()
		}
		if err != nil {
			logger.WarnContext(ctx, "logout of existing session failed", "error", err)
		}
	}

	return o.configureServer(ctx, logger, client, status.ServerURL)
}

func (o *Orchestrator) configureServer(ctx context.Context, logger *slog.Logger, client vaultcli.Client, current string) error {
	if o.cfg.ServerURL == "" || sameServer(current, o.cfg.ServerURL) {
		return nil
	}

	logger.InfoContext(ctx, "configuring vault server", "server", o.cfg.ServerURL)
	res, err := client.ConfigureServer(ctx, o.cfg.ServerURL)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		return fmt.Errorf("%w: config server: %w", ErrCommandFailed, err)
	}
	return nil
}

// export streams the vault export into a new file at path. The file is removed
// unless the command succeeded and left a non-empty file behind.
func (o *Orchestrator) export(ctx context.Context, client vaultcli.Client, session vaultcli.Session, password, path string) (n int64, err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return 0, fmt.Errorf("creating backup file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	w := &countingWriter{w: f}
	res, runErr := client.Export(ctx, session, password, vaultcli.ExportFormatEncryptedJSON, w)
	closeErr := f.Close()

	if runErr != nil {
		return 0, fmt.Errorf("%w: export: %w", ErrCommandFailed, runErr)
	}
	if err := res.Err(); err != nil {
		return 0, fmt.Errorf("%w: export: %w", ErrCommandFailed, err)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("writing backup file: %w", closeErr)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: export left no file: %w", ErrCommandFailed, err)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%w: export produced an empty file", ErrCommandFailed)
	}

	return w.n, nil
}

// logout is best-effort: failures are logged and never change the run's outcome.
func (o *Orchestrator) logout(ctx context.Context, logger *slog.Logger, client vaultcli.Client) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
	defer cancel()

	res, err := client.Logout(ctx)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		logger.WarnContext(ctx, "logout failed", "error", err)
		return
	}
	logger.InfoContext(ctx, "logged out")
}

// cleanup wipes in-memory secrets and clears credential variables from the process environment.
func (o *Orchestrator) cleanup(ctx context.Context, logger *slog.Logger, creds *credentials.Set) {
	creds.Wipe()

	for _, key := range o.cfg.CleanupEnv {
		if err := os.Unsetenv(key); err != nil {
			logger.WarnContext(ctx, "failed to clear environment variable", "name", key, "error", err)
		}
	}
	logger.DebugContext(ctx, "credentials cleared")
}

func sameServer(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
