package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/florianilch/vaultbackup/internal/backup"
)

// Option adjusts the backup configuration derived from Config.
type Option func(*backup.Config)

// App wires configuration, credential source and vault CLI into one backup run.
type App struct {
	cfg          *Config
	variant      Variant
	orchestrator *backup.Orchestrator
}

// New creates a new App instance for the given variant.
// Prompting sources only touch the terminal once Run is called.
func New(cfg *Config, variant Variant, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	source, err := cfg.NewCredentialSource(variant)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential source: %w", err)
	}

	backupCfg := backup.Config{
		Credentials:  source,
		BackupRoot:   cfg.Backup.Root,
		MountPath:    cfg.Mount.Path,
		WaitForMount: cfg.MountWait(variant),
		RetryCount:   cfg.Mount.RetryCount,
		RetryDelay:   cfg.Mount.RetryDelay,
		CLIPath:      cfg.Vault.CLIPath,
		ServerURL:    cfg.Vault.ServerURL,
		CleanupEnv:   cfg.CleanupEnv(),
	}
	for _, opt := range opts {
		opt(&backupCfg)
	}

	orchestrator, err := backup.New(backupCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup orchestrator: %w", err)
	}

	return &App{
		cfg:          cfg,
		variant:      variant,
		orchestrator: orchestrator,
	}, nil
}

// Run performs one backup and blocks until it finished or ctx is cancelled.
func (a *App) Run(ctx context.Context) (backup.Report, error) {
	slog.InfoContext(ctx, "running backup",
		"variant", a.variant,
		"credentials", a.cfg.CredentialSource(a.variant),
		"wait_for_mount", a.cfg.MountWait(a.variant))

	report, err := a.orchestrator.Run(ctx)
	if err != nil {
		return report, err
	}

	slog.InfoContext(ctx, "application finished", "artifact", report.ArtifactPath)
	return report, nil
}
