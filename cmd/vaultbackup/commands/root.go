package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/vaultbackup/internal/app"
	"github.com/florianilch/vaultbackup/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "vaultbackup",
		Usage: "Encrypted backups of a self-hosted password vault",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			interactiveCommand(),
			keyringCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// backupFlags are shared by the run and interactive commands.
func backupFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "log--format",
			Usage: "log format (text|json)",
			Value: string(app.DefaultConfigLogFormat),
		},
		&cli.StringFlag{
			Name:  "backup--root",
			Usage: "directory the dated backup directories are created in",
		},
		&cli.StringFlag{
			Name:  "mount--path",
			Usage: "path polled for readiness before writing (default: backup root)",
		},
		&cli.BoolFlag{
			Name:  "mount--wait",
			Usage: "wait for the mount path to become writable",
		},
		&cli.IntFlag{
			Name:  "mount--retry-count",
			Usage: "mount readiness attempts",
			Value: app.DefaultConfigMountRetryCount,
		},
		&cli.DurationFlag{
			Name:  "mount--retry-delay",
			Usage: "delay between mount readiness attempts",
			Value: app.DefaultConfigMountRetryDelay,
		},
		&cli.StringFlag{
			Name:  "vault--cli-path",
			Usage: "vault CLI binary",
			Value: app.DefaultConfigVaultCLIPath,
		},
		&cli.StringFlag{
			Name:  "vault--server-url",
			Usage: "self-hosted vault server URL",
		},
		&cli.StringFlag{
			Name:  "credentials--source",
			Usage: "credential source (env|keyring|prompt)",
		},
		&cli.StringFlag{
			Name:  "telemetry--exporter",
			Usage: "OpenTelemetry log exporter (none|stdout|otlphttp|otlpgrpc)",
			Value: string(app.DefaultConfigTelemetryExporter),
		},
	}
}

func runCommand() *cli.Command {
	flags := append(backupFlags(), &cli.StringFlag{
		Name:  "log--file",
		Usage: "log file, rotated once it exceeds log.max_size_mb",
	})

	return &cli.Command{
		Name:  "run",
		Usage: "run an unattended backup (credentials from environment or keyring)",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return backupAction(ctx, cmd, app.VariantService)
		},
	}
}

func interactiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "interactive",
		Usage: "run a backup, prompting for credentials",
		Flags: backupFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return backupAction(ctx, cmd, app.VariantInteractive)
		},
	}
}

func backupAction(ctx context.Context, cmd *cli.Command, variant app.Variant) error {
	// Credential variables are cleared however the action ends, including
	// failures before the orchestrator gets to run its own cleanup.
	var cfg *app.Config
	defer func() {
		if err := app.ClearCredentialEnv(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to clear credential environment: %v\n", err)
		}
	}()

	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, instrumentOptions(cfg, variant))
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
		}
	}()

	application, err := app.New(cfg, variant)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create app", "error", err)
		return fmt.Errorf("failed to create app: %w", err)
	}

	if _, err := application.Run(ctx); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	return nil
}

// instrumentOptions logs service runs to the rotated file and interactive runs to stdout.
func instrumentOptions(cfg *app.Config, variant app.Variant) observability.Options {
	opts := observability.Options{
		Level:      cfg.LogLevel,
		Format:     observability.Format(cfg.Log.Format),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Exporter:   cfg.Telemetry.Exporter,
		Endpoint:   cfg.Telemetry.Endpoint,
	}
	if variant == app.VariantInteractive {
		opts.Output = os.Stdout
	}
	return opts
}
