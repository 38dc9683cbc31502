package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/vaultbackup/internal/credentials"
)

func keyringCommand() *cli.Command {
	return &cli.Command{
		Name:  "keyring",
		Usage: "manage credentials stored in the OS keyring",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "credentials--keyring-service",
				Usage: "keyring service name",
			},
			&cli.StringFlag{
				Name:  "credentials--keyring-user",
				Usage: "keyring user (default: current user)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "set",
				Usage:  "prompt for credentials and store them in the keyring",
				Action: keyringSetAction,
			},
			{
				Name:   "delete",
				Usage:  "remove stored credentials from the keyring",
				Action: keyringDeleteAction,
			},
		},
	}
}

func keyringSetAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := cfg.NewKeyringSource()
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	prompt, err := credentials.NewPromptSource()
	if err != nil {
		return err
	}

	set, err := prompt.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}
	defer set.Wipe()

	if err := store.Store(ctx, set); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	fmt.Fprintf(cmd.Root().Writer, "Credentials stored in keyring service %q for user %q\n",
		cfg.Credentials.KeyringService, cfg.Credentials.KeyringUser)
	return nil
}

func keyringDeleteAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := cfg.NewKeyringSource()
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	if err := store.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}

	fmt.Fprintf(cmd.Root().Writer, "Credentials removed from keyring service %q\n", cfg.Credentials.KeyringService)
	return nil
}
