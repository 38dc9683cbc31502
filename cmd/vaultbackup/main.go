package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/florianilch/vaultbackup/cmd/vaultbackup/commands"
	"github.com/florianilch/vaultbackup/internal/backup"
)

func main() {
	// Cancellation lets deferred cleanup (secret wiping, logout) run before exit.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx, os.Args)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(backup.ExitCode(err))
	}
}
