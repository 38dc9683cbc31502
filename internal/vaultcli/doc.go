// Package vaultcli drives the Bitwarden command-line client as an opaque subprocess.
//
// Every vault operation is one invocation of the CLI. Secrets never appear in the
// parent process environment: client credentials and session tokens are set on the
// child's environment only, and the master password used for unlocking is written to
// the child's standard input.
//
// # Clients
//
// Client is the capability interface used by the backup orchestrator; ExecClient is the
// implementation backed by os/exec:
//
//	cli := vaultcli.NewExecClient("/usr/bin/bw")
//	res, err := cli.Login(ctx, clientID, clientSecret)
//
// Tests substitute a fake Client, or point ExecClient at a helper process with
// WithPrefixArgs.
package vaultcli
