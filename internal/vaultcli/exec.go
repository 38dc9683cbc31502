package vaultcli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
)

// DefaultStderrLimit bounds how much of a command's stderr is kept in a Result.
const DefaultStderrLimit = 16 * 1024

// ExportFormatEncryptedJSON is the password-protected encrypted JSON export format.
const ExportFormatEncryptedJSON = "encrypted_json"

// Option configures an ExecClient.
type Option func(*ExecClient)

// WithEnviron sets the function providing the base environment of child processes.
// If not provided, os.Environ is used.
func WithEnviron(environ func() []string) Option {
	return func(c *ExecClient) {
		c.environ = environ
	}
}

// WithPrefixArgs sets arguments placed before every CLI subcommand.
func WithPrefixArgs(args ...string) Option {
	return func(c *ExecClient) {
		c.prefixArgs = args
	}
}

// ExecClient runs the Bitwarden CLI binary.
type ExecClient struct {
	path        string
	prefixArgs  []string
	environ     func() []string
	stderrLimit int
}

// Compile-time check to ensure ExecClient implements Client
var _ Client = (*ExecClient)(nil)

// NewExecClient creates an ExecClient for the CLI binary at path.
func NewExecClient(path string, opts ...Option) *ExecClient {
	c := &ExecClient{
		path:        path,
		environ:     os.Environ,
		stderrLimit: DefaultStderrLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookPath resolves the CLI binary on the search path.
func LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("vault CLI %q not found: %w", name, err)
	}
	return path, nil
}

// Status returns the login state reported by `bw status`.
func (c *ExecClient) Status(ctx context.Context) (Status, error) {
	res, err := c.run(ctx, invocation{args: []string{"status"}})
	if err != nil {
		return Status{}, err
	}
	if err := res.Err(); err != nil {
		return Status{}, fmt.Errorf("status: %w", err)
	}

	var status Status
	if err := json.Unmarshal([]byte(strings.TrimSpace(res.Stdout)), &status); err != nil {
		return Status{}, fmt.Errorf("parsing status output: %w", err)
	}
	return status, nil
}

// ConfigureServer points the CLI at a self-hosted server. Only allowed while logged out.
func (c *ExecClient) ConfigureServer(ctx context.Context, serverURL string) (Result, error) {
	return c.run(ctx, invocation{args: []string{"config", "server", serverURL}})
}

// Login authenticates with an API key. The credentials are passed through the child's
// environment; the session token is printed on stdout.
func (c *ExecClient) Login(ctx context.Context, clientID, clientSecret string) (Result, error) {
	return c.run(ctx, invocation{
		args: []string{"login", "--apikey", "--raw"},
		env: []string{
			EnvClientID + "=" + clientID,
			EnvClientSecret + "=" + clientSecret,
		},
	})
}

// stdinPasswordFile lets the CLI read the password file from the child's stdin.
// Without a password argument the CLI would otherwise prompt, which --nointeraction refuses.
const stdinPasswordFile = "/dev/stdin"

// Unlock decrypts the vault. The password is written to the child's stdin.
func (c *ExecClient) Unlock(ctx context.Context, session Session, password string) (Result, error) {
	return c.run(ctx, invocation{
		args:  []string{"unlock", "--raw", "--passwordfile", stdinPasswordFile},
		env:   sessionEnv(session),
		stdin: strings.NewReader(password + "\n"),
	})
}

// Export writes an export of the unlocked vault to w.
func (c *ExecClient) Export(ctx context.Context, session Session, password, format string, w io.Writer) (Result, error) {
	if format == "" {
		format = ExportFormatEncryptedJSON
	}
	args := []string{"export", "--format", format, "--raw"}
	if format == ExportFormatEncryptedJSON {
		args = append(args, "--password", password)
	}

	return c.run(ctx, invocation{
		args:   args,
		env:    sessionEnv(session),
		stdout: w,
	})
}

// Logout ends the CLI login.
func (c *ExecClient) Logout(ctx context.Context) (Result, error) {
	return c.run(ctx, invocation{args: []string{"logout"}})
}

type invocation struct {
	args   []string
	env    []string
	stdin  io.Reader
	stdout io.Writer
}

func (c *ExecClient) run(ctx context.Context, inv invocation) (Result, error) {
	args := append(slices.Clone(c.prefixArgs), inv.args...)
	args = append(args, "--nointeraction")

	cmd := exec.CommandContext(ctx, c.path, args...)
	cmd.Env = append(c.childEnv(), inv.env...)
	cmd.Stdin = inv.stdin

	var stdout bytes.Buffer
	if inv.stdout != nil {
		cmd.Stdout = inv.stdout
	} else {
		cmd.Stdout = &stdout
	}
	stderr := &limitedBuffer{limit: c.stderrLimit}
	cmd.Stderr = stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w", inv.args[0], ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("running %s: %w", inv.args[0], err)
	}

	return res, nil
}

// childEnv returns the base environment without any inherited secret variables.
func (c *ExecClient) childEnv() []string {
	base := c.environ()
	env := make([]string, 0, len(base))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if slices.Contains(SecretEnv, key) {
			continue
		}
		env = append(env, kv)
	}
	return env
}

func sessionEnv(session Session) []string {
	if session == "" {
		return nil
	}
	return []string{EnvSession + "=" + string(session)}
}

// limitedBuffer keeps the first limit bytes written and discards the rest.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
