package credentials

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PasswordReader reads a line from the terminal without echoing it.
type PasswordReader func() ([]byte, error)

// PromptSource asks the operator for credentials on the terminal.
// The client id is echoed, the client secret and master password are masked.
type PromptSource struct {
	in           *bufio.Reader
	out          io.Writer
	readPassword PasswordReader

	// restore puts the terminal back into its original mode when a prompt is abandoned.
	restore func()
}

// Compile-time check to ensure PromptSource implements Source
var _ Source = (*PromptSource)(nil)

// NewPromptSource creates a PromptSource bound to the process terminal.
// Returns error if stdin is not a terminal.
func NewPromptSource() (*PromptSource, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("cannot prompt for credentials: stdin is not a terminal")
	}

	state, err := term.GetState(fd)
	if err != nil {
		return nil, fmt.Errorf("reading terminal state: %w", err)
	}

	p := NewPromptSourceFrom(os.Stdin, os.Stderr, func() ([]byte, error) {
		return term.ReadPassword(fd)
	})
	p.restore = func() {
		_ = term.Restore(fd, state)
	}
	return p, nil
}

// NewPromptSourceFrom creates a PromptSource reading visible input from in and masked
// input through readPassword. Prompts are written to out.
func NewPromptSourceFrom(in io.Reader, out io.Writer, readPassword PasswordReader) *PromptSource {
	return &PromptSource{
		in:           bufio.NewReader(in),
		out:          out,
		readPassword: readPassword,
	}
}

type promptResult struct {
	set *Set
	err error
}

// Load prompts for the client id, client secret and master password.
// Cancelling ctx abandons the pending prompt and restores the terminal; the
// blocked read is left behind and anything it returns later is wiped.
func (p *PromptSource) Load(ctx context.Context) (*Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan promptResult, 1)
	go func() {
		set, err := p.read(ctx)
		done <- promptResult{set: set, err: err}
	}()

	select {
	case r := <-done:
		return r.set, r.err
	case <-ctx.Done():
		if p.restore != nil {
			p.restore()
		}
		go func() {
			r := <-done
			r.set.Wipe()
		}()
		return nil, ctx.Err()
	}
}

func (p *PromptSource) read(ctx context.Context) (*Set, error) {
	set := &Set{}

	fmt.Fprint(p.out, "Client ID: ")
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return nil, fmt.Errorf("failed to read client id: %w", err)
	}
	set.ClientID = Secret(strings.TrimSpace(line))

	if set.ClientSecret, err = p.masked("Client secret: "); err != nil {
		set.Wipe()
		return nil, fmt.Errorf("failed to read client secret: %w", err)
	}

	if err := ctx.Err(); err != nil {
		set.Wipe()
		return nil, err
	}

	if set.MasterPassword, err = p.masked("Master password: "); err != nil {
		set.Wipe()
		return nil, fmt.Errorf("failed to read master password: %w", err)
	}

	if err := set.Validate(); err != nil {
		set.Wipe()
		return nil, err
	}

	return set, nil
}

func (p *PromptSource) masked(prompt string) (Secret, error) {
	fmt.Fprint(p.out, prompt)
	value, err := p.readPassword()
	fmt.Fprintln(p.out) // Add newline after hidden input
	if err != nil {
		return nil, err
	}
	return Secret(value), nil
}
