package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Default environment variable names recognized by the Bitwarden CLI and the backup scripts.
const (
	DefaultClientIDEnv     = "BW_CLIENTID"
	DefaultClientSecretEnv = "BW_CLIENTSECRET"
	DefaultPasswordEnv     = "BW_PASSWORD"
)

// EnvSource reads credentials from environment variables.
// Read-only: the variables are provided by the service manager or the operator's shell.
type EnvSource struct {
	clientIDKey     string
	clientSecretKey string
	passwordKey     string

	lookup func(string) (string, bool)
}

// Compile-time check to ensure EnvSource implements Source
var _ Source = (*EnvSource)(nil)

// NewEnvSource creates an EnvSource for the given variable names.
// A nil lookup falls back to os.LookupEnv.
func NewEnvSource(clientIDKey, clientSecretKey, passwordKey string, lookup func(string) (string, bool)) (*EnvSource, error) {
	if clientIDKey == "" || clientSecretKey == "" || passwordKey == "" {
		return nil, fmt.Errorf("environment keys cannot be empty")
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}

	return &EnvSource{
		clientIDKey:     clientIDKey,
		clientSecretKey: clientSecretKey,
		passwordKey:     passwordKey,
		lookup:          lookup,
	}, nil
}

// Load returns the credentials. Every unset or empty variable is reported at once.
func (e *EnvSource) Load(ctx context.Context) (*Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var missing []string
	get := func(key string) Secret {
		value, ok := e.lookup(key)
		if !ok || strings.TrimSpace(value) == "" {
			missing = append(missing, key)
			return nil
		}
		return Secret(value)
	}

	set := &Set{
		ClientID:       get(e.clientIDKey),
		ClientSecret:   get(e.clientSecretKey),
		MasterPassword: get(e.passwordKey),
	}
	if len(missing) > 0 {
		set.Wipe()
		return nil, fmt.Errorf("%w: environment variables not set or empty: %s", ErrMissing, strings.Join(missing, ", "))
	}

	return set, nil
}
