package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keyring entry names, stored under "<user>/<entry>" of a single service.
const (
	keyringClientID       = "client_id"
	keyringClientSecret   = "client_secret"
	keyringMasterPassword = "master_password"
)

// KeyringSource reads credentials from OS-native secure storage.
// Uses Linux Secret Service, macOS Keychain, or Windows Credential Manager.
type KeyringSource struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringSource implements Source
var _ Source = (*KeyringSource)(nil)

// NewKeyringSource creates a KeyringSource for the given service and user identifiers.
func NewKeyringSource(service, user string) (*KeyringSource, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringSource{
		service: service,
		user:    user,
	}, nil
}

// Load returns the credentials from the system keyring.
func (k *KeyringSource) Load(ctx context.Context) (*Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set := &Set{}
	fields := []struct {
		entry string
		dst   *Secret
	}{
		{keyringClientID, &set.ClientID},
		{keyringClientSecret, &set.ClientSecret},
		{keyringMasterPassword, &set.MasterPassword},
	}

	for _, f := range fields {
		value, err := keyring.Get(k.service, k.account(f.entry))
		if errors.Is(err, keyring.ErrNotFound) {
			set.Wipe()
			return nil, fmt.Errorf("%w: no %s in keyring for service %s, user %s", ErrMissing, f.entry, k.service, k.user)
		}
		if err != nil {
			set.Wipe()
			return nil, fmt.Errorf("reading %s from keyring: %w", f.entry, err)
		}
		*f.dst = Secret(value)
	}

	if err := set.Validate(); err != nil {
		set.Wipe()
		return nil, err
	}

	return set, nil
}

// Store persists the credentials to the system keyring, overwriting any existing values.
func (k *KeyringSource) Store(ctx context.Context, set *Set) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := set.Validate(); err != nil {
		return err
	}

	entries := map[string]Secret{
		keyringClientID:       set.ClientID,
		keyringClientSecret:   set.ClientSecret,
		keyringMasterPassword: set.MasterPassword,
	}
	for entry, value := range entries {
		if err := keyring.Set(k.service, k.account(entry), value.Reveal()); err != nil {
			return fmt.Errorf("writing %s to keyring: %w", entry, err)
		}
	}

	return nil
}

// Delete removes every stored credential. Entries that do not exist are ignored.
func (k *KeyringSource) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var errs []error
	for _, entry := range []string{keyringClientID, keyringClientSecret, keyringMasterPassword} {
		err := keyring.Delete(k.service, k.account(entry))
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			errs = append(errs, fmt.Errorf("deleting %s from keyring: %w", entry, err))
		}
	}

	return errors.Join(errs...)
}

func (k *KeyringSource) account(entry string) string {
	return k.user + "/" + entry
}
