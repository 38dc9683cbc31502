package credentials

import (
	"fmt"
	"log/slog"
	"strings"
)

// Secret is a sensitive value kept as bytes so it can be zeroed after use.
type Secret []byte

// String redacts the secret so it never ends up in formatted output.
func (s Secret) String() string {
	return "[REDACTED]"
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// Reveal returns the plain value. Callers must not retain the returned string.
func (s Secret) Reveal() string {
	return string(s)
}

// Empty reports whether the secret holds no non-whitespace content.
func (s Secret) Empty() bool {
	return strings.TrimSpace(string(s)) == ""
}

// Wipe overwrites the secret in place.
func (s Secret) Wipe() {
	for i := range s {
		s[i] = 0
	}
}

// Set holds the credentials needed to authenticate against and unlock the vault.
type Set struct {
	ClientID       Secret
	ClientSecret   Secret
	MasterPassword Secret
}

// Validate returns an error wrapping ErrMissing naming every empty field.
func (s *Set) Validate() error {
	var missing []string
	if s.ClientID.Empty() {
		missing = append(missing, "client id")
	}
	if s.ClientSecret.Empty() {
		missing = append(missing, "client secret")
	}
	if s.MasterPassword.Empty() {
		missing = append(missing, "master password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

// Wipe zeroes every secret of the set and drops the references, so a wiped
// Set no longer validates. Safe to call on a nil Set.
func (s *Set) Wipe() {
	if s == nil {
		return
	}
	for _, secret := range []*Secret{&s.ClientID, &s.ClientSecret, &s.MasterPassword} {
		secret.Wipe()
		*secret = nil
	}
}
