package credentials

import (
	"context"
	"errors"
)

// ErrMissing is returned when a source cannot provide every required credential.
var ErrMissing = errors.New("missing credentials")

// Source loads a credential Set.
type Source interface {
	// Load returns a complete Set. Returns an error wrapping ErrMissing if any value is
	// unset or empty.
	Load(ctx context.Context) (*Set, error)
}
