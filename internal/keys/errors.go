package keys

import (
	"errors"
	"fmt"
)

// ErrStaleKey indicates a key that is not the most recently registered one.
var ErrStaleKey = errors.New("stale encryption key")

// ErrUnsyncedRegistry indicates that the remote holds key registrations this
// replica has not pulled, so it must not register a key of its own.
var ErrUnsyncedRegistry = errors.New("key registrations exist remotely, pull before writing")

// KeyError reports an attempt to use a key other than the current one.
type KeyError struct {
	// Want is the id of the currently registered key.
	Want string
	// Got is the id of the key offered.
	Got string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("key %s is not current (registered key is %s)", e.Got, e.Want)
}

func (e *KeyError) Unwrap() error {
	return ErrStaleKey
}

// IsStaleKey reports whether err is a KeyError.
func IsStaleKey(err error) bool {
	return errors.Is(err, ErrStaleKey)
}
