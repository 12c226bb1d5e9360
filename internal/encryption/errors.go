package encryption

import (
	"errors"
	"fmt"
)

var (
	// ErrDecryption is matched by every authentication, key or format failure.
	ErrDecryption = errors.New("decryption failed")

	// ErrUnknownScheme indicates a label or scheme name no registered scheme handles.
	ErrUnknownScheme = errors.New("unknown encryption scheme")
)

// DecryptionError describes why a ciphertext was rejected.
// errors.Is(err, ErrDecryption) holds for every DecryptionError.
type DecryptionError struct {
	Scheme string
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrDecryption, e.Reason)
	if e.Scheme != "" {
		msg = fmt.Sprintf("%s (scheme %s)", msg, e.Scheme)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryption
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

func decryptionError(scheme, reason string, err error) *DecryptionError {
	return &DecryptionError{Scheme: scheme, Reason: reason, Err: err}
}
