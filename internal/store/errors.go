package store

import (
	"errors"
	"fmt"
	"math"

	"github.com/roach88/chainsync/internal/record"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a duplicate record id or chain position.
	ErrConflict = errors.New("record conflict")

	// ErrIdxRange indicates an idx beyond MaxIdx.
	ErrIdxRange = errors.New("record idx out of range")
)

// MaxIdx is the largest idx a store accepts. Backends keep idx in a signed
// 64-bit column.
const MaxIdx record.Idx = math.MaxInt64

// CheckRange fails with ErrIdxRange if any record sits beyond MaxIdx.
func CheckRange(rs []Record) error {
	for _, r := range rs {
		if r.Idx > MaxIdx {
			return fmt.Errorf("%w: %s", ErrIdxRange, r)
		}
	}
	return nil
}

// StorageError annotates a backend failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap returns nil for a nil err, and otherwise err annotated with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsNotFound reports whether err means a record was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is an id or position collision.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
