package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
)

// Client is the remote side of a sync.
type Client interface {
	// Status returns the tip of every chain the remote holds.
	Status(ctx context.Context) (record.Status, error)
	// Next returns up to count records of a chain starting at start.
	Next(ctx context.Context, host record.HostID, tag string, start record.Idx, count uint64) ([]store.Record, error)
	// Push appends records to the remote atomically.
	Push(ctx context.Context, rs []store.Record) error
}

// ErrTransport matches every error returned by HTTPClient.
var ErrTransport = errors.New("transport error")

// TransportError describes a failed round trip.
type TransportError struct {
	Op string
	// Status is the HTTP status code, or 0 if no response arrived.
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
