package recordsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
)

// ErrStaleDiff indicates the local store changed after the diff was taken.
var ErrStaleDiff = errors.New("local store changed since diff")

// Kind is the action an Operation calls for.
type Kind int

const (
	Noop Kind = iota
	Upload
	Download
)

func (k Kind) String() string {
	switch k {
	case Noop:
		return "noop"
	case Upload:
		return "upload"
	case Download:
		return "download"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Operation is the unit of work for one chain. Start and End bound the
// inclusive idx range to move; they are zero for a Noop.
type Operation struct {
	Kind  Kind
	Host  record.HostID
	Tag   string
	Start record.Idx
	End   record.Idx
}

// Len is the number of records the operation moves.
func (op Operation) Len() uint64 {
	if op.Kind == Noop {
		return 0
	}
	return op.End - op.Start + 1
}

func (op Operation) String() string {
	if op.Kind == Noop {
		return fmt.Sprintf("noop %s/%s", op.Host, op.Tag)
	}
	return fmt.Sprintf("%s %s/%s [%d..%d]", op.Kind, op.Host, op.Tag, op.Start, op.End)
}

// Operations turns each diff entry into exactly one operation.
//
// For uploads the local tail is read back and must sit at the diffed idx;
// if it moved, the diff is stale and ErrStaleDiff is returned.
func Operations(ctx context.Context, diffs []DiffEntry, st store.Store) ([]Operation, error) {
	ops := make([]Operation, 0, len(diffs))
	for _, d := range diffs {
		op := Operation{Host: d.Host, Tag: d.Tag}
		switch {
		case d.Local == d.Remote:
			op.Kind = Noop
		case d.Local > d.Remote:
			last, err := st.Last(ctx, d.Host, d.Tag)
			if err != nil {
				return nil, fmt.Errorf("operations %s/%s: %w", d.Host, d.Tag, err)
			}
			if last == nil || int64(last.Idx) != d.Local {
				return nil, fmt.Errorf("operations %s/%s: local tail is not at %d: %w", d.Host, d.Tag, d.Local, ErrStaleDiff)
			}
			op.Kind = Upload
			op.Start, op.End = record.Idx(d.Remote+1), record.Idx(d.Local)
		default:
			op.Kind = Download
			op.Start, op.End = record.Idx(d.Local+1), record.Idx(d.Remote)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// PushOperations keeps the uploads of host's own chains.
func PushOperations(ops []Operation, host record.HostID) []Operation {
	return filter(ops, func(op Operation) bool {
		return op.Kind == Upload && op.Host == host
	})
}

// PullOperations keeps the downloads.
func PullOperations(ops []Operation) []Operation {
	return filter(ops, func(op Operation) bool {
		return op.Kind == Download
	})
}

func filter(ops []Operation, keep func(Operation) bool) []Operation {
	out := []Operation{}
	for _, op := range ops {
		if keep(op) {
			out = append(out, op)
		}
	}
	return out
}

// Tally summarizes an operation list.
type Tally struct {
	Noop     int `json:"noop"`
	Upload   int `json:"upload"`
	Download int `json:"download"`
	// UploadRecords and DownloadRecords count records, not operations.
	UploadRecords   uint64 `json:"upload_records"`
	DownloadRecords uint64 `json:"download_records"`
}

// Counts tallies ops by kind.
func Counts(ops []Operation) Tally {
	var t Tally
	for _, op := range ops {
		switch op.Kind {
		case Noop:
			t.Noop++
		case Upload:
			t.Upload++
			t.UploadRecords += op.Len()
		case Download:
			t.Download++
			t.DownloadRecords += op.Len()
		}
	}
	return t
}
