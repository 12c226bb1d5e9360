package recordsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/remote"
	"github.com/roach88/chainsync/internal/store"
)

// DefaultPageSize is the number of records moved per request.
const DefaultPageSize = 100

// Options configures SyncRemote.
type Options struct {
	// Host is the identity of this replica.
	Host record.HostID
	// PageSize bounds each transfer; zero means DefaultPageSize.
	PageSize uint64
	Metrics  *Metrics
}

func (o Options) pageSize() uint64 {
	if o.PageSize == 0 {
		return DefaultPageSize
	}
	return o.PageSize
}

// Result reports what a sync moved.
type Result struct {
	Uploaded   int
	Downloaded []store.Record
}

// SyncRemote executes ops in order. It stops at the first failure and returns
// what was committed up to that point along with the error.
func SyncRemote(ctx context.Context, ops []Operation, st store.Store, rc remote.Client, opts Options) (Result, error) {
	res := Result{Downloaded: []store.Record{}}
	for _, op := range ops {
		var err error
		switch op.Kind {
		case Upload:
			err = upload(ctx, op, st, rc, opts, &res)
		case Download:
			err = download(ctx, op, st, rc, opts, &res)
		case Noop:
		default:
			err = fmt.Errorf("unknown operation kind %d", op.Kind)
		}
		if err != nil {
			return res, err
		}
		opts.Metrics.operationDone(op.Kind)
		if op.Kind != Noop {
			slog.Info("operation complete", "op", op.String(), "records", op.Len(), "host", opts.Host)
		}
	}
	return res, nil
}

func upload(ctx context.Context, op Operation, st store.Store, rc remote.Client, opts Options, res *Result) error {
	for idx := op.Start; idx <= op.End; {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s at %d: %w", op, idx, err)
		}
		start := time.Now()

		page, err := st.Next(ctx, op.Host, op.Tag, idx, min(opts.pageSize(), op.End-idx+1))
		if err != nil {
			return fmt.Errorf("%s at %d: %w", op, idx, err)
		}
		if len(page) == 0 {
			return fmt.Errorf("%s at %d: %w: no local record", op, idx, record.ErrBrokenChain)
		}
		if err := rc.Push(ctx, page); err != nil {
			return fmt.Errorf("%s at %d: %w", op, idx, err)
		}

		res.Uploaded += len(page)
		idx += record.Idx(len(page))
		opts.Metrics.observePage(Upload, len(page), start)
		slog.Debug("page uploaded", "host", op.Host, "tag", op.Tag, "records", len(page), "next", idx)
	}
	return nil
}

func download(ctx context.Context, op Operation, st store.Store, rc remote.Client, opts Options, res *Result) error {
	var tail *store.Record
	if op.Start > 0 {
		prev, err := st.Idx(ctx, op.Host, op.Tag, op.Start-1)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if prev == nil {
			return fmt.Errorf("%s: %w: no local record at %d", op, record.ErrBrokenChain, op.Start-1)
		}
		tail = prev
	}

	for idx := op.Start; idx <= op.End; {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s at %d: %w", op, idx, err)
		}
		start := time.Now()

		page, err := rc.Next(ctx, op.Host, op.Tag, idx, min(opts.pageSize(), op.End-idx+1))
		if err != nil {
			return fmt.Errorf("%s at %d: %w", op, idx, err)
		}
		if len(page) == 0 {
			return fmt.Errorf("%s at %d: %w: remote returned no records", op, idx, record.ErrBrokenChain)
		}
		if n := op.End - idx + 1; uint64(len(page)) > n {
			page = page[:n]
		}
		if err := record.ValidateChain(tail, page); err != nil {
			return fmt.Errorf("%s at %d: %w", op, idx, err)
		}
		if err := st.PushBatch(ctx, page); err != nil {
			return fmt.Errorf("%s at %d: %w", op, idx, err)
		}

		res.Downloaded = append(res.Downloaded, page...)
		tail = &page[len(page)-1]
		idx += record.Idx(len(page))
		opts.Metrics.observePage(Download, len(page), start)
		slog.Debug("page downloaded", "host", op.Host, "tag", op.Tag, "records", len(page), "next", idx)
	}
	return nil
}

// Sync runs the whole pipeline: Diff, Operations, then SyncRemote over every
// operation.
func Sync(ctx context.Context, st store.Store, rc remote.Client, opts Options) (Result, error) {
	ops, err := plan(ctx, st, rc)
	if err != nil {
		return Result{}, err
	}
	return SyncRemote(ctx, ops, st, rc, opts)
}

// ForcePull discards the local store and downloads everything the remote
// holds.
func ForcePull(ctx context.Context, st store.Store, rc remote.Client, opts Options) (Result, error) {
	if err := st.DeleteAll(ctx); err != nil {
		return Result{}, fmt.Errorf("force pull: %w", err)
	}
	slog.Warn("local records deleted for forced pull", "host", opts.Host)

	ops, err := plan(ctx, st, rc)
	if err != nil {
		return Result{}, err
	}
	return SyncRemote(ctx, PullOperations(ops), st, rc, opts)
}

func plan(ctx context.Context, st store.Store, rc remote.Client) ([]Operation, error) {
	diffs, _, err := Diff(ctx, rc, st)
	if err != nil {
		return nil, err
	}
	return Operations(ctx, diffs, st)
}
