package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
)

const recordColumns = `id, idx, host, tag, parent, timestamp, version, data, cek`

// Get retrieves a single record by id.
func (s *Store) Get(ctx context.Context, id record.ID) (store.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, string(id))
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.Wrap("get", fmt.Errorf("%s: %w", id, store.ErrNotFound))
	}
	if err != nil {
		return store.Record{}, store.Wrap("get", err)
	}
	return r, nil
}

// LenAll counts every record.
func (s *Store) LenAll(ctx context.Context) (uint64, error) {
	return s.count(ctx, "len all", `SELECT COUNT(*) FROM records`)
}

// Len counts the records of one chain.
func (s *Store) Len(ctx context.Context, host record.HostID, tag string) (uint64, error) {
	return s.count(ctx, "len", `SELECT COUNT(*) FROM records WHERE host = ? AND tag = ?`, string(host), tag)
}

// LenTag counts the records under tag across hosts.
func (s *Store) LenTag(ctx context.Context, tag string) (uint64, error) {
	return s.count(ctx, "len tag", `SELECT COUNT(*) FROM records WHERE tag = ?`, tag)
}

func (s *Store) count(ctx context.Context, op, query string, args ...any) (uint64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, store.Wrap(op, err)
	}
	return uint64(n), nil
}

// First returns the lowest-idx record of a chain, or nil if the chain is empty.
func (s *Store) First(ctx context.Context, host record.HostID, tag string) (*store.Record, error) {
	return s.optional(ctx, "first", `
		SELECT `+recordColumns+` FROM records
		WHERE host = ? AND tag = ?
		ORDER BY idx ASC LIMIT 1
	`, string(host), tag)
}

// Last returns the tip of a chain, or nil if the chain is empty.
func (s *Store) Last(ctx context.Context, host record.HostID, tag string) (*store.Record, error) {
	return s.optional(ctx, "last", `
		SELECT `+recordColumns+` FROM records
		WHERE host = ? AND tag = ?
		ORDER BY idx DESC LIMIT 1
	`, string(host), tag)
}

// Idx returns the record at an exact chain position, or nil.
func (s *Store) Idx(ctx context.Context, host record.HostID, tag string, idx record.Idx) (*store.Record, error) {
	if idx > store.MaxIdx {
		return nil, nil
	}
	return s.optional(ctx, "idx", `
		SELECT `+recordColumns+` FROM records
		WHERE host = ? AND tag = ? AND idx = ?
	`, string(host), tag, int64(idx))
}

func (s *Store) optional(ctx context.Context, op, query string, args ...any) (*store.Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap(op, err)
	}
	return &r, nil
}

// Next returns up to limit records starting at idx, ordered by idx ASC.
// The page ends early at the first gap so it is always contiguous.
func (s *Store) Next(ctx context.Context, host record.HostID, tag string, idx record.Idx, limit uint64) ([]store.Record, error) {
	if limit == 0 || idx > store.MaxIdx {
		return []store.Record{}, nil
	}
	limit = min(limit, store.MaxIdx)
	rs, err := s.query(ctx, "next", `
		SELECT `+recordColumns+` FROM records
		WHERE host = ? AND tag = ? AND idx >= ?
		ORDER BY idx ASC
		LIMIT ?
	`, string(host), tag, int64(idx), int64(limit))
	if err != nil {
		return nil, err
	}
	return contiguous(rs, idx), nil
}

// AllTagged returns every record under tag, ordered by host then idx.
func (s *Store) AllTagged(ctx context.Context, tag string) ([]store.Record, error) {
	return s.query(ctx, "all tagged", `
		SELECT `+recordColumns+` FROM records
		WHERE tag = ?
		ORDER BY host ASC, idx ASC
	`, tag)
}

// Status returns the tip of every chain.
func (s *Store) Status(ctx context.Context) (record.Status, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT host, tag, MAX(idx) FROM records GROUP BY host, tag`)
	if err != nil {
		return record.Status{}, store.Wrap("status", err)
	}
	defer rows.Close()

	status := record.NewStatus()
	for rows.Next() {
		var host, tag string
		var idx int64
		if err := rows.Scan(&host, &tag, &idx); err != nil {
			return record.Status{}, store.Wrap("status", fmt.Errorf("scan: %w", err))
		}
		status.Set(record.HostID(host), tag, record.Idx(idx))
	}
	if err := rows.Err(); err != nil {
		return record.Status{}, store.Wrap("status", fmt.Errorf("iterate: %w", err))
	}
	return status, nil
}

// IDs lists every record id ordered by host, tag and idx.
func (s *Store) IDs(ctx context.Context) ([]record.ID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM records ORDER BY host ASC, tag ASC, idx ASC`)
	if err != nil {
		return nil, store.Wrap("ids", err)
	}
	defer rows.Close()

	var ids []record.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, store.Wrap("ids", fmt.Errorf("scan: %w", err))
		}
		ids = append(ids, record.ID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("ids", fmt.Errorf("iterate: %w", err))
	}
	return ids, nil
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Wrap(op, err)
	}
	defer rows.Close()

	var rs []store.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, store.Wrap(op, err)
		}
		rs = append(rs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap(op, fmt.Errorf("iterate: %w", err))
	}

	// Return empty slice instead of nil
	if rs == nil {
		rs = []store.Record{}
	}
	return rs, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (store.Record, error) {
	var (
		r              store.Record
		id, host       string
		parent         sql.NullString
		idx, timestamp int64
	)
	err := row.Scan(&id, &idx, &host, &r.Tag, &parent, &timestamp, &r.Version, &r.Data.Data, &r.Data.ContentEncryptionKey)
	if err != nil {
		return store.Record{}, err
	}
	r.ID = record.ID(id)
	r.Idx = record.Idx(idx)
	r.Host = record.HostID(host)
	r.Timestamp = uint64(timestamp)
	if parent.Valid {
		p := record.ID(parent.String)
		r.Parent = &p
	}
	return r, nil
}

// contiguous truncates rs at the first idx gap after start.
func contiguous(rs []store.Record, start record.Idx) []store.Record {
	for i, r := range rs {
		if r.Idx != start+record.Idx(i) {
			return rs[:i]
		}
	}
	return rs
}
