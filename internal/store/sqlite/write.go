package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
)

// Push appends a single record.
func (s *Store) Push(ctx context.Context, r store.Record) error {
	return s.PushBatch(ctx, []store.Record{r})
}

// PushBatch inserts records in one transaction, in the order given.
// A duplicate id or (host, tag, idx) fails the whole batch with store.ErrConflict.
func (s *Store) PushBatch(ctx context.Context, rs []store.Record) error {
	if len(rs) == 0 {
		return nil
	}
	if err := store.CheckRange(rs); err != nil {
		return store.Wrap("push batch", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Wrap("push batch", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records
		(id, idx, host, tag, parent, timestamp, version, data, cek)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return store.Wrap("push batch", fmt.Errorf("prepare: %w", err))
	}
	defer stmt.Close()

	for _, r := range rs {
		_, err := stmt.ExecContext(ctx,
			string(r.ID),
			int64(r.Idx),
			string(r.Host),
			r.Tag,
			nullParent(r.Parent),
			int64(r.Timestamp),
			r.Version,
			r.Data.Data,
			r.Data.ContentEncryptionKey,
		)
		if err != nil {
			return store.Wrap("push batch", fmt.Errorf("insert %s: %w", r, classify(err)))
		}
	}

	if err := tx.Commit(); err != nil {
		return store.Wrap("push batch", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Delete removes one record. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id record.ID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, string(id)); err != nil {
		return store.Wrap("delete", err)
	}
	return nil
}

// DeleteAll removes every record.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return store.Wrap("delete all", err)
	}
	return nil
}

// Replace swaps the payload of an existing record in a single UPDATE.
// Identity columns are part of the WHERE clause so a mismatched record is
// reported as not found rather than silently rewritten.
func (s *Store) Replace(ctx context.Context, r store.Record) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET data = ?, cek = ?
		WHERE id = ? AND host = ? AND tag = ? AND idx = ?
	`,
		r.Data.Data,
		r.Data.ContentEncryptionKey,
		string(r.ID),
		string(r.Host),
		r.Tag,
		int64(r.Idx),
	)
	if err != nil {
		return store.Wrap("replace", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Wrap("replace", fmt.Errorf("rows affected: %w", err))
	}
	if n == 0 {
		return store.Wrap("replace", fmt.Errorf("%s: %w", r, store.ErrNotFound))
	}
	return nil
}

func nullParent(p *record.ID) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*p), Valid: true}
}

// classify maps SQLite constraint violations onto store.ErrConflict.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}
