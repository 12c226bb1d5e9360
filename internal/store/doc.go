// Package store defines durable storage for encrypted records.
//
// A Store holds Record[EncryptedData] values grouped into chains, one chain per
// (host, tag) pair, and offers efficient range access within a chain. Two
// backends implement it:
//
//   - store/sqlite: SQLite with WAL mode, the default
//   - store/badger: Badger key-value store
//
// # Guarantees
//
//   - PushBatch is all-or-nothing
//   - Record ids are unique, and so are (host, tag, idx) positions; a second
//     write to either fails with ErrConflict. Chain contiguity is checked by the
//     sync engine before it writes, not by the store.
//   - Next returns a contiguous, idx-ordered page, so transfers can be paged and
//     restarted
//   - ReEncrypt migrates one record per atomic update; a record is always
//     readable under either the old or the new key, never neither
//
// ReEncrypt, Verify and Purge are implemented once in this package over the
// Rewriter interface so every backend behaves the same.
package store
