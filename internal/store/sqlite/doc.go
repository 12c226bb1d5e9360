// Package sqlite provides the SQLite-backed record store.
//
// # Layout
//
// One table, records, keyed by record id with a UNIQUE(host, tag, idx)
// constraint. The constraint is what rejects a second writer racing on the same
// chain position; the caller recomputes its diff and retries.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// All chain reads order by idx ASC so pages are deterministic.
package sqlite
