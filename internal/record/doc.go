// Package record provides the data model shared by every other chainsync package.
//
// This package contains type definitions and small pure helpers only. It imports
// nothing internal, so store, encryption and sync code can all depend on it
// without cycles.
//
// Key design constraints:
//   - A chain is the ordered sequence of records for one (host, tag) pair
//   - Only the owning host appends to its chain; Idx grows by exactly one per record
//   - Parent is the id of the record at Idx-1, and nil iff Idx == 0
//   - Records are immutable once appended; re-encryption replaces only Data
//   - Ordering uses Idx, never Timestamp
package record
