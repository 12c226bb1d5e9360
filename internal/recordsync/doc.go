// Package recordsync reconciles a local Store with a remote in three stages.
//
// Diff compares the local and remote status vectors chain by chain. Since a
// chain has a single writer, one side always holds a prefix of the other's
// copy, so every difference is a plain range: the remote is missing
// (remote, local] or the local store is missing (local, remote].
//
// Operations turns each diff entry into one Noop, Upload or Download.
// Front-ends filter that list (push keeps this host's uploads, pull keeps
// downloads) and hand it to SyncRemote, which moves records page by page.
//
// Each page is written atomically. A run that fails or is canceled keeps the
// pages it already committed; running the pipeline again computes the smaller
// remaining diff.
package recordsync
