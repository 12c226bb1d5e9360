// Package keys manages the symmetric key of a host and coordinates key
// rotation across hosts.
//
// The key lives in a local file and never leaves the host. What hosts share is
// a registration: a small record under the "key" tag, sealed with the none
// scheme, naming the id of the key most recently put into service. Every host
// syncs these records like any other chain, so a host about to encrypt can
// tell whether another host has rotated away from its key.
//
// Guard refuses to encrypt under a key that is not the current registration.
// Rotate registers a new key and re-encrypts the local store under it.
package keys
