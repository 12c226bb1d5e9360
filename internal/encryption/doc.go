// Package encryption seals record payloads under a 256-bit key.
//
// Schemes are pluggable variants selected by the prefix of the
// content-encryption-key label stored next to each ciphertext:
//
//   - "none": reversible encoding only. Used for records that are known to be
//     non-sensitive (key registrations). Never a default.
//   - "v1": envelope encryption. Each record gets a random content key that
//     seals the payload with XChaCha20-Poly1305; the content key is itself
//     sealed under a key derived from the master key and stored in the label.
//
// Every scheme binds the record's AdditionalData into the ciphertext, so a
// payload moved to another id, host, tag or position no longer decrypts.
// Decryption fails closed: any mismatch returns an error wrapping
// ErrDecryption, never plaintext.
//
// New schemes are added by implementing Scheme and registering the variant
// with a Registry.
package encryption
