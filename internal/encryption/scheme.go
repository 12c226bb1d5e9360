package encryption

import (
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/chainsync/internal/record"
)

// Scheme is one encryption variant. Name is both the scheme identifier and the
// prefix of every label the scheme produces.
type Scheme interface {
	Name() string
	Encrypt(pt record.DecryptedData, ad record.AdditionalData, key Key) (record.EncryptedData, error)
	Decrypt(ct record.EncryptedData, ad record.AdditionalData, key Key) (record.DecryptedData, error)
	ReEncrypt(ct record.EncryptedData, ad record.AdditionalData, oldKey, newKey Key) (record.EncryptedData, error)
}

// Registry dispatches to schemes by name when encrypting and by label prefix
// when decrypting. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	schemes []Scheme
}

// NewRegistry returns a registry holding schemes.
func NewRegistry(schemes ...Scheme) *Registry {
	r := &Registry{}
	for _, s := range schemes {
		r.Register(s)
	}
	return r
}

// Default returns a registry with the none and v1 schemes.
func Default() *Registry {
	return NewRegistry(None{}, V1{})
}

// Register adds s, replacing any scheme with the same name.
func (r *Registry) Register(s Scheme) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.schemes {
		if existing.Name() == s.Name() {
			r.schemes[i] = s
			return
		}
	}
	r.schemes = append(r.schemes, s)
}

// Scheme returns the scheme registered under name.
func (r *Registry) Scheme(name string) (Scheme, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.schemes {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
}

// Lookup returns the scheme that produced label.
func (r *Registry) Lookup(label string) (Scheme, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.schemes {
		if matchesLabel(s.Name(), label) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no scheme for label %q", ErrUnknownScheme, labelPrefix(label))
}

// Encrypt seals pt with the named scheme.
func (r *Registry) Encrypt(name string, pt record.DecryptedData, ad record.AdditionalData, key Key) (record.EncryptedData, error) {
	s, err := r.Scheme(name)
	if err != nil {
		return record.EncryptedData{}, err
	}
	return s.Encrypt(pt, ad, key)
}

// Decrypt opens ct with the scheme named by its label.
func (r *Registry) Decrypt(ct record.EncryptedData, ad record.AdditionalData, key Key) (record.DecryptedData, error) {
	s, err := r.Lookup(ct.ContentEncryptionKey)
	if err != nil {
		return nil, decryptionError("", "unrecognized label", err)
	}
	return s.Decrypt(ct, ad, key)
}

// ReEncrypt moves ct from oldKey to newKey with the scheme named by its label.
func (r *Registry) ReEncrypt(ct record.EncryptedData, ad record.AdditionalData, oldKey, newKey Key) (record.EncryptedData, error) {
	s, err := r.Lookup(ct.ContentEncryptionKey)
	if err != nil {
		return record.EncryptedData{}, decryptionError("", "unrecognized label", err)
	}
	return s.ReEncrypt(ct, ad, oldKey, newKey)
}

// EncryptRecord seals a whole record, binding its AdditionalData.
func (r *Registry) EncryptRecord(name string, rec record.Record[record.DecryptedData], key Key) (record.Record[record.EncryptedData], error) {
	ct, err := r.Encrypt(name, rec.Data, rec.AdditionalData(), key)
	if err != nil {
		return record.Record[record.EncryptedData]{}, fmt.Errorf("encrypt %s: %w", rec, err)
	}
	return record.WithData(rec, ct), nil
}

// DecryptRecord opens a whole record.
func (r *Registry) DecryptRecord(rec record.Record[record.EncryptedData], key Key) (record.Record[record.DecryptedData], error) {
	pt, err := r.Decrypt(rec.Data, rec.AdditionalData(), key)
	if err != nil {
		return record.Record[record.DecryptedData]{}, fmt.Errorf("decrypt %s: %w", rec, err)
	}
	return record.WithData(rec, pt), nil
}

// ReEncryptRecord returns rec with its payload moved to newKey.
func (r *Registry) ReEncryptRecord(rec record.Record[record.EncryptedData], oldKey, newKey Key) (record.Record[record.EncryptedData], error) {
	ct, err := r.ReEncrypt(rec.Data, rec.AdditionalData(), oldKey, newKey)
	if err != nil {
		return record.Record[record.EncryptedData]{}, fmt.Errorf("re-encrypt %s: %w", rec, err)
	}
	return record.WithData(rec, ct), nil
}

func matchesLabel(name, label string) bool {
	return label == name || strings.HasPrefix(label, name+".")
}

// labelPrefix trims a label to its scheme part so error messages never echo
// wrapped key material.
func labelPrefix(label string) string {
	if i := strings.IndexByte(label, '.'); i >= 0 {
		return label[:i]
	}
	return label
}
