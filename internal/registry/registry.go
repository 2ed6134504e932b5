// Package registry binds key identifiers to remote sign and decrypt
// callbacks.
package registry

import (
	"errors"
	"sync"
)

var ErrInvalidParameters = errors.New("invalid parameters for callback registration")

// SignFunc produces a signature over digest with the remote key keyID.
// The returned buffer belongs to the caller.
type SignFunc func(keyID, algorithm string, digest []byte) ([]byte, error)

// DecryptFunc performs the raw private-key operation on ciphertext with
// the remote key keyID. The returned buffer belongs to the caller.
type DecryptFunc func(keyID string, ciphertext []byte) ([]byte, error)

type entry struct {
	keyID   string
	sign    SignFunc
	decrypt DecryptFunc
}

// Registry is safe for concurrent use. Lookups share a read lock;
// registrations and Clear take the write lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// ensureLocked returns the entry for keyID, creating it if needed.
// Callers must hold the write lock.
func (r *Registry) ensureLocked(keyID string) *entry {
	e, ok := r.entries[keyID]
	if !ok {
		e = &entry{keyID: keyID}
		r.entries[keyID] = e
	}
	return e
}

// RegisterSign binds cb as the sign callback for keyID, replacing any
// previous one.
func (r *Registry) RegisterSign(keyID string, cb SignFunc) error {
	if keyID == "" || cb == nil {
		return ErrInvalidParameters
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureLocked(keyID).sign = cb
	return nil
}

// RegisterDecrypt binds cb as the decrypt callback for keyID, replacing
// any previous one.
func (r *Registry) RegisterDecrypt(keyID string, cb DecryptFunc) error {
	if keyID == "" || cb == nil {
		return ErrInvalidParameters
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureLocked(keyID).decrypt = cb
	return nil
}

func (r *Registry) LookupSign(keyID string) SignFunc {
	if keyID == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[keyID]; ok {
		return e.sign
	}
	return nil
}

func (r *Registry) LookupDecrypt(keyID string) DecryptFunc {
	if keyID == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[keyID]; ok {
		return e.decrypt
	}
	return nil
}

// Len returns the number of registered key identifiers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// Clear removes every entry. The map is detached under the write lock and
// the entries are released after it is dropped.
func (r *Registry) Clear() {
	r.mu.Lock()
	detached := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for id, e := range detached {
		e.sign = nil
		e.decrypt = nil
		delete(detached, id)
	}
}
