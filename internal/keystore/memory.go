package keystore

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryStore is a thread-safe in-memory key store backed by sync.RWMutex.
// Get and List return copies; status changes go through UpdateStatus.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*KeyEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]*KeyEntry),
	}
}

func (m *MemoryStore) Put(entry *KeyEntry) error {
	if entry == nil || entry.ID == "" || entry.PrivateKey == nil {
		return fmt.Errorf("%w: entry needs an id and a private key", ErrUnsupportedKey)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.keys[entry.ID]; exists {
		return fmt.Errorf("%w: %s", ErrKeyExists, entry.ID)
	}
	stored := *entry
	stored.Labels = maps.Clone(entry.Labels)
	m.keys[entry.ID] = &stored
	return nil
}

func (m *MemoryStore) Get(id string) (*KeyEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.keys[id]
	if !ok {
		return nil, ErrKeyNotFound
	}
	c := *entry
	return &c, nil
}

// List returns entries with the given status, or all entries when filter
// is zero, ordered by id.
func (m *MemoryStore) List(filter KeyStatus) ([]*KeyEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*KeyEntry
	for _, entry := range m.keys {
		if filter == 0 || entry.Status == filter {
			c := *entry
			result = append(result, &c)
		}
	}
	slices.SortFunc(result, func(a, b *KeyEntry) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (m *MemoryStore) UpdateStatus(id string, status KeyStatus) error {
	if status != StatusActive && status != StatusDeactivated {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.keys[id]
	if !ok {
		return ErrKeyNotFound
	}
	entry.Status = status
	return nil
}

func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[id]; !ok {
		return ErrKeyNotFound
	}
	delete(m.keys, id)
	return nil
}
