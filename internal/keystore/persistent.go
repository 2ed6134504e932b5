package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glinharesb/keyless/internal/crypto"
)

var ErrSealKeyRequired = errors.New("store contains sealed keys but no seal key is configured")

// persistedKey is the JSON-serializable form of a KeyEntry. Exactly one
// of PrivateKeyDER and SealedKey is set.
type persistedKey struct {
	ID            string            `json:"id"`
	Algorithm     KeyAlgorithm      `json:"algorithm"`
	Status        KeyStatus         `json:"status"`
	PrivateKeyDER []byte            `json:"private_key_der,omitempty"`
	SealedKey     []byte            `json:"sealed_key,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Labels        map[string]string `json:"labels,omitempty"`
}

// DataFile is the store file name inside a data directory.
const DataFile = "keys.json"

// OpenDir opens the persistent store kept in dir.
func OpenDir(dir string, opts ...Option) (*PersistentStore, error) {
	return NewPersistentStore(filepath.Join(dir, DataFile), opts...)
}

// Option configures a PersistentStore.
type Option func(*PersistentStore)

// WithSealKey seals private keys at rest under a key derived from root.
func WithSealKey(root []byte) Option {
	return func(ps *PersistentStore) {
		ps.sealKey = root
	}
}

// PersistentStore wraps MemoryStore and persists to a JSON file using atomic rename.
type PersistentStore struct {
	*MemoryStore
	path    string
	sealKey []byte

	// saveMu serializes writers of the temp file.
	saveMu sync.Mutex
}

// NewPersistentStore creates a store that persists to the given file path.
// If the file exists, it loads keys from it on startup.
func NewPersistentStore(path string, opts ...Option) (*PersistentStore, error) {
	ps := &PersistentStore{
		MemoryStore: NewMemoryStore(),
		path:        path,
	}
	for _, opt := range opts {
		opt(ps)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := ps.load(); err != nil {
			return nil, fmt.Errorf("load existing data: %w", err)
		}
		slog.Info("persistent store loaded", "keys", len(ps.keys), "sealed", len(ps.sealKey) > 0)
	}

	return ps, nil
}

func (ps *PersistentStore) Put(entry *KeyEntry) error {
	if err := ps.MemoryStore.Put(entry); err != nil {
		return err
	}
	return ps.save()
}

func (ps *PersistentStore) UpdateStatus(id string, status KeyStatus) error {
	if err := ps.MemoryStore.UpdateStatus(id, status); err != nil {
		return err
	}
	return ps.save()
}

func (ps *PersistentStore) Delete(id string) error {
	if err := ps.MemoryStore.Delete(id); err != nil {
		return err
	}
	return ps.save()
}

// save writes all keys to a temp file then atomically renames it.
func (ps *PersistentStore) save() error {
	ps.saveMu.Lock()
	defer ps.saveMu.Unlock()
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	keys := make([]persistedKey, 0, len(ps.keys))
	for _, e := range ps.keys {
		der, err := crypto.MarshalPrivateKey(e.PrivateKey)
		if err != nil {
			return fmt.Errorf("marshal key %s: %w", e.ID, err)
		}
		pk := persistedKey{
			ID:        e.ID,
			Algorithm: e.Algorithm,
			Status:    e.Status,
			CreatedAt: e.CreatedAt,
			Labels:    e.Labels,
		}
		if len(ps.sealKey) > 0 {
			if pk.SealedKey, err = crypto.Seal(ps.sealKey, e.ID, der); err != nil {
				return fmt.Errorf("seal key %s: %w", e.ID, err)
			}
		} else {
			pk.PrivateKeyDER = der
		}
		keys = append(keys, pk)
	}

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	tmpPath := ps.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, ps.path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}

	return nil
}

// load reads keys from the persisted file.
func (ps *PersistentStore) load() error {
	data, err := os.ReadFile(ps.path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var keys []persistedKey
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}

	for _, pk := range keys {
		der := pk.PrivateKeyDER
		if len(pk.SealedKey) > 0 {
			if len(ps.sealKey) == 0 {
				return ErrSealKeyRequired
			}
			if der, err = crypto.Open(ps.sealKey, pk.ID, pk.SealedKey); err != nil {
				return fmt.Errorf("open key %s: %w", pk.ID, err)
			}
		}
		privKey, err := crypto.UnmarshalPrivateKey(der)
		if err != nil {
			return fmt.Errorf("unmarshal key %s: %w", pk.ID, err)
		}
		ps.keys[pk.ID] = &KeyEntry{
			ID:         pk.ID,
			Algorithm:  pk.Algorithm,
			Status:     pk.Status,
			PrivateKey: privKey,
			CreatedAt:  pk.CreatedAt,
			Labels:     pk.Labels,
		}
	}

	return nil
}
