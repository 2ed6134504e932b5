package keystore

import (
	"crypto/elliptic"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/glinharesb/keyless/internal/crypto"
)

func makeEntry(t *testing.T, id string) *KeyEntry {
	t.Helper()
	key, err := crypto.GenerateECDSAKey(elliptic.P256())
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	entry, err := NewEntry(id, key, map[string]string{"env": "test"})
	if err != nil {
		t.Fatalf("new entry: %v", err)
	}
	return entry
}

func TestPutAndGet(t *testing.T) {
	store := NewMemoryStore()
	entry := makeEntry(t, "key-1")

	if err := store.Put(entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get("key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "key-1" || got.Algorithm != AlgorithmECDSAP256 || got.Status != StatusActive {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestPutCopiesEntry(t *testing.T) {
	store := NewMemoryStore()
	entry := makeEntry(t, "key-1")
	store.Put(entry)

	entry.Status = StatusDeactivated
	entry.Labels["env"] = "changed"

	got, _ := store.Get("key-1")
	if got.Status != StatusActive || got.Labels["env"] != "test" {
		t.Fatalf("stored entry changed through caller pointer: %+v", got)
	}
}

func TestPutInvalid(t *testing.T) {
	store := NewMemoryStore()
	for name, e := range map[string]*KeyEntry{
		"nil":    nil,
		"no id":  {PrivateKey: makeEntry(t, "x").PrivateKey},
		"no key": {ID: "key-1"},
	} {
		if err := store.Put(e); !errors.Is(err, ErrUnsupportedKey) {
			t.Fatalf("%s: got %v, want ErrUnsupportedKey", name, err)
		}
	}
}

func TestPutDuplicate(t *testing.T) {
	store := NewMemoryStore()
	store.Put(makeEntry(t, "key-1"))

	err := store.Put(makeEntry(t, "key-1"))
	if !errors.Is(err, ErrKeyExists) {
		t.Fatalf("duplicate put: got %v, want ErrKeyExists", err)
	}
}

func TestGetNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get("nonexistent")
	if err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestListSortedByID(t *testing.T) {
	store := NewMemoryStore()
	for _, id := range []string{"c", "a", "e", "b", "d"} {
		store.Put(makeEntry(t, id))
	}

	keys, err := store.List(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 5 {
		t.Fatalf("expected 5 keys, got %d", len(keys))
	}
	for i, want := range []string{"a", "b", "c", "d", "e"} {
		if keys[i].ID != want {
			t.Fatalf("keys[%d] = %s, want %s", i, keys[i].ID, want)
		}
	}
}

func TestListFiltered(t *testing.T) {
	store := NewMemoryStore()
	for i := range 5 {
		e := makeEntry(t, fmt.Sprintf("key-%d", i))
		if i%2 == 0 {
			e.Status = StatusDeactivated
		}
		store.Put(e)
	}

	active, _ := store.List(StatusActive)
	if len(active) != 2 {
		t.Fatalf("expected 2 active, got %d", len(active))
	}

	deactivated, _ := store.List(StatusDeactivated)
	if len(deactivated) != 3 {
		t.Fatalf("expected 3 deactivated, got %d", len(deactivated))
	}
}

func TestUpdateStatus(t *testing.T) {
	store := NewMemoryStore()
	store.Put(makeEntry(t, "key-1"))

	if err := store.UpdateStatus("key-1", StatusDeactivated); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, _ := store.Get("key-1")
	if got.Status != StatusDeactivated {
		t.Fatalf("expected StatusDeactivated, got %v", got.Status)
	}
}

func TestUpdateStatusInvalid(t *testing.T) {
	store := NewMemoryStore()
	store.Put(makeEntry(t, "key-1"))
	if err := store.UpdateStatus("key-1", 0); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("got %v, want ErrInvalidStatus", err)
	}
}

func TestUpdateStatusNotFound(t *testing.T) {
	store := NewMemoryStore()
	if err := store.UpdateStatus("nonexistent", StatusDeactivated); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	store := NewMemoryStore()
	store.Put(makeEntry(t, "key-1"))

	if err := store.Delete("key-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err := store.Get("key-1")
	if err != ErrKeyNotFound {
		t.Fatal("deleted key should not be found")
	}
}

func TestDeleteNotFound(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Delete("nonexistent"); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestAlgorithmOf(t *testing.T) {
	for _, curve := range []struct {
		c    elliptic.Curve
		want KeyAlgorithm
	}{
		{elliptic.P256(), AlgorithmECDSAP256},
		{elliptic.P384(), AlgorithmECDSAP384},
		{elliptic.P521(), AlgorithmECDSAP521},
	} {
		key, _ := crypto.GenerateECDSAKey(curve.c)
		got, err := AlgorithmOf(key)
		if err != nil || got != curve.want {
			t.Fatalf("%s: got %v, %v", curve.c.Params().Name, got, err)
		}
		if got.IsRSA() || got.Curve() != curve.c {
			t.Fatalf("%v: wrong classification helpers", got)
		}
	}

	rsaKey, _ := crypto.GenerateRSAKey(2048)
	got, err := AlgorithmOf(rsaKey)
	if err != nil || got != AlgorithmRSA2048 || !got.IsRSA() || got.RSABits() != 2048 {
		t.Fatalf("rsa: got %v, %v", got, err)
	}
}

func TestAlgorithmOfUnsupported(t *testing.T) {
	small, _ := crypto.GenerateRSAKey(1024)
	if _, err := AlgorithmOf(small); !errors.Is(err, ErrUnsupportedKey) {
		t.Fatalf("rsa-1024: got %v", err)
	}
	if _, err := AlgorithmOf(nil); !errors.Is(err, ErrUnsupportedKey) {
		t.Fatalf("nil key: got %v", err)
	}
}

func TestParseAlgorithm(t *testing.T) {
	for alg := AlgorithmRSA2048; alg <= AlgorithmECDSAP521; alg++ {
		got, err := ParseAlgorithm(alg.String())
		if err != nil || got != alg {
			t.Fatalf("%v: got %v, %v", alg, got, err)
		}
	}
	if got, _ := ParseAlgorithm("ecdsa_p384"); got != AlgorithmECDSAP384 {
		t.Fatalf("case-insensitive parse: got %v", got)
	}
	if _, err := ParseAlgorithm("DSA_1024"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Fatalf("got %v, want ErrUnknownAlgorithm", err)
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	store := NewMemoryStore()
	const numKeys = 50
	const numReaders = 100

	// Pre-populate half the keys
	for i := range numKeys / 2 {
		store.Put(makeEntry(t, fmt.Sprintf("pre-%d", i)))
	}
	writes := make([]*KeyEntry, numKeys)
	for i := range writes {
		writes[i] = makeEntry(t, fmt.Sprintf("w-%d", i))
	}

	var wg sync.WaitGroup

	for i := range numKeys {
		wg.Go(func() {
			store.Put(writes[i])
		})
	}

	for range numReaders {
		wg.Go(func() {
			for _, e := range mustList(store) {
				_ = e.Status
			}
		})
	}

	for i := range numKeys / 2 {
		wg.Go(func() {
			if e, err := store.Get(fmt.Sprintf("pre-%d", i)); err == nil {
				_ = e.Status
			}
		})
	}

	for i := range numKeys / 2 {
		wg.Go(func() {
			store.UpdateStatus(fmt.Sprintf("pre-%d", i), StatusDeactivated)
		})
	}

	wg.Wait()

	for i := range numKeys / 2 {
		got, err := store.Get(fmt.Sprintf("pre-%d", i))
		if err != nil {
			t.Fatalf("pre-%d not found: %v", i, err)
		}
		if got.Status != StatusDeactivated {
			t.Fatalf("pre-%d: expected deactivated, got %v", i, got.Status)
		}
	}
}

func mustList(s Store) []*KeyEntry {
	keys, _ := s.List(0)
	return keys
}
