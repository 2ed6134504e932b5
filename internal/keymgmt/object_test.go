package keymgmt

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glinharesb/keyless/internal/diag"
)

func TestNewObjectStartsWithOneRef(t *testing.T) {
	m := testManager()
	obj := m.New()
	if obj.Refs() != 1 {
		t.Fatalf("expected refcount 1, got %d", obj.Refs())
	}
	if obj.Type() != TypeNone {
		t.Fatalf("new object should be untyped, got %v", obj.Type())
	}
}

func TestObjectSnapshotsDiag(t *testing.T) {
	m := NewManager(nil, nil, diag.Missing("rand.Read"))
	obj := m.New()
	if rec := obj.Diag(); rec.Resolved || rec.Missing != "rand.Read" {
		t.Fatalf("unexpected snapshot %+v", rec)
	}
}

func TestDupAndFree(t *testing.T) {
	var released atomic.Int32
	releaseHook = func(*Object) { released.Add(1) }
	t.Cleanup(func() { releaseHook = nil })

	obj := importRSA(t, testManager(), []byte{0xc5, 0x01}, []byte{0x01, 0x00, 0x01}, "k1")
	if Dup(obj) != obj {
		t.Fatal("dup must return the same object")
	}
	if obj.Refs() != 2 {
		t.Fatalf("expected 2 refs, got %d", obj.Refs())
	}

	Free(obj)
	if released.Load() != 0 {
		t.Fatal("released while a reference remains")
	}
	if obj.KeyID() != "k1" {
		t.Fatal("object should still be usable")
	}

	Free(obj)
	if released.Load() != 1 {
		t.Fatalf("expected one release, got %d", released.Load())
	}
	if obj.Refs() != 0 {
		t.Fatalf("expected 0 refs, got %d", obj.Refs())
	}

	// Extra frees never drive the count negative or release twice.
	Free(obj)
	if obj.Refs() != 0 || released.Load() != 1 {
		t.Fatalf("double free changed state: refs=%d released=%d", obj.Refs(), released.Load())
	}
	if Dup(obj) != nil {
		t.Fatal("dup of a released object must fail")
	}
}

func TestConcurrentDupFreeReleasesOnce(t *testing.T) {
	var released atomic.Int32
	releaseHook = func(*Object) { released.Add(1) }
	t.Cleanup(func() { releaseHook = nil })

	for round := range 20 {
		obj := testManager().New()

		const workers = 32
		var wg sync.WaitGroup
		for range workers {
			if !obj.UpRef() {
				t.Fatal("up-ref failed on a live object")
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 100 {
					if Dup(obj) == nil {
						t.Error("dup failed while references are held")
						return
					}
					Free(obj)
				}
				Free(obj)
			}()
		}
		wg.Wait()

		if obj.Refs() != 1 {
			t.Fatalf("round %d: expected the creator's reference, got %d", round, obj.Refs())
		}
		Free(obj)
		if got := released.Load(); got != int32(round+1) {
			t.Fatalf("round %d: released %d times", round, got)
		}
	}
}

func TestLoadByReference(t *testing.T) {
	obj := testManager().New()

	got, err := Load(obj)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != obj || obj.Refs() != 2 {
		t.Fatalf("load should share the object, refs=%d", obj.Refs())
	}

	if _, err := Load("not-a-key"); err != ErrBadReference {
		t.Fatalf("expected ErrBadReference, got %v", err)
	}
	if _, err := Load((*Object)(nil)); err != ErrBadReference {
		t.Fatalf("expected ErrBadReference for nil, got %v", err)
	}
}

func TestSize(t *testing.T) {
	m := testManager()
	rsaKey := importRSA(t, m, make256(), []byte{3}, "")
	if rsaKey.Size() != 256 {
		t.Fatalf("rsa size = %d", rsaKey.Size())
	}
	ecKey := importEC(t, m, []byte{4, 1, 2}, "P-256", "")
	if ecKey.Size() != 80 {
		t.Fatalf("ec size = %d", ecKey.Size())
	}
	if m.New().Size() != 0 {
		t.Fatal("untyped size should be 0")
	}
}

func make256() []byte {
	n := make([]byte, 256)
	for i := range n {
		n[i] = 0xff
	}
	return n
}
