package storage

import "testing"

func TestMemoryDB_BatchCommitIsAtomic(t *testing.T) {
	db := NewMemory()
	db.Put([]byte("keep"), []byte("1"))

	b := db.NewBatch()
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))
	b.Delete([]byte("keep"))

	if ok, _ := db.Has([]byte("a")); ok {
		t.Error("uncommitted batch write should not be visible")
	}

	if err := b.Commit(); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}

	for _, k := range [][]byte{[]byte("a"), []byte("b")} {
		if ok, _ := db.Has(k); !ok {
			t.Errorf("key %q missing after commit", k)
		}
	}
	if ok, _ := db.Has([]byte("keep")); ok {
		t.Error("deleted key should be gone after commit")
	}
}

func TestMemoryDB_BatchPutThenDeleteSameKey(t *testing.T) {
	db := NewMemory()
	b := db.NewBatch()
	b.Put([]byte("x"), []byte("1"))
	b.Delete([]byte("x"))
	b.Commit()

	if ok, _ := db.Has([]byte("x")); ok {
		t.Error("key put then deleted in the same batch should not exist")
	}
}

func TestMemoryDB_SnapshotIsolation(t *testing.T) {
	db := NewMemory()
	db.Put([]byte("a"), []byte("1"))

	snap, err := db.NewSnapshot()
	if err != nil {
		t.Fatalf("NewSnapshot() error: %v", err)
	}
	defer snap.Close()

	db.Put([]byte("b"), []byte("2"))
	db.Delete([]byte("a"))

	if ok, _ := snap.Has([]byte("a")); !ok {
		t.Error("snapshot should still see key deleted after it was taken")
	}
	if ok, _ := snap.Has([]byte("b")); ok {
		t.Error("snapshot should not see key written after it was taken")
	}
}

func TestPrefixDB_BatchNamespacesKeys(t *testing.T) {
	inner := NewMemory()
	a := NewPrefixDB(inner, []byte("a/"))
	b := NewPrefixDB(inner, []byte("b/"))

	batch := a.NewBatch()
	batch.Put([]byte("k"), []byte("1"))
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}

	if ok, _ := a.Has([]byte("k")); !ok {
		t.Error("key should be visible through the owning PrefixDB")
	}
	if ok, _ := b.Has([]byte("k")); ok {
		t.Error("key should not leak across PrefixDB namespaces")
	}
}

func TestPrefixDB_SnapshotScopedToNamespace(t *testing.T) {
	inner := NewMemory()
	a := NewPrefixDB(inner, []byte("a/"))
	b := NewPrefixDB(inner, []byte("b/"))

	a.Put([]byte("k"), []byte("1"))
	b.Put([]byte("k"), []byte("2"))

	snap, err := a.NewSnapshot()
	if err != nil {
		t.Fatalf("NewSnapshot() error: %v", err)
	}
	defer snap.Close()

	v, err := snap.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(v) != "1" {
		t.Errorf("Get() = %q, want %q", v, "1")
	}
}
