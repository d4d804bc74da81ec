package rollback

import (
	"testing"

	"github.com/coinshift-network/coinshift-core/internal/storage"
)

func testLog(t *testing.T) (*Log, storage.DB) {
	t.Helper()
	db := storage.NewMemory()
	return NewLog(db), db
}

func commit(t *testing.T, db storage.DB, fn func(storage.Batch) error) {
	t.Helper()
	b := db.(storage.Batcher).NewBatch()
	if err := fn(b); err != nil {
		t.Fatalf("batch op: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestLog_PushThenPopAtRestoresPriorValue(t *testing.T) {
	log, db := testLog(t)
	key := []byte("utxo/1")

	commit(t, db, func(b storage.Batch) error {
		return log.Push(b, key, 10, nil) // entity created at height 10
	})
	commit(t, db, func(b storage.Batch) error {
		return log.Push(b, key, 20, []byte("value-at-10"))
	})

	var prev []byte
	var ok bool
	var err error
	commit(t, db, func(b storage.Batch) error {
		prev, ok, err = log.PopAt(b, key, 20)
		return err
	})
	if err != nil {
		t.Fatalf("PopAt() error: %v", err)
	}
	if !ok {
		t.Fatal("PopAt() should find the entry recorded at height 20")
	}
	if string(prev) != "value-at-10" {
		t.Errorf("PopAt() = %q, want %q", prev, "value-at-10")
	}
}

func TestLog_LatestAfterMultiplePushes(t *testing.T) {
	log, db := testLog(t)
	key := []byte("bitasset/foo")

	commit(t, db, func(b storage.Batch) error {
		return log.Push(b, key, 5, nil)
	})
	commit(t, db, func(b storage.Batch) error {
		return log.Push(b, key, 6, []byte("v5"))
	})
	commit(t, db, func(b storage.Batch) error {
		return log.Push(b, key, 7, []byte("v6"))
	})

	prev, ok, err := log.Latest(key)
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if !ok {
		t.Fatal("Latest() should find a recorded entry")
	}
	if string(prev) != "v6" {
		t.Errorf("Latest() = %q, want %q", prev, "v6")
	}
}

func TestLog_PopAtUndoesInReverseOrder(t *testing.T) {
	log, db := testLog(t)
	key := []byte("utxo/2")

	commit(t, db, func(b storage.Batch) error {
		return log.Push(b, key, 1, nil)
	})
	commit(t, db, func(b storage.Batch) error {
		return log.Push(b, key, 2, []byte("v1"))
	})
	commit(t, db, func(b storage.Batch) error {
		return log.Push(b, key, 3, []byte("v2"))
	})

	var prev []byte
	var ok bool
	var err error
	commit(t, db, func(b storage.Batch) error {
		prev, ok, err = log.PopAt(b, key, 3)
		return err
	})
	if err != nil {
		t.Fatalf("PopAt(3) error: %v", err)
	}
	if !ok || string(prev) != "v2" {
		t.Fatalf("PopAt(3) = %q, %v, want %q, true", prev, ok, "v2")
	}

	commit(t, db, func(b storage.Batch) error {
		prev, ok, err = log.PopAt(b, key, 2)
		return err
	})
	if err != nil {
		t.Fatalf("PopAt(2) error: %v", err)
	}
	if !ok || string(prev) != "v1" {
		t.Fatalf("PopAt(2) = %q, %v, want %q, true", prev, ok, "v1")
	}

	commit(t, db, func(b storage.Batch) error {
		prev, ok, err = log.PopAt(b, key, 1)
		return err
	})
	if err != nil {
		t.Fatalf("PopAt(1) error: %v", err)
	}
	if !ok || prev != nil {
		t.Fatalf("PopAt(1) = %q, %v, want nil, true (entity did not exist before height 1)", prev, ok)
	}

	// History fully consumed: entity key itself must be gone.
	if ok, _ := db.Has(key); ok {
		t.Error("rollback entry should be deleted once fully unwound")
	}
}

func TestLog_PopAtMissingHeight(t *testing.T) {
	log, db := testLog(t)
	key := []byte("utxo/3")

	commit(t, db, func(b storage.Batch) error {
		return log.Push(b, key, 1, nil)
	})

	var ok bool
	var err error
	commit(t, db, func(b storage.Batch) error {
		_, ok, err = log.PopAt(b, key, 999)
		return err
	})
	if err != nil {
		t.Fatalf("PopAt() error: %v", err)
	}
	if ok {
		t.Error("PopAt() for an unrecorded height should return ok=false")
	}
}

func TestLog_LatestOnUnknownKey(t *testing.T) {
	log, _ := testLog(t)
	_, ok, err := log.Latest([]byte("nothing"))
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if ok {
		t.Error("Latest() on unknown key should return ok=false")
	}
}
