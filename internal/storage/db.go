// Package storage provides database abstractions: a typed key-value
// interface, atomic multi-key write batches, and consistent read snapshots.
package storage

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key; the value is passed
	// without copying.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batcher is implemented by a DB that can produce an atomic write batch.
// The block engine opens one Batch per connect/disconnect so writes across
// every table — UTXO/STXO set, rollback log, swap indices, bitasset and AMM
// records — commit together or not at all.
type Batcher interface {
	NewBatch() Batch
}

// Batch stages Put/Delete operations for a single atomic Commit. A Batch
// must not be reused after Commit is called, and is not safe for
// concurrent use.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Snapshotter is implemented by a DB that can open a consistent
// point-in-time read view isolated from concurrent writers.
type Snapshotter interface {
	NewSnapshot() (Snapshot, error)
}

// Snapshot is a read-only view of the database fixed at the moment it was
// created. Writes committed after the snapshot is opened are not visible
// through it.
type Snapshot interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}
