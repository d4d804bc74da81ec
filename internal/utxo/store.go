package utxo

import (
	"encoding/json"
	"fmt"

	"github.com/coinshift-network/coinshift-core/internal/rollback"
	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

// Key prefixes for the UTXO/STXO store.
var (
	prefixUTXO = []byte("u/") // u/<outpoint bytes> -> utxoRecord JSON
	prefixSTXO = []byte("s/") // s/<outpoint bytes> -> SpentOutput JSON
	prefixAddr = []byte("a/") // a/<address 32><outpoint bytes> -> OutPoint JSON (index)
)

// utxoRecord is the UTXO table's stored value: the OutPoint is carried
// alongside the output so ForEach can recover it without having to
// reverse Bytes(), whose encoding is lossy for kinds like Deposit that
// carry a sequence number instead of a txid/vout pair.
type utxoRecord struct {
	OutPoint types.OutPoint     `json:"outpoint"`
	Output   types.FilledOutput `json:"output"`
}

// entity key namespaces within the rollback log, distinguishing undo
// history for the UTXO table from the STXO table (and from every other
// subsystem's rollback entries sharing the same underlying db) so records
// never collide.
var (
	rollbackUTXO = []byte("ru/")
	rollbackSTXO = []byte("rs/")
)

func utxoKey(op types.OutPoint) []byte {
	return append(append([]byte(nil), prefixUTXO...), op.Bytes()...)
}

func stxoKey(op types.OutPoint) []byte {
	return append(append([]byte(nil), prefixSTXO...), op.Bytes()...)
}

func addrKey(addr types.Address, op types.OutPoint) []byte {
	key := append(append([]byte(nil), prefixAddr...), addr[:]...)
	return append(key, op.Bytes()...)
}

func rollbackUTXOKey(op types.OutPoint) []byte {
	return append(append([]byte(nil), rollbackUTXO...), op.Bytes()...)
}

func rollbackSTXOKey(op types.OutPoint) []byte {
	return append(append([]byte(nil), rollbackSTXO...), op.Bytes()...)
}

// Store implements Set backed by a single storage.DB shared with every
// other table the caller writes to in the same batch (UTXO/STXO/address
// index and rollback history all key into one flat keyspace, distinguished
// by prefix, so a single storage.Batch can commit all of them atomically).
type Store struct {
	db  storage.DB
	log *rollback.Log
}

// NewStore creates a new UTXO/STXO store over db. Callers that also write
// other tables (bitasset, swap, ...) in the same block-connect batch should
// pass the same db to each store's constructor.
func NewStore(db storage.DB) *Store {
	return &Store{db: db, log: rollback.NewLog(db)}
}

// Get retrieves an unspent output by its OutPoint.
func (s *Store) Get(outpoint types.OutPoint) (*types.FilledOutput, error) {
	data, err := s.db.Get(utxoKey(outpoint))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoUtxo, err)
	}
	var rec utxoRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("utxo: unmarshal %s: %w", outpoint, err)
	}
	return &rec.Output, nil
}

// Has reports whether outpoint is currently unspent.
func (s *Store) Has(outpoint types.OutPoint) (bool, error) {
	return s.db.Has(utxoKey(outpoint))
}

// GetSpent retrieves a spent output record by its original OutPoint.
func (s *Store) GetSpent(outpoint types.OutPoint) (*types.SpentOutput, error) {
	data, err := s.db.Get(stxoKey(outpoint))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStxo, err)
	}
	var spent types.SpentOutput
	if err := json.Unmarshal(data, &spent); err != nil {
		return nil, fmt.Errorf("utxo: unmarshal spent %s: %w", outpoint, err)
	}
	return &spent, nil
}

// Produce inserts a new unspent output. It fails with ErrAlreadyProduced
// if the outpoint already has an entry in either table.
func (s *Store) Produce(batch storage.Batch, height uint64, outpoint types.OutPoint, output types.FilledOutput) error {
	if has, err := s.db.Has(utxoKey(outpoint)); err != nil {
		return fmt.Errorf("utxo: produce: %w", err)
	} else if has {
		return ErrAlreadyProduced
	}
	if has, err := s.db.Has(stxoKey(outpoint)); err != nil {
		return fmt.Errorf("utxo: produce: %w", err)
	} else if has {
		return ErrAlreadyProduced
	}

	data, err := json.Marshal(utxoRecord{OutPoint: outpoint, Output: output})
	if err != nil {
		return fmt.Errorf("utxo: marshal %s: %w", outpoint, err)
	}
	if err := s.log.Push(batch, rollbackUTXOKey(outpoint), height, nil); err != nil {
		return fmt.Errorf("utxo: push rollback: %w", err)
	}
	if err := batch.Put(utxoKey(outpoint), data); err != nil {
		return err
	}
	indexData, err := json.Marshal(outpoint)
	if err != nil {
		return fmt.Errorf("utxo: marshal index %s: %w", outpoint, err)
	}
	return batch.Put(addrKey(output.Address, outpoint), indexData)
}

// Consume requires outpoint to be present in UTXO, moves it to STXO
// annotated with the consuming InPoint, and fails with ErrNoUtxo
// otherwise.
func (s *Store) Consume(batch storage.Batch, height uint64, outpoint types.OutPoint, spentBy types.InPoint) (*types.FilledOutput, error) {
	output, err := s.Get(outpoint)
	if err != nil {
		return nil, err
	}
	prevData, err := json.Marshal(utxoRecord{OutPoint: outpoint, Output: *output})
	if err != nil {
		return nil, fmt.Errorf("utxo: marshal %s: %w", outpoint, err)
	}

	if err := s.log.Push(batch, rollbackUTXOKey(outpoint), height, prevData); err != nil {
		return nil, fmt.Errorf("utxo: push rollback: %w", err)
	}
	if err := s.log.Push(batch, rollbackSTXOKey(outpoint), height, nil); err != nil {
		return nil, fmt.Errorf("utxo: push rollback: %w", err)
	}

	if err := batch.Delete(utxoKey(outpoint)); err != nil {
		return nil, err
	}
	if err := batch.Delete(addrKey(output.Address, outpoint)); err != nil {
		return nil, err
	}

	spent := types.SpentOutput{Output: *output, InPoint: spentBy}
	spentData, err := json.Marshal(spent)
	if err != nil {
		return nil, fmt.Errorf("utxo: marshal spent %s: %w", outpoint, err)
	}
	if err := batch.Put(stxoKey(outpoint), spentData); err != nil {
		return nil, err
	}
	return output, nil
}

// Unproduce reverses a Produce staged at height: the outpoint must have
// been produced (not yet consumed) at that height.
func (s *Store) Unproduce(batch storage.Batch, height uint64, outpoint types.OutPoint) error {
	output, err := s.Get(outpoint)
	if err != nil {
		return err
	}
	if _, ok, err := s.log.PopAt(batch, rollbackUTXOKey(outpoint), height); err != nil {
		return fmt.Errorf("utxo: pop rollback: %w", err)
	} else if !ok {
		return fmt.Errorf("utxo: no produce recorded for %s at height %d", outpoint, height)
	}
	if err := batch.Delete(utxoKey(outpoint)); err != nil {
		return err
	}
	return batch.Delete(addrKey(output.Address, outpoint))
}

// Unconsume reverses a Consume staged at height, restoring the output to
// UTXO and removing its STXO record.
func (s *Store) Unconsume(batch storage.Batch, height uint64, outpoint types.OutPoint) error {
	prevData, ok, err := s.log.PopAt(batch, rollbackUTXOKey(outpoint), height)
	if err != nil {
		return fmt.Errorf("utxo: pop rollback: %w", err)
	}
	if !ok {
		return fmt.Errorf("utxo: no consume recorded for %s at height %d", outpoint, height)
	}
	if _, _, err := s.log.PopAt(batch, rollbackSTXOKey(outpoint), height); err != nil {
		return fmt.Errorf("utxo: pop rollback: %w", err)
	}

	var rec utxoRecord
	if err := json.Unmarshal(prevData, &rec); err != nil {
		return fmt.Errorf("utxo: unmarshal undo value for %s: %w", outpoint, err)
	}

	if err := batch.Delete(stxoKey(outpoint)); err != nil {
		return err
	}
	if err := batch.Put(utxoKey(outpoint), prevData); err != nil {
		return err
	}
	indexData, err := json.Marshal(outpoint)
	if err != nil {
		return fmt.Errorf("utxo: marshal index %s: %w", outpoint, err)
	}
	return batch.Put(addrKey(rec.Output.Address, outpoint), indexData)
}

// ForEach iterates over all unspent outputs.
func (s *Store) ForEach(fn func(types.OutPoint, *types.FilledOutput) error) error {
	return s.db.ForEach(prefixUTXO, func(key, value []byte) error {
		var rec utxoRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("utxo: unmarshal: %w", err)
		}
		return fn(rec.OutPoint, &rec.Output)
	})
}

// GetByAddress returns all unspent outputs belonging to addr.
func (s *Store) GetByAddress(addr types.Address) ([]UTXOEntry, error) {
	prefix := append(append([]byte(nil), prefixAddr...), addr[:]...)

	var entries []UTXOEntry
	err := s.db.ForEach(prefix, func(key, value []byte) error {
		var op types.OutPoint
		if err := json.Unmarshal(value, &op); err != nil {
			return fmt.Errorf("utxo: unmarshal index: %w", err)
		}
		out, err := s.Get(op)
		if err != nil {
			return nil // output may have been spent since the index was read.
		}
		entries = append(entries, UTXOEntry{OutPoint: op, Output: *out})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("utxo: scan address index: %w", err)
	}
	return entries, nil
}
