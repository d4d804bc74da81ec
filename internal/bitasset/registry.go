package bitasset

import (
	"encoding/json"
	"fmt"

	"github.com/coinshift-network/coinshift-core/internal/rollback"
	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

var (
	prefixByID   = []byte("bitasset/id/")
	prefixByName = []byte("bitasset/name/")

	rollbackRegistry = []byte("rbitasset/r/")
)

func idKey(id types.BitAssetID) []byte {
	return append(append([]byte(nil), prefixByID...), id[:]...)
}

func nameKey(nameHash types.Hash) []byte {
	return append(append([]byte(nil), prefixByName...), nameHash[:]...)
}

func rollbackRegistryKey(id types.BitAssetID) []byte {
	return append(append([]byte(nil), rollbackRegistry...), id[:]...)
}

// Record is a registered BitAsset's immutable identity plus its
// height-of-registration and initial issuance.
type Record struct {
	ID              types.BitAssetID `json:"id"`
	NameHash        types.Hash       `json:"name_hash"`
	InitialSupply   uint64           `json:"initial_supply"`
	CreatedAtHeight uint64           `json:"created_at_height"`
}

// Registry persists the bitassets/* table: NameHash -> Record and
// ID -> Record, enforcing that a name_hash registers at most once.
type Registry struct {
	db  storage.DB
	log *rollback.Log
}

// NewRegistry creates a Registry over db.
func NewRegistry(db storage.DB) *Registry {
	return &Registry{db: db, log: rollback.NewLog(db)}
}

// IsRegistered reports whether nameHash already has a registration. Used
// by ValidateShape's BitAssetRegistration rule.
func (r *Registry) IsRegistered(nameHash types.Hash) (bool, error) {
	return r.db.Has(nameKey(nameHash))
}

// Get retrieves a BitAsset's registration record by ID.
func (r *Registry) Get(id types.BitAssetID) (*Record, error) {
	data, err := r.db.Get(idKey(id))
	if err != nil {
		return nil, fmt.Errorf("bitasset: not registered: %s", id)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("bitasset: unmarshal %s: %w", id, err)
	}
	return &rec, nil
}

// Register persists a new BitAsset record at height, indexed by both ID
// and NameHash. Fails if NameHash is already registered.
func (r *Registry) Register(batch storage.Batch, height uint64, rec Record) error {
	if has, err := r.IsRegistered(rec.NameHash); err != nil {
		return err
	} else if has {
		return fmt.Errorf("%w: %s", ErrBitAssetAlreadyRegistered, rec.NameHash)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("bitasset: marshal %s: %w", rec.ID, err)
	}
	if err := r.log.Push(batch, rollbackRegistryKey(rec.ID), height, nil); err != nil {
		return fmt.Errorf("bitasset: push rollback: %w", err)
	}
	if err := batch.Put(idKey(rec.ID), data); err != nil {
		return err
	}
	return batch.Put(nameKey(rec.NameHash), data)
}

// Unregister reverses Register staged at height, used by disconnect.
func (r *Registry) Unregister(batch storage.Batch, height uint64, id types.BitAssetID) error {
	rec, err := r.Get(id)
	if err != nil {
		return err
	}
	if _, ok, err := r.log.PopAt(batch, rollbackRegistryKey(id), height); err != nil {
		return fmt.Errorf("bitasset: pop rollback: %w", err)
	} else if !ok {
		return fmt.Errorf("bitasset: no registration recorded for %s at height %d", id, height)
	}
	if err := batch.Delete(idKey(id)); err != nil {
		return err
	}
	return batch.Delete(nameKey(rec.NameHash))
}
