package swap

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/coinshift-network/coinshift-core/internal/rollback"
	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/pkg/tx"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

// Key prefixes for the swap store. Shares a single storage.DB with every
// other table a block-connect batch touches (UTXO/STXO, bitasset, rollback
// history), so prefixes are namespaced under "swap/" to avoid collisions.
var (
	prefixSwap      = []byte("swap/id/")
	prefixByTx      = []byte("swap/tx/")
	prefixRecipient = []byte("swap/addr/")
	prefixLocked    = []byte("swap/lock/")

	rollbackSwap = []byte("rswap/")
)

func swapKey(id types.SwapID) []byte {
	return append(append([]byte(nil), prefixSwap...), id[:]...)
}

func rollbackSwapKey(id types.SwapID) []byte {
	return append(append([]byte(nil), rollbackSwap...), id[:]...)
}

func txKey(chain tx.ParentChainType, l1TxID []byte) []byte {
	key := append(append([]byte(nil), prefixByTx...), byte(chain))
	return append(key, l1TxID...)
}

func recipientBucketKey(addr types.Address) []byte {
	return append(append([]byte(nil), prefixRecipient...), addr[:]...)
}

func lockedKey(op types.OutPoint) []byte {
	return append(append([]byte(nil), prefixLocked...), op.Bytes()...)
}

// Store implements the swap indices: primary SwapId -> Swap, secondary
// (ParentChainType, TxId) -> SwapId, recipient-address -> []SwapId, and
// the locked-outputs OutPoint -> SwapId index.
type Store struct {
	db  storage.DB
	log *rollback.Log
}

// NewStore creates a swap Store over db. Pass the same db every other
// table in the block-connect batch shares.
func NewStore(db storage.DB) *Store {
	return &Store{db: db, log: rollback.NewLog(db)}
}

func (s *Store) Get(id types.SwapID) (*Swap, error) {
	data, err := s.db.Get(swapKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSwapNotFound, err)
	}
	var swap Swap
	if err := json.Unmarshal(data, &swap); err != nil {
		return nil, fmt.Errorf("swap: unmarshal %s: %w", id, err)
	}
	return &swap, nil
}

func (s *Store) Has(id types.SwapID) (bool, error) {
	return s.db.Has(swapKey(id))
}

// GetByTx resolves the swap currently indexed under (chain, l1TxID).
func (s *Store) GetByTx(chain tx.ParentChainType, l1TxID []byte) (*Swap, error) {
	data, err := s.db.Get(txKey(chain, l1TxID))
	if err != nil {
		return nil, fmt.Errorf("%w: no swap for tx", ErrSwapNotFound)
	}
	var id types.SwapID
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("swap: unmarshal tx index: %w", err)
	}
	return s.Get(id)
}

// ListByRecipient returns every SwapId paying out to addr.
func (s *Store) ListByRecipient(addr types.Address) ([]types.SwapID, error) {
	data, err := s.db.Get(recipientBucketKey(addr))
	if err != nil {
		return nil, nil
	}
	var ids []types.SwapID
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("swap: unmarshal recipient bucket: %w", err)
	}
	return ids, nil
}

// GetLock reports whether op is locked as collateral for a swap, and which.
func (s *Store) GetLock(op types.OutPoint) (types.SwapID, bool, error) {
	data, err := s.db.Get(lockedKey(op))
	if err != nil {
		return types.SwapID{}, false, nil
	}
	var id types.SwapID
	if err := json.Unmarshal(data, &id); err != nil {
		return types.SwapID{}, false, fmt.Errorf("swap: unmarshal lock index: %w", err)
	}
	return id, true, nil
}

// Put writes next as the current record for its ID at height, deriving
// secondary index changes from the (old, next) pair (old is nil on
// creation) and pushing a rollback entry so Unput at the same height
// exactly reverses it.
func (s *Store) Put(batch storage.Batch, height uint64, old, next *Swap) error {
	if err := s.reindex(batch, old, next); err != nil {
		return err
	}
	var prevData []byte
	if old != nil {
		data, err := json.Marshal(old)
		if err != nil {
			return fmt.Errorf("swap: marshal %s: %w", old.ID, err)
		}
		prevData = data
	}
	if err := s.log.Push(batch, rollbackSwapKey(next.ID), height, prevData); err != nil {
		return fmt.Errorf("swap: push rollback: %w", err)
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("swap: marshal %s: %w", next.ID, err)
	}
	return batch.Put(swapKey(next.ID), data)
}

// Unput reverses a Put staged at height, used by disconnect: restores the
// previous record (or removes it entirely, if the Put was a creation) and
// re-derives every secondary index change in the opposite direction.
func (s *Store) Unput(batch storage.Batch, height uint64, id types.SwapID) error {
	current, err := s.Get(id)
	if err != nil {
		return err
	}
	prevData, ok, err := s.log.PopAt(batch, rollbackSwapKey(id), height)
	if err != nil {
		return fmt.Errorf("swap: pop rollback: %w", err)
	}
	if !ok {
		return fmt.Errorf("swap: no mutation recorded for %s at height %d", id, height)
	}
	if prevData == nil {
		if err := s.reindex(batch, current, nil); err != nil {
			return err
		}
		return batch.Delete(swapKey(id))
	}
	var prev Swap
	if err := json.Unmarshal(prevData, &prev); err != nil {
		return fmt.Errorf("swap: unmarshal undo value for %s: %w", id, err)
	}
	if err := s.reindex(batch, current, &prev); err != nil {
		return err
	}
	return batch.Put(swapKey(id), prevData)
}

// Delete cascades removal of old from every index: primary, the (chain,
// txid) secondary, the recipient bucket (pruning it when it becomes
// empty), and any locked-outputs rows old still holds. Used only by GC,
// which prunes swaps well past any reorg horizon — it intentionally does
// not push a rollback entry.
func (s *Store) Delete(batch storage.Batch, old *Swap) error {
	if err := s.reindex(batch, old, nil); err != nil {
		return err
	}
	return batch.Delete(swapKey(old.ID))
}

func (s *Store) reindex(batch storage.Batch, old, next *Swap) error {
	oldHasTx := old != nil && len(old.L1TxID) > 0
	nextHasTx := next != nil && len(next.L1TxID) > 0

	if oldHasTx && (!nextHasTx || old.ParentChain != next.ParentChain || !bytes.Equal(old.L1TxID, next.L1TxID)) {
		if err := batch.Delete(txKey(old.ParentChain, old.L1TxID)); err != nil {
			return err
		}
	}
	if nextHasTx {
		data, err := json.Marshal(next.ID)
		if err != nil {
			return fmt.Errorf("swap: marshal tx index: %w", err)
		}
		if err := batch.Put(txKey(next.ParentChain, next.L1TxID), data); err != nil {
			return err
		}
	}

	if old == nil && next != nil {
		if err := s.addToBucket(batch, next.L2Recipient, next.ID); err != nil {
			return err
		}
	} else if next == nil && old != nil {
		if err := s.removeFromBucket(batch, old.L2Recipient, old.ID); err != nil {
			return err
		}
	} else if old != nil && next != nil && old.L2Recipient != next.L2Recipient {
		if err := s.removeFromBucket(batch, old.L2Recipient, old.ID); err != nil {
			return err
		}
		if err := s.addToBucket(batch, next.L2Recipient, next.ID); err != nil {
			return err
		}
	}

	wasLocked := isLockActive(old)
	nextLocked := isLockActive(next)
	if wasLocked && !nextLocked {
		for _, op := range old.LockedOutputs {
			if err := batch.Delete(lockedKey(op)); err != nil {
				return err
			}
		}
	}
	if nextLocked && !wasLocked {
		data, err := json.Marshal(next.ID)
		if err != nil {
			return fmt.Errorf("swap: marshal lock index: %w", err)
		}
		for _, op := range next.LockedOutputs {
			if err := batch.Put(lockedKey(op), data); err != nil {
				return err
			}
		}
	}
	return nil
}

// isLockActive reports whether s's LockedOutputs should currently appear
// in the locked-outputs index: a swap's collateral is held exactly while
// the swap is neither Completed nor Cancelled.
func isLockActive(s *Swap) bool {
	if s == nil || len(s.LockedOutputs) == 0 {
		return false
	}
	switch s.State.Kind {
	case StateCompleted, StateCancelled:
		return false
	default:
		return true
	}
}

// addToBucket appends id to addr's recipient bucket, reading the current
// bucket straight from the store (not the in-flight batch — the batch
// interface is write-only, and no entry in the same batch ever touches
// the same recipient bucket twice within one swap mutation).
func (s *Store) addToBucket(batch storage.Batch, addr types.Address, id types.SwapID) error {
	ids, err := s.ListByRecipient(addr)
	if err != nil {
		return err
	}
	ids = append(ids, id)
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("swap: marshal recipient bucket: %w", err)
	}
	return batch.Put(recipientBucketKey(addr), data)
}

// removeFromBucket prunes id from addr's recipient bucket, deleting the
// bucket entirely once it becomes empty.
func (s *Store) removeFromBucket(batch storage.Batch, addr types.Address, id types.SwapID) error {
	ids, err := s.ListByRecipient(addr)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if len(kept) == 0 {
		return batch.Delete(recipientBucketKey(addr))
	}
	data, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("swap: marshal recipient bucket: %w", err)
	}
	return batch.Put(recipientBucketKey(addr), data)
}
