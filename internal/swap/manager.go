package swap

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/pkg/tx"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

// GCGracePeriod is how long, in blocks, a Completed or Cancelled swap is
// kept in the store after its last transition before GC becomes eligible
// to drop it. Matched to the parent-chain reorg horizon DefaultConfirmations
// targets (~2700s), not an arbitrary round number.
const GCGracePeriod = 450

// Manager is the Swap Engine: creation, oracle-driven advancement, and
// claiming of cross-chain swaps, built over a Store.
type Manager struct {
	store  *Store
	oracle Oracle
}

// NewManager creates a swap Manager over store, polling oracle to decide
// confirmation-driven transitions.
func NewManager(store *Store, oracle Oracle) *Manager {
	return &Manager{store: store, oracle: oracle}
}

// Store exposes the underlying Store for read access by the validator and
// any RPC/API layer.
func (m *Manager) Store() *Store { return m.store }

// CreateParams carries everything a validated SwapCreate transaction
// supplies to start a new swap.
type CreateParams struct {
	Direction             tx.SwapDirection
	ParentChain           tx.ParentChainType
	L1TxID                []byte // empty for L2->L1 until SetL1Txid is called
	RequiredConfirmations uint32
	L2Recipient           types.Address
	L2Sender              types.Address
	L2Amount              uint64
	L1RecipientAddress    string
	L1Amount              uint64
	CreatedAtHeight       uint64
	ExpiresAtHeight       *uint64
	// CollateralOutputs are the UTXOs this SwapCreate transaction itself
	// produces as L2 collateral. Only meaningful for SwapL2ToL1.
	CollateralOutputs []types.OutPoint
}

// Create computes the swap's deterministic ID, rejects a collision,
// persists it Pending, and — for an L2ToL1 swap — locks its collateral
// outputs so no other transaction may spend them until Claim or reorg
// undo.
func (m *Manager) Create(batch storage.Batch, p CreateParams) (*Swap, error) {
	id := ComputeSwapID(p.Direction, p.L1TxID, p.L2Recipient, p.L1RecipientAddress, p.L1Amount, p.L2Sender)
	if has, err := m.store.Has(id); err != nil {
		return nil, err
	} else if has {
		return nil, fmt.Errorf("%w: %s", ErrSwapAlreadyExists, id)
	}

	s := &Swap{
		ID:                    id,
		Direction:             p.Direction,
		ParentChain:           p.ParentChain,
		L1TxID:                p.L1TxID,
		RequiredConfirmations: p.RequiredConfirmations,
		State:                 SwapState{Kind: StatePending},
		L2Recipient:           p.L2Recipient,
		L2Amount:              p.L2Amount,
		L1RecipientAddress:    p.L1RecipientAddress,
		L1Amount:              p.L1Amount,
		CreatedAtHeight:       p.CreatedAtHeight,
		ExpiresAtHeight:       p.ExpiresAtHeight,
		LastTransitionHeight:  p.CreatedAtHeight,
	}
	if p.Direction == tx.SwapL2ToL1 {
		s.LockedOutputs = p.CollateralOutputs
	}
	if err := m.store.Put(batch, p.CreatedAtHeight, nil, s); err != nil {
		return nil, err
	}
	return s, nil
}

// SetL1Txid fills in the parent-chain transaction ID for an L2->L1 swap
// once the user has broadcast their payment to the L1 recipient address.
// Permitted exactly once, and only while the swap is still Pending.
func (m *Manager) SetL1Txid(batch storage.Batch, height uint64, id types.SwapID, l1TxID []byte) (*Swap, error) {
	s, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if s.State.Kind != StatePending {
		return nil, fmt.Errorf("%w: swap %s is %s, not pending", ErrInvalidStateTransition, id, s.State.Kind)
	}
	if len(s.L1TxID) != 0 {
		return nil, fmt.Errorf("%w: swap %s already has an l1_txid", ErrInvalidStateTransition, id)
	}
	old := *s
	s.L1TxID = l1TxID
	s.LastTransitionHeight = height
	if err := m.store.Put(batch, height, &old, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Advance runs one polling step of id's state machine against the
// oracle's current view of the parent-chain transaction and, if the
// state changed, persists it. A returned ErrTransactionDisappeared
// leaves the swap's stored state untouched — the operator's poller
// decides, per §7, whether to keep retrying or escalate.
func (m *Manager) Advance(ctx context.Context, batch storage.Batch, id types.SwapID, currentHeight uint64) (*Swap, error) {
	s, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	old := *s
	if err := s.advance(ctx, m.oracle, currentHeight); err != nil {
		return s, err
	}
	if s.State == old.State {
		return s, nil
	}
	s.LastTransitionHeight = currentHeight
	if err := m.store.Put(batch, currentHeight, &old, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Claim validates and applies a SwapClaim transaction: the swap must be
// ReadyToClaim, the spent inputs and produced outputs must satisfy
// ValidateClaim, and on success the swap transitions to Completed and its
// locked outputs are released.
func (m *Manager) Claim(batch storage.Batch, height uint64, swapID types.SwapID, inputs []types.OutPoint, outputs []types.FilledOutput) (*Swap, error) {
	s, err := ValidateClaim(m.store, swapID, inputs, outputs)
	if err != nil {
		return nil, err
	}
	old := *s
	s.State = SwapState{Kind: StateCompleted}
	s.LastTransitionHeight = height
	if err := m.store.Put(batch, height, &old, s); err != nil {
		return nil, err
	}
	return s, nil
}

// UndoClaim reverses Claim during block disconnect, restoring
// ReadyToClaim and re-locking the swap's collateral outputs.
func (m *Manager) UndoClaim(batch storage.Batch, height uint64, id types.SwapID) error {
	s, err := m.store.Get(id)
	if err != nil {
		return err
	}
	old := *s
	s.State = SwapState{Kind: StateReadyToClaim}
	s.LastTransitionHeight = height
	return m.store.Put(batch, height, &old, s)
}

// GC deletes every swap in a terminal state (Completed or Cancelled)
// whose LastTransitionHeight is at least GCGracePeriod blocks behind
// currentHeight. Pruning is storage hygiene, not a consensus rule: no
// index or validation path depends on a GC'd swap still being present.
func (m *Manager) GC(batch storage.Batch, currentHeight uint64) (int, error) {
	if currentHeight < GCGracePeriod {
		return 0, nil
	}
	cutoff := currentHeight - GCGracePeriod

	var toDelete []Swap
	err := m.store.db.ForEach(prefixSwap, func(_, value []byte) error {
		var s Swap
		if err := json.Unmarshal(value, &s); err != nil {
			return fmt.Errorf("swap: unmarshal during gc scan: %w", err)
		}
		switch s.State.Kind {
		case StateCompleted, StateCancelled:
			if s.LastTransitionHeight <= cutoff {
				toDelete = append(toDelete, s)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("swap: gc scan: %w", err)
	}

	for i := range toDelete {
		if err := m.store.Delete(batch, &toDelete[i]); err != nil {
			return 0, fmt.Errorf("swap: gc delete %s: %w", toDelete[i].ID, err)
		}
	}
	return len(toDelete), nil
}
