// Package swap implements the Swap Engine: creation, oracle-driven
// advancement, and claiming of trustless cross-chain swaps between L2
// coins and a parent-chain asset.
package swap

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/coinshift-network/coinshift-core/internal/oracle"
	"github.com/coinshift-network/coinshift-core/pkg/crypto"
	"github.com/coinshift-network/coinshift-core/pkg/tx"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

var (
	ErrSwapNotFound          = errors.New("swap: not found")
	ErrSwapAlreadyExists     = errors.New("swap: already exists")
	ErrInvalidStateTransition = errors.New("swap: invalid state transition")
	ErrTransactionDisappeared = errors.New("swap: l1 transaction disappeared")
	ErrSwapExpired           = errors.New("swap: expired")
	ErrInvalidTxId           = errors.New("swap: invalid l1 txid")
)

// SwapStateKind is the discriminant of SwapState.
type SwapStateKind uint8

const (
	StatePending SwapStateKind = iota
	StateWaitingConfirmations
	StateReadyToClaim
	StateCompleted
	StateCancelled
)

func (k SwapStateKind) String() string {
	switch k {
	case StatePending:
		return "pending"
	case StateWaitingConfirmations:
		return "waiting_confirmations"
	case StateReadyToClaim:
		return "ready_to_claim"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// SwapState is the swap's lifecycle position. CurrentConfirmations and
// RequiredConfirmations are only meaningful when Kind == StateWaitingConfirmations.
type SwapState struct {
	Kind                  SwapStateKind `json:"kind"`
	CurrentConfirmations  uint32        `json:"current_confirmations,omitempty"`
	RequiredConfirmations uint32        `json:"required_confirmations,omitempty"`
}

// Swap is a trustless conditional payment: pay L2Amount to L2Recipient iff
// L1TxID is observed on ParentChain with RequiredConfirmations.
type Swap struct {
	ID                    types.SwapID       `json:"id"`
	Direction             tx.SwapDirection    `json:"direction"`
	ParentChain           tx.ParentChainType  `json:"parent_chain"`
	L1TxID                []byte              `json:"l1_txid,omitempty"`
	RequiredConfirmations uint32              `json:"required_confirmations"`
	State                 SwapState           `json:"state"`
	L2Recipient           types.Address       `json:"l2_recipient"`
	L2Amount              uint64              `json:"l2_amount"`
	L1RecipientAddress    string              `json:"l1_recipient_address,omitempty"`
	L1Amount              uint64              `json:"l1_amount,omitempty"`
	CreatedAtHeight       uint64              `json:"created_at_height"`
	ExpiresAtHeight       *uint64             `json:"expires_at_height,omitempty"`

	// LastTransitionHeight is the height of the most recent state change,
	// used only to decide GC eligibility once a swap reaches Completed or
	// Cancelled (§3 lifecycle) — not a consensus-critical field.
	LastTransitionHeight uint64 `json:"last_transition_height"`

	// LockedOutputs are the L2 collateral UTXOs this swap holds exclusive
	// claim rights over. Only non-empty for SwapL2ToL1 swaps. Carried on
	// the swap itself (rather than only in the locked-outputs index) so
	// Claim and reorg undo can recompute that index from the record alone.
	LockedOutputs []types.OutPoint `json:"locked_outputs,omitempty"`
}

// Oracle is the subset of the parent-chain oracle the swap state machine
// needs to advance a swap.
type Oracle interface {
	GetTransaction(ctx context.Context, chain tx.ParentChainType, txid string) (*oracle.TxInfo, error)
}

// ComputeSwapID derives a swap's deterministic ID per its direction.
func ComputeSwapID(direction tx.SwapDirection, l1TxID []byte, l2Recipient types.Address, l1RecipientAddress string, l1Amount uint64, l2Sender types.Address) types.SwapID {
	switch direction {
	case tx.SwapL2ToL1:
		buf := make([]byte, 0, len(l1RecipientAddress)+8+2*types.AddressSize)
		buf = append(buf, []byte(l1RecipientAddress)...)
		buf = putUint64LE(buf, l1Amount)
		buf = append(buf, l2Sender[:]...)
		buf = append(buf, l2Recipient[:]...)
		return types.SwapID(crypto.Hash(buf))
	default: // tx.SwapL1ToL2
		buf := make([]byte, 0, len(l1TxID)+types.AddressSize)
		buf = append(buf, l1TxID...)
		buf = append(buf, l2Recipient[:]...)
		return types.SwapID(crypto.Hash(buf))
	}
}

func putUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

// advance runs one polling step of the swap state machine against the
// oracle's current view of the L1 transaction. Only the transitions listed
// in the engine's Advance contract are legal; every other combination is a
// no-op.
func (s *Swap) advance(ctx context.Context, oracle Oracle, currentHeight uint64) error {
	switch s.State.Kind {
	case StateReadyToClaim, StateCompleted, StateCancelled:
		return nil
	}

	if s.ExpiresAtHeight != nil && currentHeight >= *s.ExpiresAtHeight {
		s.State = SwapState{Kind: StateCancelled}
		return nil
	}

	if len(s.L1TxID) == 0 {
		// L2->L1 swap awaiting SetL1Txid; nothing to poll yet.
		return nil
	}

	info, err := oracle.GetTransaction(ctx, s.ParentChain, hex.EncodeToString(s.L1TxID))
	if err != nil {
		return err
	}
	if info == nil {
		if s.State.Kind == StatePending {
			return nil
		}
		return ErrTransactionDisappeared
	}

	current := info.NormalizedConfirmations()
	switch s.State.Kind {
	case StatePending:
		s.State = SwapState{
			Kind:                  StateWaitingConfirmations,
			CurrentConfirmations:  current,
			RequiredConfirmations: s.RequiredConfirmations,
		}
	case StateWaitingConfirmations:
		if current >= s.RequiredConfirmations {
			s.State = SwapState{Kind: StateReadyToClaim}
		} else {
			s.State.CurrentConfirmations = current
		}
	}
	return nil
}
