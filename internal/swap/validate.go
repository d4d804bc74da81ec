package swap

import (
	"errors"
	"fmt"

	"github.com/coinshift-network/coinshift-core/pkg/types"
)

var (
	ErrLockedOutputSpent = errors.New("swap: input is locked to a different swap")
	ErrNoOwnLockConsumed = errors.New("swap: claim consumes no output locked to its own swap")
	ErrNoRecipientPayout = errors.New("swap: claim pays no output to the swap's l2_recipient")
)

// ValidateClaim checks that a SwapClaim transaction is entitled to the
// locked outputs it spends, per the Claim rule in §4.5: the referenced
// swap must exist and be ReadyToClaim, at least one input must be locked
// to that exact swap, no input may be locked to a different swap, and at
// least one output must pay the swap's L2Recipient. It returns the swap
// so the caller (the block engine) can transition it to Completed.
func ValidateClaim(store *Store, swapID types.SwapID, inputs []types.OutPoint, outputs []types.FilledOutput) (*Swap, error) {
	s, err := store.Get(swapID)
	if err != nil {
		return nil, err
	}
	if s.State.Kind != StateReadyToClaim {
		return nil, fmt.Errorf("%w: swap %s is %s, not ready_to_claim", ErrInvalidStateTransition, s.ID, s.State.Kind)
	}

	ownLockConsumed := false
	for _, op := range inputs {
		lockedTo, locked, err := store.GetLock(op)
		if err != nil {
			return nil, err
		}
		if !locked {
			continue
		}
		if lockedTo != s.ID {
			return nil, fmt.Errorf("%w: outpoint %s locked to swap %s", ErrLockedOutputSpent, op, lockedTo)
		}
		ownLockConsumed = true
	}
	if !ownLockConsumed {
		return nil, ErrNoOwnLockConsumed
	}

	for _, out := range outputs {
		if out.Address == s.L2Recipient {
			return s, nil
		}
	}
	return nil, ErrNoRecipientPayout
}

// CheckUnlocked enforces the locked-outputs gate for any transaction that
// is not itself a SwapClaim: none of its inputs may be an outpoint
// currently locked as another swap's collateral.
func CheckUnlocked(store *Store, inputs []types.OutPoint) error {
	for _, op := range inputs {
		lockedTo, locked, err := store.GetLock(op)
		if err != nil {
			return err
		}
		if locked {
			return fmt.Errorf("%w: outpoint %s locked to swap %s", ErrLockedOutputSpent, op, lockedTo)
		}
	}
	return nil
}
