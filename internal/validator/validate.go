// Package validator implements the transaction validator: fill inputs
// from the UTXO set, authorize, check application-layer shape rules,
// enforce swap semantics, and compute the fee.
package validator

import (
	"errors"
	"fmt"
	"math"

	"github.com/coinshift-network/coinshift-core/internal/bitasset"
	"github.com/coinshift-network/coinshift-core/internal/swap"
	"github.com/coinshift-network/coinshift-core/internal/utxo"
	"github.com/coinshift-network/coinshift-core/pkg/crypto"
	"github.com/coinshift-network/coinshift-core/pkg/tx"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

var (
	// ErrWrongPubKeyForAddress is returned when an input's public key does
	// not derive the spent output's address.
	ErrWrongPubKeyForAddress = errors.New("validator: pubkey does not derive spent output's address")
	// ErrAuthorizationError is returned when an input's signature fails
	// verification against the transaction's signing hash.
	ErrAuthorizationError = errors.New("validator: invalid signature")
	// ErrNotEnoughValueIn is returned when total output value exceeds
	// total input value.
	ErrNotEnoughValueIn = errors.New("validator: inputs do not cover outputs")
	// ErrAmountOverflow is returned when summing input values overflows
	// uint64.
	ErrAmountOverflow = errors.New("validator: input value overflow")
)

// Validator runs the fill -> authorize -> shape -> swap-semantics -> fee
// pipeline over a transaction, reading against the UTXO set, the BitAsset
// registry, and the swap store as they stand at the point of validation.
// It never mutates any of them — callers that accept a transaction apply
// its effects separately, through the same tables' Produce/Consume/Put
// methods, inside the block-connect batch.
type Validator struct {
	utxo     utxo.Set
	registry *bitasset.Registry
	swaps    *swap.Store
}

// New creates a Validator over the given tables.
func New(utxoSet utxo.Set, registry *bitasset.Registry, swaps *swap.Store) *Validator {
	return &Validator{utxo: utxoSet, registry: registry, swaps: swaps}
}

// Validate runs the full pipeline and returns the transaction's fee (the
// non-negative difference between total input and total output value).
func (v *Validator) Validate(transaction *tx.Transaction) (uint64, error) {
	inputs := make([]types.FilledOutput, len(transaction.Inputs))
	prevOuts := make([]types.OutPoint, len(transaction.Inputs))
	for i, in := range transaction.Inputs {
		out, err := v.utxo.Get(in.PrevOut)
		if err != nil {
			return 0, fmt.Errorf("input %d (%s): %w", i, in.PrevOut, err)
		}
		inputs[i] = *out
		prevOuts[i] = in.PrevOut
	}

	sigHash := transaction.Hash()
	var totalIn uint64
	for i, in := range transaction.Inputs {
		derived := crypto.AddressFromPubKey(in.PubKey)
		if derived != inputs[i].Address {
			return 0, fmt.Errorf("input %d: %w: derived %s, want %s", i, ErrWrongPubKeyForAddress, derived, inputs[i].Address)
		}
		if !crypto.VerifySignature(sigHash[:], in.Signature, in.PubKey) {
			return 0, fmt.Errorf("input %d: %w", i, ErrAuthorizationError)
		}
		if totalIn > math.MaxUint64-inputs[i].Value {
			return 0, fmt.Errorf("input %d: %w", i, ErrAmountOverflow)
		}
		totalIn += inputs[i].Value
	}

	if err := bitasset.ValidateShape(transaction.Data, inputs, transaction.Outputs, v.registry.IsRegistered); err != nil {
		return 0, err
	}

	if transaction.Data.Kind == tx.DataSwapClaim {
		if _, err := swap.ValidateClaim(v.swaps, transaction.Data.SwapID, prevOuts, transaction.Outputs); err != nil {
			return 0, err
		}
	} else if err := swap.CheckUnlocked(v.swaps, prevOuts); err != nil {
		return 0, err
	}

	totalOut, err := transaction.TotalOutputValue()
	if err != nil {
		return 0, err
	}
	if totalIn < totalOut {
		return 0, fmt.Errorf("%w: inputs=%d outputs=%d", ErrNotEnoughValueIn, totalIn, totalOut)
	}
	return totalIn - totalOut, nil
}
