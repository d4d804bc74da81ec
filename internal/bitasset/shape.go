// Package bitasset implements the shape-level invariants for BitAsset
// reservation/registration/update, constant-product AMM mint/burn/swap,
// and Dutch auction transactions, plus the mutable side-state (registry,
// pool reserves, auction records) those transactions maintain.
package bitasset

import (
	"errors"
	"fmt"

	"github.com/coinshift-network/coinshift-core/pkg/tx"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

// Shape-rule errors, named directly after the structural/AMM/auction
// error kinds in the taxonomy.
var (
	ErrUnbalancedReservations     = errors.New("bitasset: reservation count unbalanced")
	ErrUnbalancedBitAssets        = errors.New("bitasset: bitasset output count too low")
	ErrUnbalancedBitAssetControls = errors.New("bitasset: control-coin count unbalanced")
	ErrLastOutputNotControlCoin   = errors.New("bitasset: last output is not the control coin")
	ErrSecondLastOutputNotAsset   = errors.New("bitasset: second-to-last output is not a bitasset")
	ErrBitAssetAlreadyRegistered  = errors.New("bitasset: name_hash already registered")
	ErrInvalidBurn                = errors.New("bitasset: invalid burn shape")
	ErrTooFewToMint                = errors.New("bitasset: too few bitassets to mint")
	ErrAuctionTooFewToCreate       = errors.New("bitasset: too few bitassets to create auction")
	ErrAuctionBidInvalid           = errors.New("bitasset: invalid auction bid shape")
	ErrAuctionCollectInvalid       = errors.New("bitasset: invalid auction collect shape")
)

// counts tallies the shape quantities every rule in §4.6 is expressed
// over: raw per-kind output counts plus unique-BitAssetID cardinalities.
//
// unique_in/unique_out are pinned (see DESIGN.md) to mean the same
// cardinality as unique_bitasset_in/out — the count of distinct
// BitAssetIDs carried by OutputBitAsset-kind entries — since AMM/auction
// rules operate over BitAsset holdings, not LP shares or auction slots.
type counts struct {
	reservationIn, reservationOut int
	controlIn, controlOut         int
	bitAssetOut                   int
	uniqueBitAssetIn               int
	uniqueBitAssetOut              int
}

func tally(inputs, outputs []types.FilledOutput) counts {
	var c counts
	for _, in := range inputs {
		switch in.Kind {
		case types.OutputReservation:
			c.reservationIn++
		case types.OutputBitAssetControl:
			c.controlIn++
		}
	}
	for _, out := range outputs {
		switch out.Kind {
		case types.OutputReservation:
			c.reservationOut++
		case types.OutputBitAssetControl:
			c.controlOut++
		case types.OutputBitAsset:
			c.bitAssetOut++
		}
	}
	c.uniqueBitAssetIn = len(tx.UniqueBitAssetsIn(inputs))
	c.uniqueBitAssetOut = len(tx.UniqueBitAssetsOut(outputs))
	return c
}

func abs(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// Registered reports whether a BitAsset name hash is already registered.
// The registration rule needs this to reject duplicate registrations.
type Registered func(nameHash types.Hash) (bool, error)

// ValidateShape checks data's structural shape against inputs/outputs per
// the §4.6 table. registered is consulted only for
// BitAssetRegistration; pass nil for any other variant.
func ValidateShape(data tx.Data, inputs, outputs []types.FilledOutput, registered Registered) error {
	c := tally(inputs, outputs)
	uniqueIn, uniqueOut := len(tx.UniqueBitAssetsIn(inputs)), len(tx.UniqueBitAssetsOut(outputs))

	switch data.Kind {
	case tx.DataBitAssetReservation:
		if c.reservationOut != c.reservationIn+1 {
			return fmt.Errorf("%w: in=%d out=%d", ErrUnbalancedReservations, c.reservationIn, c.reservationOut)
		}
		return nil

	case tx.DataBitAssetRegistration:
		if c.reservationOut != c.reservationIn-1 {
			return fmt.Errorf("%w: in=%d out=%d", ErrUnbalancedReservations, c.reservationIn, c.reservationOut)
		}
		if c.controlOut != c.controlIn+1 {
			return fmt.Errorf("%w: in=%d out=%d", ErrUnbalancedBitAssetControls, c.controlIn, c.controlOut)
		}
		if len(outputs) == 0 || outputs[len(outputs)-1].Kind != types.OutputBitAssetControl {
			return ErrLastOutputNotControlCoin
		}
		if data.InitialSupply > 0 {
			if len(outputs) < 2 || outputs[len(outputs)-2].Kind != types.OutputBitAsset {
				return ErrSecondLastOutputNotAsset
			}
			if c.bitAssetOut < c.uniqueBitAssetIn+1 {
				return fmt.Errorf("%w: need >= %d, got %d", ErrUnbalancedBitAssets, c.uniqueBitAssetIn+1, c.bitAssetOut)
			}
		} else if c.bitAssetOut < c.uniqueBitAssetIn {
			return fmt.Errorf("%w: need >= %d, got %d", ErrUnbalancedBitAssets, c.uniqueBitAssetIn, c.bitAssetOut)
		}
		if registered != nil {
			already, err := registered(data.NameHash)
			if err != nil {
				return err
			}
			if already {
				return fmt.Errorf("%w: %s", ErrBitAssetAlreadyRegistered, data.NameHash)
			}
		}
		return nil

	case tx.DataBitAssetUpdate:
		if c.controlIn < 1 || c.controlOut < 1 {
			return fmt.Errorf("%w: control_in=%d control_out=%d", ErrUnbalancedBitAssetControls, c.controlIn, c.controlOut)
		}
		return nil

	case tx.DataAmmMint:
		if c.uniqueBitAssetIn < 2 {
			return fmt.Errorf("%w: need >= 2 unique bitassets in, got %d", ErrTooFewToMint, c.uniqueBitAssetIn)
		}
		if !(c.uniqueBitAssetOut <= c.uniqueBitAssetIn && c.uniqueBitAssetIn <= c.uniqueBitAssetOut+2) {
			return fmt.Errorf("%w: in=%d out=%d", ErrTooFewToMint, c.uniqueBitAssetIn, c.uniqueBitAssetOut)
		}
		return nil

	case tx.DataAmmBurn:
		if c.uniqueBitAssetOut < 2 {
			return fmt.Errorf("%w: need >= 2 unique bitassets out, got %d", ErrInvalidBurn, c.uniqueBitAssetOut)
		}
		if !(c.uniqueBitAssetIn <= c.uniqueBitAssetOut && c.uniqueBitAssetOut <= c.uniqueBitAssetIn+2) {
			return fmt.Errorf("%w: in=%d out=%d", ErrInvalidBurn, c.uniqueBitAssetIn, c.uniqueBitAssetOut)
		}
		return nil

	case tx.DataAmmSwap:
		if c.uniqueBitAssetIn < 1 {
			return fmt.Errorf("%w: need >= 1 unique bitasset in", ErrTooFewToMint)
		}
		if abs(uniqueOut, uniqueIn) > 1 {
			return fmt.Errorf("%w: |unique_out(%d) - unique_in(%d)| > 1", ErrUnbalancedBitAssets, uniqueOut, uniqueIn)
		}
		return nil

	case tx.DataDutchAuctionCreate:
		if c.uniqueBitAssetIn < 1 {
			return fmt.Errorf("%w: need >= 1 unique bitasset in", ErrAuctionTooFewToCreate)
		}
		if !(uniqueOut <= uniqueIn && uniqueIn <= uniqueOut+1) {
			return fmt.Errorf("%w: in=%d out=%d", ErrAuctionTooFewToCreate, uniqueIn, uniqueOut)
		}
		return nil

	case tx.DataDutchAuctionBid:
		if c.uniqueBitAssetIn < 1 {
			return fmt.Errorf("%w: need >= 1 unique bitasset in", ErrAuctionBidInvalid)
		}
		if abs(uniqueOut, uniqueIn) > 1 {
			return fmt.Errorf("%w: |unique_out(%d) - unique_in(%d)| > 1", ErrAuctionBidInvalid, uniqueOut, uniqueIn)
		}
		return nil

	case tx.DataDutchAuctionCollect:
		if c.uniqueBitAssetOut < 1 {
			return fmt.Errorf("%w: need >= 1 unique bitasset out", ErrAuctionCollectInvalid)
		}
		if !(uniqueIn <= uniqueOut && uniqueOut <= uniqueIn+2) {
			return fmt.Errorf("%w: in=%d out=%d", ErrAuctionCollectInvalid, uniqueIn, uniqueOut)
		}
		return nil

	default:
		// DataNone, DataSwapCreate, DataSwapClaim: the catch-all rule.
		if c.controlOut != c.controlIn {
			return fmt.Errorf("%w: in=%d out=%d", ErrUnbalancedBitAssetControls, c.controlIn, c.controlOut)
		}
		if c.bitAssetOut < c.uniqueBitAssetIn {
			return fmt.Errorf("%w: need >= %d, got %d", ErrUnbalancedBitAssets, c.uniqueBitAssetIn, c.bitAssetOut)
		}
		if c.uniqueBitAssetIn == 0 && c.bitAssetOut != 0 {
			return fmt.Errorf("%w: no bitasset inputs but %d bitasset outputs", ErrUnbalancedBitAssets, c.bitAssetOut)
		}
		return nil
	}
}
