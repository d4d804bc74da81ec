package chain

import (
	"fmt"

	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/internal/withdrawal"
	"github.com/coinshift-network/coinshift-core/pkg/block"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

// connectPeg applies a block's two-way-peg events: new deposit outputs
// enter the UTXO set tagged OutPoint::Deposit, and withdrawal-bundle
// status updates transition the bundle store. Both record which
// parent-chain block they were observed in.
func (e *Engine) connectPeg(batch storage.Batch, height uint64, peg *block.TwoWayPegData) error {
	for _, d := range peg.Deposits {
		op := types.DepositOutPoint(d.Sequence)
		if err := e.utxos.Produce(batch, height, op, d.Output); err != nil {
			return fmt.Errorf("produce deposit %d: %w", d.Sequence, err)
		}
	}
	if len(peg.Deposits) > 0 {
		if err := e.blocks.PutDepositBlockInfo(height, peg.BlockInfo); err != nil {
			return fmt.Errorf("record deposit block info: %w", err)
		}
	}

	for _, u := range peg.BundleStatuses {
		if err := e.connectBundleStatus(batch, height, u); err != nil {
			return fmt.Errorf("bundle status %s: %w", u.BundleID, err)
		}
	}
	if len(peg.BundleStatuses) > 0 {
		if err := e.blocks.PutWithdrawalEventBlockInfo(height, peg.BlockInfo); err != nil {
			return fmt.Errorf("record withdrawal event block info: %w", err)
		}
	}
	return nil
}

// connectBundleStatus applies a single withdrawal-bundle transition.
// Confirming a bundle — known or previously unknown — moves every output
// it references into STXO tagged InPoint::Withdrawal, so a confirmed
// peg-out can never be spent again on this side of the peg (§4.3, §4.8).
func (e *Engine) connectBundleStatus(batch storage.Batch, height uint64, u block.BundleStatusUpdate) error {
	switch u.Status {
	case block.BundleSubmitted:
		_, err := e.withdrawals.Submit(batch, height, u.BundleID, u.Outputs)
		return err

	case block.BundleConfirmed:
		b, err := e.withdrawals.Confirm(batch, height, u.BundleID)
		if err != nil {
			return err
		}
		return e.consumeBundleOutputs(batch, height, b)

	case block.BundleFailed:
		_, err := e.withdrawals.Fail(batch, height, u.BundleID)
		return err

	case block.BundleUnknownConfirmed:
		b, err := e.withdrawals.MarkUnknownConfirmed(batch, height, u.BundleID, u.Outputs)
		if err != nil {
			return err
		}
		return e.consumeBundleOutputs(batch, height, b)

	default:
		return fmt.Errorf("unknown bundle status %d for %s", u.Status, u.BundleID)
	}
}

// consumeBundleOutputs moves every output a confirmed bundle references
// from UTXO into STXO, tagged with the bundle's own InPoint so the spend is
// attributable to the withdrawal rather than to a regular transaction.
func (e *Engine) consumeBundleOutputs(batch storage.Batch, height uint64, b *withdrawal.Bundle) error {
	spentBy := types.WithdrawalInPoint(b.ID)
	for _, op := range b.Outputs {
		if _, err := e.utxos.Consume(batch, height, op, spentBy); err != nil {
			return fmt.Errorf("consume withdrawal output %s: %w", op, err)
		}
	}
	return nil
}

// disconnectPeg reverses connectPeg in the opposite order: bundle status
// updates first, then deposit production.
func (e *Engine) disconnectPeg(batch storage.Batch, height uint64, peg *block.TwoWayPegData) error {
	if len(peg.BundleStatuses) > 0 {
		if err := e.blocks.DeleteWithdrawalEventBlockInfo(height); err != nil {
			return fmt.Errorf("delete withdrawal event block info: %w", err)
		}
	}
	for i := len(peg.BundleStatuses) - 1; i >= 0; i-- {
		u := peg.BundleStatuses[i]
		if err := e.disconnectBundleStatus(batch, height, u); err != nil {
			return fmt.Errorf("undo bundle status %s: %w", u.BundleID, err)
		}
	}

	if len(peg.Deposits) > 0 {
		if err := e.blocks.DeleteDepositBlockInfo(height); err != nil {
			return fmt.Errorf("delete deposit block info: %w", err)
		}
	}
	for i := len(peg.Deposits) - 1; i >= 0; i-- {
		d := peg.Deposits[i]
		op := types.DepositOutPoint(d.Sequence)
		if err := e.utxos.Unproduce(batch, height, op); err != nil {
			return fmt.Errorf("unproduce deposit %d: %w", d.Sequence, err)
		}
	}
	return nil
}

// disconnectBundleStatus reverses connectBundleStatus: for a status that
// consumed outputs into STXO, those outputs are unconsumed — read from the
// still-intact bundle record — before the status transition itself is
// undone.
func (e *Engine) disconnectBundleStatus(batch storage.Batch, height uint64, u block.BundleStatusUpdate) error {
	switch u.Status {
	case block.BundleConfirmed, block.BundleUnknownConfirmed:
		b, err := e.withdrawals.Get(u.BundleID)
		if err != nil {
			return err
		}
		for i := len(b.Outputs) - 1; i >= 0; i-- {
			if err := e.utxos.Unconsume(batch, height, b.Outputs[i]); err != nil {
				return fmt.Errorf("unconsume withdrawal output %s: %w", b.Outputs[i], err)
			}
		}
	}
	return e.withdrawals.Undo(batch, height, u.BundleID)
}
