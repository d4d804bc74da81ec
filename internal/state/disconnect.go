package chain

import (
	"fmt"

	"github.com/coinshift-network/coinshift-core/internal/bitasset"
	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/internal/swap"
	"github.com/coinshift-network/coinshift-core/pkg/block"
	"github.com/coinshift-network/coinshift-core/pkg/tx"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

// Disconnect reverses a previously connected block, restoring the
// UTXO/STXO index, application-layer side tables, and tip to their
// pre-connect state. header must be the current tip's header.
func (e *Engine) Disconnect(header *block.Header, body []*tx.Transaction, pegData *block.TwoWayPegData) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	hash := header.Hash()
	if e.state.TipHash != hash {
		return fmt.Errorf("chain: disconnect target %s is not the current tip %s", hash, e.state.TipHash)
	}
	height := header.Height

	batch := e.db.NewBatch()

	if pegData != nil {
		if err := e.disconnectPeg(batch, height, pegData); err != nil {
			return fmt.Errorf("disconnect peg data: %w", err)
		}
	}

	for i := len(body) - 1; i >= 0; i-- {
		if err := e.disconnectTx(batch, height, body[i]); err != nil {
			return fmt.Errorf("disconnect tx %d: %w", i, err)
		}
		if err := e.blocks.DeleteTxIndex(body[i].Hash()); err != nil {
			return fmt.Errorf("delete tx index %d: %w", i, err)
		}
	}

	var parentHeight uint64
	var parentHash types.Hash
	var parentTimestamp uint64
	if height > 0 {
		parent, err := e.blocks.GetBlockByHeight(height - 1)
		if err != nil {
			return fmt.Errorf("load parent block: %w", err)
		}
		parentHeight = parent.Header.Height
		parentHash = parent.Header.Hash()
		parentTimestamp = parent.Header.Timestamp
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	// Tip pointer moves only after the side-effect reversal has committed,
	// the same ordering Connect uses for the forward direction.
	if err := e.blocks.SetTip(parentHash, parentHeight); err != nil {
		return fmt.Errorf("set tip: %w", err)
	}

	e.state.TipHash = parentHash
	e.state.Height = parentHeight
	e.state.TipTimestamp = parentTimestamp
	e.notifyTip()
	return nil
}

// disconnectTx reverses a single transaction's side effects and UTXO
// movement, in the opposite order connectTx applied them.
func (e *Engine) disconnectTx(batch storage.Batch, height uint64, t *tx.Transaction) error {
	txHash := t.Hash()

	inputsFilled := make([]types.FilledOutput, len(t.Inputs))
	prevOuts := make([]types.OutPoint, len(t.Inputs))
	for i, in := range t.Inputs {
		out, err := e.utxos.GetSpent(in.PrevOut)
		if err != nil {
			return fmt.Errorf("get spent input %d: %w", i, err)
		}
		inputsFilled[i] = out.Output
		prevOuts[i] = in.PrevOut
	}

	if err := e.undoData(batch, height, t, inputsFilled, prevOuts); err != nil {
		return fmt.Errorf("undo data: %w", err)
	}

	for i := len(t.Outputs) - 1; i >= 0; i-- {
		op := types.RegularOutPoint(txHash, uint32(i))
		if err := e.utxos.Unproduce(batch, height, op); err != nil {
			return fmt.Errorf("unproduce output %d: %w", i, err)
		}
	}

	for i := len(t.Inputs) - 1; i >= 0; i-- {
		if err := e.utxos.Unconsume(batch, height, t.Inputs[i].PrevOut); err != nil {
			return fmt.Errorf("unconsume input %d: %w", i, err)
		}
	}
	return nil
}

// undoData reverses applyData's table mutation for a single transaction.
func (e *Engine) undoData(batch storage.Batch, height uint64, t *tx.Transaction, inputs []types.FilledOutput, prevOuts []types.OutPoint) error {
	data := t.Data
	switch data.Kind {
	case tx.DataBitAssetRegistration:
		controlOut := findOutput(t.Outputs, types.OutputBitAssetControl)
		if controlOut == nil {
			return fmt.Errorf("registration carries no control-coin output")
		}
		return e.registry.Unregister(batch, height, controlOut.BitAssetID)

	case tx.DataAmmMint, tx.DataAmmBurn, tx.DataAmmSwap:
		pair := bitasset.CanonicalPair(data.Pair)
		return e.pools.Unput(batch, height, pair)

	case tx.DataDutchAuctionCreate:
		out := findOutput(t.Outputs, types.OutputAuction)
		if out == nil {
			return fmt.Errorf("auction create carries no auction output")
		}
		return e.auctions.Undo(batch, height, out.AuctionID)

	case tx.DataDutchAuctionBid, tx.DataDutchAuctionCollect:
		return e.auctions.Undo(batch, height, data.AuctionID)

	case tx.DataSwapCreate:
		sender := types.Address{}
		if len(inputs) > 0 {
			sender = inputs[0].Address
		}
		id := swap.ComputeSwapID(data.SwapDirection, data.L1TxID, data.L2Recipient, data.L1RecipientAddr, data.L1Amount, sender)
		return e.swaps.Unput(batch, height, id)

	case tx.DataSwapClaim:
		return e.swapMgr.UndoClaim(batch, height, data.SwapID)
	}
	return nil
}
