package chain

import (
	"fmt"

	"github.com/coinshift-network/coinshift-core/internal/bitasset"
	"github.com/coinshift-network/coinshift-core/internal/oracle"
	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/internal/swap"
	"github.com/coinshift-network/coinshift-core/pkg/block"
	"github.com/coinshift-network/coinshift-core/pkg/tx"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

// Connect applies header and body atomically: every UTXO consumed and
// produced, every BitAsset/AMM/auction/swap side effect, and the block's
// two-way-peg events, in a single storage.Batch (the peg events'
// parent-chain block info, the block itself and the tip pointer are
// written through BlockStore, outside that batch). pre must be the result
// of Prevalidate run against the current tip; Connect trusts it rather
// than re-validating.
func (e *Engine) Connect(header *block.Header, body []*tx.Transaction, pegData *block.TwoWayPegData, pre *PrevalidatedBlock) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if header.Height != pre.NextHeight {
		return fmt.Errorf("chain: connect height %d does not match prevalidated height %d", header.Height, pre.NextHeight)
	}
	height := header.Height

	batch := e.db.NewBatch()

	for i, t := range body {
		if err := e.connectTx(batch, height, t); err != nil {
			return fmt.Errorf("connect tx %d: %w", i, err)
		}
	}

	if pegData != nil {
		if err := e.connectPeg(batch, height, pegData); err != nil {
			return fmt.Errorf("connect peg data: %w", err)
		}
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	// Block storage and the tip pointer are written outside the UTXO/
	// side-table batch (BlockStore keeps its own on-disk records); they
	// come last so a failure here never leaves the tip pointing at a
	// height whose side effects didn't commit.
	hash := header.Hash()
	blk := block.NewBlock(header, body)
	blk.PegData = pegData
	if err := e.blocks.PutBlock(blk); err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	if err := e.blocks.SetTip(hash, height); err != nil {
		return fmt.Errorf("set tip: %w", err)
	}

	e.state.TipHash = hash
	e.state.Height = height
	e.state.TipTimestamp = header.Timestamp
	if height == 0 {
		e.genesisHash = hash
	}
	e.notifyTip()
	return nil
}

// connectTx applies a single transaction's UTXO movement and
// application-layer side effects.
func (e *Engine) connectTx(batch storage.Batch, height uint64, t *tx.Transaction) error {
	txHash := t.Hash()

	inputsFilled := make([]types.FilledOutput, len(t.Inputs))
	prevOuts := make([]types.OutPoint, len(t.Inputs))
	for i, in := range t.Inputs {
		spentBy := types.RegularInPoint(txHash, uint32(i))
		out, err := e.utxos.Consume(batch, height, in.PrevOut, spentBy)
		if err != nil {
			return fmt.Errorf("consume input %d: %w", i, err)
		}
		inputsFilled[i] = *out
		prevOuts[i] = in.PrevOut
	}

	for i, out := range t.Outputs {
		op := types.RegularOutPoint(txHash, uint32(i))
		if err := e.utxos.Produce(batch, height, op, out); err != nil {
			return fmt.Errorf("produce output %d: %w", i, err)
		}
	}

	if err := e.applyData(batch, height, t, inputsFilled, prevOuts); err != nil {
		return fmt.Errorf("apply data: %w", err)
	}
	return nil
}

// applyData mutates the BitAsset registry, AMM pools, Dutch auctions, and
// swap state per the transaction's application-layer payload.
func (e *Engine) applyData(batch storage.Batch, height uint64, t *tx.Transaction, inputs []types.FilledOutput, prevOuts []types.OutPoint) error {
	data := t.Data
	switch data.Kind {
	case tx.DataBitAssetRegistration:
		controlOut := findOutput(t.Outputs, types.OutputBitAssetControl)
		if controlOut == nil {
			return fmt.Errorf("registration carries no control-coin output")
		}
		return e.registry.Register(batch, height, bitasset.Record{
			ID:              controlOut.BitAssetID,
			NameHash:        data.NameHash,
			InitialSupply:   data.InitialSupply,
			CreatedAtHeight: height,
		})

	case tx.DataAmmMint:
		pair := bitasset.CanonicalPair(data.Pair)
		pool, err := e.pools.Get(pair)
		if err != nil {
			return err
		}
		amountA := bitAssetNetIn(inputs, t.Outputs, pair[0])
		amountB := bitAssetNetIn(inputs, t.Outputs, pair[1])
		pool.ApplyMint(amountA, amountB)
		return e.pools.Put(batch, height, pool)

	case tx.DataAmmBurn:
		pair := bitasset.CanonicalPair(data.Pair)
		pool, err := e.pools.Get(pair)
		if err != nil {
			return err
		}
		shares := sumOutputKind(inputs, types.OutputAmmLP)
		pool.ApplyBurn(shares)
		return e.pools.Put(batch, height, pool)

	case tx.DataAmmSwap:
		pair := bitasset.CanonicalPair(data.Pair)
		pool, err := e.pools.Get(pair)
		if err != nil {
			return err
		}
		aIsIn := bitAssetNetIn(inputs, t.Outputs, pair[0]) > 0
		var amountIn uint64
		if aIsIn {
			amountIn = bitAssetNetIn(inputs, t.Outputs, pair[0])
		} else {
			amountIn = bitAssetNetIn(inputs, t.Outputs, pair[1])
		}
		pool.ApplySwap(amountIn, aIsIn)
		return e.pools.Put(batch, height, pool)

	case tx.DataDutchAuctionCreate:
		out := findOutput(t.Outputs, types.OutputAuction)
		if out == nil {
			return fmt.Errorf("auction create carries no auction output")
		}
		seller := inputs[0].Address
		amount := bitAssetTotal(inputs, data.Pair[0])
		return e.auctions.Create(batch, height, bitasset.Auction{
			ID:          out.AuctionID,
			Seller:      seller,
			BitAssetID:  data.Pair[0],
			Amount:      amount,
			StartPrice:  data.AuctionStartPrice,
			EndPrice:    data.AuctionEndPrice,
			StartHeight: height,
			Duration:    data.AuctionDuration,
		})

	case tx.DataDutchAuctionBid:
		auc, err := e.auctions.Get(data.AuctionID)
		if err != nil {
			return err
		}
		bought := bitAssetNetIn(t.Outputs, inputs, auc.BitAssetID)
		if bought > auc.Amount {
			bought = auc.Amount
		}
		auc.Amount -= bought
		return e.auctions.Update(batch, height, *auc)

	case tx.DataDutchAuctionCollect:
		auc, err := e.auctions.Get(data.AuctionID)
		if err != nil {
			return err
		}
		auc.Collected = true
		return e.auctions.Update(batch, height, *auc)

	case tx.DataSwapCreate:
		sender := types.Address{}
		if len(inputs) > 0 {
			sender = inputs[0].Address
		}
		var expires *uint64
		if data.ExpiresAtHeight != 0 {
			h := data.ExpiresAtHeight
			expires = &h
		}
		collateral := []types.OutPoint(nil)
		if data.SwapDirection == tx.SwapL2ToL1 {
			for i := range t.Outputs {
				collateral = append(collateral, types.RegularOutPoint(t.Hash(), uint32(i)))
			}
		}
		reqConf := oracle.DefaultConfirmations(data.ParentChain)
		_, err := e.swapMgr.Create(batch, swap.CreateParams{
			Direction:             data.SwapDirection,
			ParentChain:           data.ParentChain,
			L1TxID:                data.L1TxID,
			RequiredConfirmations: reqConf,
			L2Recipient:           data.L2Recipient,
			L2Sender:              sender,
			L2Amount:              data.L2Amount,
			L1RecipientAddress:    data.L1RecipientAddr,
			L1Amount:              data.L1Amount,
			CreatedAtHeight:       height,
			ExpiresAtHeight:       expires,
			CollateralOutputs:     collateral,
		})
		return err

	case tx.DataSwapClaim:
		_, err := e.swapMgr.Claim(batch, height, data.SwapID, prevOuts, t.Outputs)
		return err
	}
	return nil
}

func findOutput(outputs []types.FilledOutput, kind types.OutputKind) *types.FilledOutput {
	for i := range outputs {
		if outputs[i].Kind == kind {
			return &outputs[i]
		}
	}
	return nil
}

func sumOutputKind(outputs []types.FilledOutput, kind types.OutputKind) uint64 {
	var total uint64
	for _, o := range outputs {
		if o.Kind == kind {
			total += o.Value
		}
	}
	return total
}

func bitAssetTotal(outputs []types.FilledOutput, id types.BitAssetID) uint64 {
	var total uint64
	for _, o := range outputs {
		total += o.BitAssetBalances[id]
	}
	return total
}

// bitAssetNetIn is the net quantity of id that moved from "from" into the
// transaction without being returned as change in "to": the portion of
// from's holdings of id that is not mirrored back by a same-ID, non-pool
// output in to. AMM/auction transactions use this to infer the amount a
// transaction deposits into (or withdraws from) an application-layer
// table, since the transaction's Data carries no explicit amount field.
func bitAssetNetIn(from, to []types.FilledOutput, id types.BitAssetID) uint64 {
	in := bitAssetTotal(from, id)
	var change uint64
	for _, o := range to {
		if o.Kind == types.OutputAmmLP || o.Kind == types.OutputAuction {
			continue
		}
		change += o.BitAssetBalances[id]
	}
	if change >= in {
		return 0
	}
	return in - change
}
