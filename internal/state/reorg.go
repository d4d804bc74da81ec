package chain

import (
	"fmt"

	"github.com/coinshift-network/coinshift-core/pkg/block"
)

// Reorg switches the active chain from the current tip to newBranch: it
// disconnects the current branch down to the height newBranch forks
// from, then connects the new branch's blocks in ascending order. Which
// branch is canonical is decided externally (by whatever observed a
// longer/preferred chain) — Reorg does not compare cumulative work or
// any other weight metric itself, per the concurrency model's
// externally-provided block ordering.
//
// A reorg checkpoint is written before any disconnect and cleared only
// after the new branch is fully connected, so a crash mid-reorg is
// recoverable on restart (see recoverInterruptedReorg).
func (e *Engine) Reorg(newBranch []*block.Block) error {
	e.mu.Lock()
	forkHeight, oldBranch, err := e.planReorgLocked(newBranch)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if err := e.blocks.PutReorgCheckpoint(forkHeight); err != nil {
		return fmt.Errorf("write reorg checkpoint: %w", err)
	}

	for i := len(oldBranch) - 1; i >= 0; i-- {
		blk := oldBranch[i]
		if err := e.Disconnect(blk.Header, blk.Transactions, blk.PegData); err != nil {
			return fmt.Errorf("disconnect old branch block at height %d: %w", blk.Header.Height, err)
		}
	}

	for _, blk := range newBranch {
		if err := e.blocks.StoreBlock(blk); err != nil {
			return fmt.Errorf("store new branch block at height %d: %w", blk.Header.Height, err)
		}
		pre, err := e.Prevalidate(blk.Header, blk.Transactions, blk.PegData)
		if err != nil {
			return fmt.Errorf("prevalidate new branch block at height %d: %w", blk.Header.Height, err)
		}
		if err := e.Connect(blk.Header, blk.Transactions, blk.PegData, pre); err != nil {
			return fmt.Errorf("connect new branch block at height %d: %w", blk.Header.Height, err)
		}
	}

	return e.blocks.DeleteReorgCheckpoint()
}

// planReorgLocked determines the fork height and collects the active
// branch's blocks from the current tip down to (but not including) the
// fork point, in descending height order.
func (e *Engine) planReorgLocked(newBranch []*block.Block) (uint64, []*block.Block, error) {
	if len(newBranch) == 0 {
		return 0, nil, fmt.Errorf("chain: empty new branch")
	}
	if newBranch[0].Header.Height == 0 {
		return 0, nil, fmt.Errorf("chain: new branch cannot replace genesis")
	}
	forkHeight := newBranch[0].Header.Height - 1
	if forkHeight >= e.state.Height {
		return 0, nil, fmt.Errorf("chain: new branch does not fork below current tip height %d", e.state.Height)
	}

	var oldBranch []*block.Block
	for h := e.state.Height; h > forkHeight; h-- {
		blk, err := e.blocks.GetBlockByHeight(h)
		if err != nil {
			return 0, nil, fmt.Errorf("load active branch block at height %d: %w", h, err)
		}
		oldBranch = append(oldBranch, blk)
	}

	ancestor, err := e.blocks.GetBlockByHeight(forkHeight)
	if err != nil {
		return 0, nil, fmt.Errorf("load fork-point block at height %d: %w", forkHeight, err)
	}
	if ancestor.Header.Hash() != newBranch[0].Header.PrevHash {
		return 0, nil, fmt.Errorf("chain: new branch's parent hash does not match recorded block at height %d", forkHeight)
	}

	return forkHeight, oldBranch, nil
}

// recoverInterruptedReorg is run once at startup when a reorg checkpoint
// marker is found: it finishes disconnecting the active branch down to
// the checkpointed fork height, leaving the engine at a consistent,
// shorter chain. The new branch is not replayed automatically — whatever
// triggered the original reorg (a peer, an RPC caller) is expected to
// resubmit it once the engine is back up.
func (e *Engine) recoverInterruptedReorg(forkHeight uint64) error {
	for {
		tipHash, height, err := e.blocks.GetTip()
		if err != nil {
			return fmt.Errorf("recover tip: %w", err)
		}
		if height <= forkHeight {
			break
		}
		blk, err := e.blocks.GetBlock(tipHash)
		if err != nil {
			return fmt.Errorf("load block %s at height %d: %w", tipHash, height, err)
		}
		e.state.TipHash = tipHash
		e.state.Height = height
		if err := e.Disconnect(blk.Header, blk.Transactions, blk.PegData); err != nil {
			return fmt.Errorf("disconnect block at height %d: %w", height, err)
		}
	}
	return e.blocks.DeleteReorgCheckpoint()
}
