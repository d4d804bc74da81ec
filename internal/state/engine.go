// Package chain implements the block engine: prevalidation, atomic
// connect/disconnect of blocks against the UTXO/STXO index and the
// BitAsset/AMM/auction/swap/withdrawal side-tables, and reorg handling.
package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/coinshift-network/coinshift-core/internal/bitasset"
	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/internal/swap"
	"github.com/coinshift-network/coinshift-core/internal/utxo"
	"github.com/coinshift-network/coinshift-core/internal/validator"
	"github.com/coinshift-network/coinshift-core/internal/withdrawal"
	"github.com/coinshift-network/coinshift-core/pkg/block"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

// DB is the storage handle the engine requires: a keyed store that can
// also produce atomic write batches. *storage.BadgerDB and
// *storage.MemoryDB both satisfy it.
type DB interface {
	storage.DB
	storage.Batcher
}

// Engine wires every table a block touches — the UTXO/STXO index, the
// BitAsset registry/pool/auction tables, the swap store, the withdrawal
// bundle store, and the block/tx index — behind prevalidate/connect/
// disconnect. A single sync.Mutex serializes writer-side mutation of the
// shared State handle; the oracle driver and any RPC/wallet readers take
// the same lock only for the instant they touch State or stage a batch.
type Engine struct {
	mu sync.Mutex

	db          DB
	blocks      *BlockStore
	state       *State
	utxos       *utxo.Store
	registry    *bitasset.Registry
	pools       *bitasset.Pools
	auctions    *bitasset.Auctions
	swaps       *swap.Store
	swapMgr     *swap.Manager
	withdrawals *withdrawal.Store
	validator   *validator.Validator

	genesisHash types.Hash

	// tipCh fans out tip changes with non-blocking, coalescing sends: a
	// send that would block (channel already has a pending notification)
	// is simply dropped, since the only information carried is "the tip
	// changed, go re-read it".
	tipCh chan struct{}
}

// New wires an Engine over db, recovering chain state and detecting an
// interrupted reorg (disconnecting back to the checkpointed fork height
// if a checkpoint marker is found) on construction.
func New(db DB, oracle swap.Oracle) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}

	blocks := NewBlockStore(db)
	utxos := utxo.NewStore(db)
	registry := bitasset.NewRegistry(db)
	pools := bitasset.NewPools(db)
	auctions := bitasset.NewAuctions(db)
	swaps := swap.NewStore(db)
	withdrawals := withdrawal.NewStore(db)
	v := validator.New(utxos, registry, swaps)

	tipHash, height, err := blocks.GetTip()
	if err != nil {
		return nil, fmt.Errorf("recover tip: %w", err)
	}

	var genesisHash types.Hash
	if genBlk, err := blocks.GetBlockByHeight(0); err == nil {
		genesisHash = genBlk.Header.Hash()
	}

	e := &Engine{
		db:          db,
		blocks:      blocks,
		state:       &State{TipHash: tipHash, Height: height},
		utxos:       utxos,
		registry:    registry,
		pools:       pools,
		auctions:    auctions,
		swaps:       swaps,
		swapMgr:     swap.NewManager(swaps, oracle),
		withdrawals: withdrawals,
		validator:   v,
		genesisHash: genesisHash,
		tipCh:       make(chan struct{}, 1),
	}

	if forkHeight, found := blocks.GetReorgCheckpoint(); found {
		if err := e.recoverInterruptedReorg(forkHeight); err != nil {
			return nil, fmt.Errorf("recover from interrupted reorg: %w", err)
		}
	}

	return e, nil
}

// InitGenesis writes the genesis block if the engine has no blocks yet.
// It is a no-op (returning the existing genesis) if one is already
// present.
func (e *Engine) InitGenesis(timestamp uint64) (*block.Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.IsGenesis() {
		blk, err := e.blocks.GetBlockByHeight(0)
		if err != nil {
			return nil, fmt.Errorf("chain already initialized but genesis missing: %w", err)
		}
		return blk, nil
	}

	blk := CreateGenesisBlock(timestamp)
	if err := e.blocks.PutBlock(blk); err != nil {
		return nil, fmt.Errorf("store genesis: %w", err)
	}
	hash := blk.Header.Hash()
	if err := e.blocks.SetTip(hash, 0); err != nil {
		return nil, fmt.Errorf("set genesis tip: %w", err)
	}
	e.state.TipHash = hash
	e.state.Height = 0
	e.state.TipTimestamp = timestamp
	e.genesisHash = hash
	return blk, nil
}

// State returns a copy of the current chain state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.state
}

// Height returns the current chain height.
func (e *Engine) Height() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Height
}

// TipHash returns the current chain tip's header hash.
func (e *Engine) TipHash() types.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.TipHash
}

// GetBlock retrieves a block by header hash.
func (e *Engine) GetBlock(hash types.Hash) (*block.Block, error) {
	return e.blocks.GetBlock(hash)
}

// GetBlockByHeight retrieves a block by height.
func (e *Engine) GetBlockByHeight(height uint64) (*block.Block, error) {
	return e.blocks.GetBlockByHeight(height)
}

// UTXOs exposes the UTXO/STXO index for read access by RPC/wallet callers.
func (e *Engine) UTXOs() *utxo.Store { return e.utxos }

// BitAssets exposes the BitAsset registry for read access.
func (e *Engine) BitAssets() *bitasset.Registry { return e.registry }

// Pools exposes the AMM pool table for read access.
func (e *Engine) Pools() *bitasset.Pools { return e.pools }

// Auctions exposes the Dutch auction table for read access.
func (e *Engine) Auctions() *bitasset.Auctions { return e.auctions }

// Swaps exposes the swap manager, used by the oracle-polling driver and
// by RPC handlers serving swap status queries.
func (e *Engine) Swaps() *swap.Manager { return e.swapMgr }

// Withdrawals exposes the withdrawal bundle store for read access.
func (e *Engine) Withdrawals() *withdrawal.Store { return e.withdrawals }

// WatchTip returns a channel that receives a notification (coalesced,
// at-least-once) whenever the tip changes. Callers should re-read State
// after each receive rather than relying on the notification's content.
func (e *Engine) WatchTip() <-chan struct{} { return e.tipCh }

func (e *Engine) notifyTip() {
	select {
	case e.tipCh <- struct{}{}:
	default:
	}
}

// GCSwaps prunes terminal swaps older than swap.GCGracePeriod at the
// current tip height and commits the result. Storage hygiene only; safe
// to call on any cadence.
func (e *Engine) GCSwaps() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch := e.db.NewBatch()
	n, err := e.swapMgr.GC(batch, e.state.Height)
	if err != nil {
		return 0, err
	}
	if err := batch.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// AdvanceSwap runs one oracle-polling step for id and commits any
// resulting state change. Nothing in this repository calls it on a
// schedule (cmd/coinshiftd starts no oracle-polling goroutine);
// serialization per SwapId is the caller's responsibility (the engine-wide mutex here only protects the shared
// State/db handle, not swap-level ordering).
func (e *Engine) AdvanceSwap(ctx context.Context, id types.SwapID, currentHeight uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch := e.db.NewBatch()
	if _, err := e.swapMgr.Advance(ctx, batch, id, currentHeight); err != nil {
		return err
	}
	return batch.Commit()
}
