package bitasset

import (
	"encoding/json"
	"fmt"

	"github.com/coinshift-network/coinshift-core/internal/rollback"
	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

var (
	prefixAuction   = []byte("dutch_auctions/")
	rollbackAuction = []byte("rbitasset/a/")
)

func auctionKey(id types.Hash) []byte {
	return append(append([]byte(nil), prefixAuction...), id[:]...)
}

func rollbackAuctionKey(id types.Hash) []byte {
	return append(append([]byte(nil), rollbackAuction...), id[:]...)
}

// Auction is a Dutch auction's mutable record: a descending-price sale of
// Amount units of BitAssetID, starting at StartPrice at StartHeight and
// reaching EndPrice after Duration blocks.
type Auction struct {
	ID         types.Hash       `json:"id"`
	Seller     types.Address    `json:"seller"`
	BitAssetID types.BitAssetID `json:"bitasset_id"`
	Amount     uint64           `json:"amount"`
	StartPrice uint64           `json:"start_price"`
	EndPrice   uint64           `json:"end_price"`
	StartHeight uint64          `json:"start_height"`
	Duration   uint64           `json:"duration"`
	Collected  bool             `json:"collected"`
}

// PriceAt returns the descending-price curve's value at height, linearly
// interpolated between StartPrice (at StartHeight) and EndPrice (at
// StartHeight+Duration), clamped to EndPrice afterward.
func (a *Auction) PriceAt(height uint64) uint64 {
	if height <= a.StartHeight {
		return a.StartPrice
	}
	elapsed := height - a.StartHeight
	if elapsed >= a.Duration || a.Duration == 0 {
		return a.EndPrice
	}
	if a.StartPrice <= a.EndPrice {
		return a.EndPrice
	}
	drop := a.StartPrice - a.EndPrice
	return a.StartPrice - (drop*elapsed)/a.Duration
}

// Auctions persists the dutch_auctions table.
type Auctions struct {
	db  storage.DB
	log *rollback.Log
}

// NewAuctions creates an Auctions store over db.
func NewAuctions(db storage.DB) *Auctions {
	return &Auctions{db: db, log: rollback.NewLog(db)}
}

// Get retrieves an auction record by ID.
func (a *Auctions) Get(id types.Hash) (*Auction, error) {
	data, err := a.db.Get(auctionKey(id))
	if err != nil {
		return nil, fmt.Errorf("bitasset: auction not found: %s", id)
	}
	var rec Auction
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("bitasset: unmarshal auction %s: %w", id, err)
	}
	return &rec, nil
}

// Create persists a new auction record at height.
func (a *Auctions) Create(batch storage.Batch, height uint64, rec Auction) error {
	if err := a.log.Push(batch, rollbackAuctionKey(rec.ID), height, nil); err != nil {
		return fmt.Errorf("bitasset: push auction rollback: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("bitasset: marshal auction %s: %w", rec.ID, err)
	}
	return batch.Put(auctionKey(rec.ID), data)
}

// Update rewrites an existing auction record at height (e.g. marking it
// Collected), recording the prior value for rollback.
func (a *Auctions) Update(batch storage.Batch, height uint64, next Auction) error {
	prev, err := a.db.Get(auctionKey(next.ID))
	if err != nil {
		return fmt.Errorf("bitasset: auction not found: %s", next.ID)
	}
	if err := a.log.Push(batch, rollbackAuctionKey(next.ID), height, prev); err != nil {
		return fmt.Errorf("bitasset: push auction rollback: %w", err)
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("bitasset: marshal auction %s: %w", next.ID, err)
	}
	return batch.Put(auctionKey(next.ID), data)
}

// Undo reverses a Create or Update staged at height, used by disconnect.
func (a *Auctions) Undo(batch storage.Batch, height uint64, id types.Hash) error {
	prevData, ok, err := a.log.PopAt(batch, rollbackAuctionKey(id), height)
	if err != nil {
		return fmt.Errorf("bitasset: pop auction rollback: %w", err)
	}
	if !ok {
		return fmt.Errorf("bitasset: no auction mutation recorded for %s at height %d", id, height)
	}
	if prevData == nil {
		return batch.Delete(auctionKey(id))
	}
	return batch.Put(auctionKey(id), prevData)
}
