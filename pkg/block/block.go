// Package block defines block types: header, transaction body, and the
// two-way-peg event data a block may carry.
package block

import (
	"github.com/coinshift-network/coinshift-core/pkg/tx"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

// Block is a header, its transactions, and any two-way-peg events the
// external peg protocol attached to this height.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
	PegData      *TwoWayPegData    `json:"peg_data,omitempty"`
}

// NewBlock creates a new block with the given header and transactions.
func NewBlock(header *Header, txs []*tx.Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// Deposit is a parent-chain deposit observed and sequenced for entry into
// the UTXO set as an OutPoint::Deposit.
type Deposit struct {
	Sequence uint64             `json:"sequence"`
	Output   types.FilledOutput `json:"output"`
}

// BundleStatus is the observed state of a withdrawal bundle, carried by
// TwoWayPegData rather than computed locally (the bundle's own lifecycle
// is driven by what the parent chain, and whatever external component
// builds and broadcasts M6 transactions, report back through this feed).
type BundleStatus uint8

const (
	// BundleSubmitted reports that a bundle aggregating Outputs was
	// broadcast to the parent chain as an M6 transaction. Bundle
	// selection itself — which pending withdrawal outputs to batch, fee
	// negotiation with the parent chain — happens outside this package;
	// this event is how that decision enters the engine's state.
	BundleSubmitted BundleStatus = iota
	BundleConfirmed
	BundleFailed
	// BundleUnknownConfirmed marks a bundle whose M6id is not recognized
	// locally but which the peg protocol reports as confirmed anyway —
	// see the Two-Way-Peg Application's UnknownConfirmed handling. Since
	// no local record exists to source its referenced UTXOs from, Outputs
	// carries them directly.
	BundleUnknownConfirmed
)

// BundleStatusUpdate reports a transition for a specific withdrawal bundle.
// Outputs carries the bundle's referenced OutPoints for BundleSubmitted and
// BundleUnknownConfirmed, the two statuses that introduce a bundle's output
// set for the first time rather than transitioning an already-known record;
// it is ignored for BundleConfirmed/BundleFailed, which resolve a bundle
// the engine already has on file.
type BundleStatusUpdate struct {
	BundleID types.Hash       `json:"bundle_id"`
	Status   BundleStatus     `json:"status"`
	Outputs  []types.OutPoint `json:"outputs,omitempty"`
}

// BlockInfo records which parent-chain block height/hash a set of deposits
// or bundle-status updates were observed in, for the deposit_blocks /
// withdrawal_bundle_event_blocks tables.
type BlockInfo struct {
	Height uint64     `json:"height"`
	Hash   types.Hash `json:"hash"`
}

// TwoWayPegData is the externally supplied peg event payload for a block:
// new deposits, withdrawal-bundle status transitions observed on the
// parent chain, and the parent-chain block they were observed in.
type TwoWayPegData struct {
	Deposits       []Deposit            `json:"deposits,omitempty"`
	BundleStatuses []BundleStatusUpdate `json:"bundle_statuses,omitempty"`
	BlockInfo      BlockInfo            `json:"block_info"`
}
