package tx

import "github.com/coinshift-network/coinshift-core/pkg/types"

// DataKind tags which application-layer operation a transaction carries.
type DataKind uint8

const (
	// DataNone is a plain value/BitAsset transfer with no side effects.
	DataNone DataKind = iota
	DataBitAssetReservation
	DataBitAssetRegistration
	DataBitAssetUpdate
	DataAmmMint
	DataAmmBurn
	DataAmmSwap
	DataDutchAuctionCreate
	DataDutchAuctionBid
	DataDutchAuctionCollect
	DataSwapCreate
	DataSwapClaim
)

func (k DataKind) String() string {
	switch k {
	case DataNone:
		return "none"
	case DataBitAssetReservation:
		return "bitasset_reservation"
	case DataBitAssetRegistration:
		return "bitasset_registration"
	case DataBitAssetUpdate:
		return "bitasset_update"
	case DataAmmMint:
		return "amm_mint"
	case DataAmmBurn:
		return "amm_burn"
	case DataAmmSwap:
		return "amm_swap"
	case DataDutchAuctionCreate:
		return "dutch_auction_create"
	case DataDutchAuctionBid:
		return "dutch_auction_bid"
	case DataDutchAuctionCollect:
		return "dutch_auction_collect"
	case DataSwapCreate:
		return "swap_create"
	case DataSwapClaim:
		return "swap_claim"
	default:
		return "unknown"
	}
}

// SwapDirection distinguishes which side of the peg a SwapCreate moves
// value from.
type SwapDirection uint8

const (
	SwapL1ToL2 SwapDirection = iota
	SwapL2ToL1
)

// ParentChainType is the closed set of parent chains a swap can reference.
type ParentChainType uint8

const (
	ChainBTC ParentChainType = iota
	ChainBCH
	ChainLTC
	ChainXMR
	ChainETH
	ChainTron
)

func (c ParentChainType) String() string {
	switch c {
	case ChainBTC:
		return "btc"
	case ChainBCH:
		return "bch"
	case ChainLTC:
		return "ltc"
	case ChainXMR:
		return "xmr"
	case ChainETH:
		return "eth"
	case ChainTron:
		return "tron"
	default:
		return "unknown"
	}
}

// Data is the per-transaction application payload. Only the fields
// relevant to Kind are populated.
type Data struct {
	Kind DataKind `json:"kind"`

	// BitAssetReservation
	Commitment types.Hash `json:"commitment,omitempty"`

	// BitAssetRegistration
	NameHash      types.Hash `json:"name_hash,omitempty"`
	InitialSupply uint64     `json:"initial_supply,omitempty"`

	// BitAssetUpdate
	BitAssetID types.BitAssetID `json:"bitasset_id,omitempty"`

	// AmmMint / AmmBurn / AmmSwap / DutchAuction* share the pair they
	// operate over; unused slots are the zero BitAssetID.
	Pair [2]types.BitAssetID `json:"pair,omitempty"`

	// DutchAuctionCreate
	AuctionStartPrice uint64 `json:"auction_start_price,omitempty"`
	AuctionEndPrice    uint64 `json:"auction_end_price,omitempty"`
	AuctionDuration    uint64 `json:"auction_duration,omitempty"`

	// DutchAuctionBid / DutchAuctionCollect
	AuctionID types.Hash `json:"auction_id,omitempty"`

	// SwapCreate
	SwapDirection   SwapDirection   `json:"swap_direction,omitempty"`
	ParentChain     ParentChainType `json:"parent_chain,omitempty"`
	L1TxID          []byte          `json:"l1_txid,omitempty"`
	L2Recipient     types.Address   `json:"l2_recipient,omitempty"`
	L2Amount        uint64          `json:"l2_amount,omitempty"`
	L1RecipientAddr string          `json:"l1_recipient_address,omitempty"`
	L1Amount        uint64          `json:"l1_amount,omitempty"`
	ExpiresAtHeight uint64          `json:"expires_at_height,omitempty"`

	// SwapClaim
	SwapID types.SwapID `json:"swap_id,omitempty"`
}
