package types

// OutputKind tags what a FilledOutput's value represents.
type OutputKind uint8

const (
	// OutputValue is a plain bitcoin-sats transfer.
	OutputValue OutputKind = iota
	// OutputBitAsset carries a balance of a registered BitAsset.
	OutputBitAsset
	// OutputBitAssetControl is the control coin conferring update rights
	// over a BitAsset.
	OutputBitAssetControl
	// OutputAmmLP is a liquidity-provider share in an AMM pool.
	OutputAmmLP
	// OutputReservation is a committed-but-unrevealed BitAsset name
	// reservation.
	OutputReservation
	// OutputAuction is a bid or proceeds output of a Dutch auction.
	OutputAuction
)

func (k OutputKind) String() string {
	switch k {
	case OutputValue:
		return "value"
	case OutputBitAsset:
		return "bitasset"
	case OutputBitAssetControl:
		return "bitasset_control"
	case OutputAmmLP:
		return "amm_lp"
	case OutputReservation:
		return "reservation"
	case OutputAuction:
		return "auction"
	default:
		return "unknown"
	}
}

// FilledOutput is the content of a UTXO: who owns it, what it's worth, and
// what kind of value it represents. Transaction.Outputs carry these
// pre-fill (address+value+kind only); the validator fills inputs by
// looking up the FilledOutput an OutPoint currently resolves to.
type FilledOutput struct {
	Address Address `json:"address"`

	// Value is denominated in bitcoin satoshis. Present regardless of Kind
	// (every output also carries a sats value, even a pure BitAsset one,
	// to fund the eventual spend's fee).
	Value uint64 `json:"value"`

	// BitAssetBalances holds non-zero balances this output carries by
	// BitAsset, used by AMM/auction outputs that hold more than one kind
	// of BitAsset simultaneously (e.g. an AMM LP position).
	BitAssetBalances map[BitAssetID]uint64 `json:"bitasset_balances,omitempty"`

	Kind OutputKind `json:"kind"`

	// BitAssetID applies to Kind == OutputBitAsset | OutputBitAssetControl.
	BitAssetID BitAssetID `json:"bitasset_id,omitempty"`

	// AmmPair applies to Kind == OutputAmmLP.
	AmmPair [2]BitAssetID `json:"amm_pair,omitempty"`

	// Commitment applies to Kind == OutputReservation: the committed,
	// not-yet-revealed hash of the BitAsset name being reserved.
	Commitment Hash `json:"commitment,omitempty"`

	// AuctionID applies to Kind == OutputAuction.
	AuctionID Hash `json:"auction_id,omitempty"`
}

// IsBitAssetKind reports whether this output holds a unique BitAsset
// (not a control coin, reservation, LP share, or auction slot) — used by
// the shape-rule tally in internal/bitasset.
func (f FilledOutput) IsBitAssetKind() bool {
	return f.Kind == OutputBitAsset
}

// InPointKind tags how an output was consumed.
type InPointKind uint8

const (
	// InPointRegular is consumption by an ordinary transaction input.
	InPointRegular InPointKind = iota
	// InPointWithdrawal is consumption by inclusion in a withdrawal bundle.
	InPointWithdrawal
)

// InPoint identifies the consumer of a spent output.
type InPoint struct {
	Kind InPointKind `json:"kind"`

	// Regular
	TxID Hash   `json:"txid,omitempty"`
	Vin  uint32 `json:"vin,omitempty"`

	// Withdrawal
	BundleID Hash `json:"bundle_id,omitempty"`
}

// RegularInPoint builds an InPoint for consumption by a transaction input.
func RegularInPoint(txid Hash, vin uint32) InPoint {
	return InPoint{Kind: InPointRegular, TxID: txid, Vin: vin}
}

// WithdrawalInPoint builds an InPoint for consumption by a withdrawal bundle.
func WithdrawalInPoint(bundleID Hash) InPoint {
	return InPoint{Kind: InPointWithdrawal, BundleID: bundleID}
}

// SpentOutput is a UTXO that has moved to the STXO table: the output as it
// was when spent, plus who spent it.
type SpentOutput struct {
	Output  FilledOutput `json:"output"`
	InPoint InPoint      `json:"inpoint"`
}
