package types

import (
	"encoding/json"
	"fmt"
)

// OutPointKind tags which of the four ways an output can be referenced.
type OutPointKind uint8

const (
	// OutPointRegular references an output of an ordinary transaction.
	OutPointRegular OutPointKind = iota
	// OutPointCoinbase references an output of a block's coinbase.
	OutPointCoinbase
	// OutPointDeposit references a deposit observed on the parent chain,
	// identified by its strictly increasing deposit sequence number.
	OutPointDeposit
	// OutPointWithdrawal references a change output created by a
	// withdrawal bundle.
	OutPointWithdrawal
)

func (k OutPointKind) String() string {
	switch k {
	case OutPointRegular:
		return "regular"
	case OutPointCoinbase:
		return "coinbase"
	case OutPointDeposit:
		return "deposit"
	case OutPointWithdrawal:
		return "withdrawal"
	default:
		return "unknown"
	}
}

// OutPoint is a tagged reference to a single transaction output. Only the
// fields relevant to Kind are populated; all others are zero.
type OutPoint struct {
	Kind OutPointKind `json:"kind"`

	// Regular, Withdrawal
	TxID Hash   `json:"txid,omitempty"`
	Vout uint32 `json:"vout,omitempty"`

	// Coinbase
	Block Hash `json:"block,omitempty"`

	// Deposit
	Sequence uint64 `json:"sequence,omitempty"`
}

// RegularOutPoint builds an OutPoint referencing a normal transaction output.
func RegularOutPoint(txid Hash, vout uint32) OutPoint {
	return OutPoint{Kind: OutPointRegular, TxID: txid, Vout: vout}
}

// CoinbaseOutPoint builds an OutPoint referencing a block's coinbase output.
func CoinbaseOutPoint(block Hash, vout uint32) OutPoint {
	return OutPoint{Kind: OutPointCoinbase, Block: block, Vout: vout}
}

// DepositOutPoint builds an OutPoint referencing a parent-chain deposit by
// its sidechain-assigned sequence number.
func DepositOutPoint(sequence uint64) OutPoint {
	return OutPoint{Kind: OutPointDeposit, Sequence: sequence}
}

// WithdrawalOutPoint builds an OutPoint referencing a withdrawal bundle's
// change output.
func WithdrawalOutPoint(bundleID Hash, vout uint32) OutPoint {
	return OutPoint{Kind: OutPointWithdrawal, TxID: bundleID, Vout: vout}
}

// IsZero returns true if the OutPoint equals OutPoint{} (a regular
// outpoint with a zero TxID and Vout 0).
func (o OutPoint) IsZero() bool {
	return o == OutPoint{}
}

// String renders the OutPoint in a form distinguishing each kind.
func (o OutPoint) String() string {
	switch o.Kind {
	case OutPointRegular:
		return fmt.Sprintf("regular:%s:%d", o.TxID, o.Vout)
	case OutPointCoinbase:
		return fmt.Sprintf("coinbase:%s:%d", o.Block, o.Vout)
	case OutPointDeposit:
		return fmt.Sprintf("deposit:%d", o.Sequence)
	case OutPointWithdrawal:
		return fmt.Sprintf("withdrawal:%s:%d", o.TxID, o.Vout)
	default:
		return "invalid-outpoint"
	}
}

// Bytes returns a canonical byte encoding used as a KV store key and as
// input to hashing (rollback log keys, swap-lock index keys). The encoding
// is stable across Go versions and struct layout changes.
func (o OutPoint) Bytes() []byte {
	buf := make([]byte, 0, 1+32+4+8)
	buf = append(buf, byte(o.Kind))
	switch o.Kind {
	case OutPointRegular:
		buf = append(buf, o.TxID[:]...)
		buf = appendUint32(buf, o.Vout)
	case OutPointCoinbase:
		buf = append(buf, o.Block[:]...)
		buf = appendUint32(buf, o.Vout)
	case OutPointDeposit:
		buf = appendUint64(buf, o.Sequence)
	case OutPointWithdrawal:
		buf = append(buf, o.TxID[:]...)
		buf = appendUint32(buf, o.Vout)
	}
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendUint64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

// outPointJSON mirrors OutPoint for marshaling the kind as a readable string.
type outPointJSON struct {
	Kind     string `json:"kind"`
	TxID     *Hash  `json:"txid,omitempty"`
	Vout     uint32 `json:"vout,omitempty"`
	Block    *Hash  `json:"block,omitempty"`
	Sequence uint64 `json:"sequence,omitempty"`
}

// MarshalJSON encodes the OutPoint with a human-readable kind tag.
func (o OutPoint) MarshalJSON() ([]byte, error) {
	out := outPointJSON{Kind: o.Kind.String(), Vout: o.Vout, Sequence: o.Sequence}
	switch o.Kind {
	case OutPointRegular, OutPointWithdrawal:
		out.TxID = &o.TxID
	case OutPointCoinbase:
		out.Block = &o.Block
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an OutPoint encoded by MarshalJSON.
func (o *OutPoint) UnmarshalJSON(data []byte) error {
	var in outPointJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var kind OutPointKind
	switch in.Kind {
	case "regular":
		kind = OutPointRegular
	case "coinbase":
		kind = OutPointCoinbase
	case "deposit":
		kind = OutPointDeposit
	case "withdrawal":
		kind = OutPointWithdrawal
	default:
		return fmt.Errorf("unknown outpoint kind %q", in.Kind)
	}
	out := OutPoint{Kind: kind, Vout: in.Vout, Sequence: in.Sequence}
	if in.TxID != nil {
		out.TxID = *in.TxID
	}
	if in.Block != nil {
		out.Block = *in.Block
	}
	*o = out
	return nil
}
