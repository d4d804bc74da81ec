// Package tx defines CoinShift's transaction types: inputs referencing
// prior outputs by OutPoint, pre-fill outputs, and the application-layer
// Data payload variants.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/coinshift-network/coinshift-core/pkg/crypto"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

// Transaction is a blockchain transaction: ordered inputs, ordered
// pre-fill outputs, and an application-layer Data payload.
type Transaction struct {
	Version  uint32              `json:"version"`
	Inputs   []Input             `json:"inputs"`
	Outputs  []types.FilledOutput `json:"outputs"`
	LockTime uint64              `json:"locktime"`
	Data     Data                `json:"data"`
}

// Input references an output being spent by OutPoint, with its
// authorization (signature + public key).
type Input struct {
	PrevOut   types.OutPoint `json:"prevout"`
	Signature []byte         `json:"signature"`
	PubKey    []byte         `json:"pubkey"`
}

// inputJSON is the JSON representation of Input with hex-encoded byte fields.
type inputJSON struct {
	PrevOut   types.OutPoint `json:"prevout"`
	Signature *string        `json:"signature"`
	PubKey    *string        `json:"pubkey"`
}

// MarshalJSON encodes the input with hex-encoded signature and pubkey.
func (in Input) MarshalJSON() ([]byte, error) {
	j := inputJSON{PrevOut: in.PrevOut}
	if in.Signature != nil {
		s := hex.EncodeToString(in.Signature)
		j.Signature = &s
	}
	if in.PubKey != nil {
		p := hex.EncodeToString(in.PubKey)
		j.PubKey = &p
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes an input with hex-encoded signature and pubkey.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut = j.PrevOut
	if j.Signature != nil {
		b, err := hex.DecodeString(*j.Signature)
		if err != nil {
			return err
		}
		in.Signature = b
	}
	if j.PubKey != nil {
		b, err := hex.DecodeString(*j.PubKey)
		if err != nil {
			return err
		}
		in.PubKey = b
	}
	return nil
}

// Hash computes the transaction ID (BLAKE3 hash of the serialized signing
// data). This excludes signatures to avoid circular dependency.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// SigningBytes returns the canonical byte representation used for signing
// and hashing: version | inputs (prevout only) | outputs (address, value,
// kind, kind-specific fields) | locktime | data.
func (tx *Transaction) SigningBytes() []byte {
	var buf []byte

	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.PrevOut.Bytes()...)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = appendOutput(buf, out)
	}

	buf = binary.LittleEndian.AppendUint64(buf, tx.LockTime)
	buf = appendData(buf, tx.Data)

	return buf
}

func appendOutput(buf []byte, out types.FilledOutput) []byte {
	buf = append(buf, out.Address[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, out.Value)
	buf = append(buf, byte(out.Kind))
	switch out.Kind {
	case types.OutputBitAsset, types.OutputBitAssetControl:
		buf = append(buf, out.BitAssetID[:]...)
	case types.OutputAmmLP:
		buf = append(buf, out.AmmPair[0][:]...)
		buf = append(buf, out.AmmPair[1][:]...)
	case types.OutputReservation:
		buf = append(buf, out.Commitment[:]...)
	case types.OutputAuction:
		buf = append(buf, out.AuctionID[:]...)
	}
	return buf
}

func appendData(buf []byte, d Data) []byte {
	buf = append(buf, byte(d.Kind))
	switch d.Kind {
	case DataBitAssetReservation:
		buf = append(buf, d.Commitment[:]...)
	case DataBitAssetRegistration:
		buf = append(buf, d.NameHash[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, d.InitialSupply)
	case DataBitAssetUpdate:
		buf = append(buf, d.BitAssetID[:]...)
	case DataAmmMint, DataAmmBurn, DataAmmSwap, DataDutchAuctionCreate:
		buf = append(buf, d.Pair[0][:]...)
		buf = append(buf, d.Pair[1][:]...)
	case DataDutchAuctionBid, DataDutchAuctionCollect:
		buf = append(buf, d.AuctionID[:]...)
	case DataSwapCreate:
		buf = append(buf, byte(d.SwapDirection), byte(d.ParentChain))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(d.L1TxID)))
		buf = append(buf, d.L1TxID...)
		buf = append(buf, d.L2Recipient[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, d.L2Amount)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(d.L1RecipientAddr)))
		buf = append(buf, d.L1RecipientAddr...)
		buf = binary.LittleEndian.AppendUint64(buf, d.L1Amount)
		buf = binary.LittleEndian.AppendUint64(buf, d.ExpiresAtHeight)
	case DataSwapClaim:
		buf = append(buf, d.SwapID[:]...)
	}
	return buf
}

// TotalOutputValue returns the sum of all output sats values. Returns an
// error if the sum overflows uint64.
func (tx *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Value {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Value
	}
	return total, nil
}

// UniqueBitAssetsIn returns the set of distinct BitAssetIDs referenced by
// filled input outputs of kind OutputBitAsset. Used by the shape-rule
// tallies in internal/bitasset.
func UniqueBitAssetsIn(inputs []types.FilledOutput) map[types.BitAssetID]struct{} {
	set := make(map[types.BitAssetID]struct{})
	for _, in := range inputs {
		if in.Kind == types.OutputBitAsset {
			set[in.BitAssetID] = struct{}{}
		}
	}
	return set
}

// UniqueBitAssetsOut returns the set of distinct BitAssetIDs referenced by
// output outputs of kind OutputBitAsset.
func UniqueBitAssetsOut(outputs []types.FilledOutput) map[types.BitAssetID]struct{} {
	set := make(map[types.BitAssetID]struct{})
	for _, out := range outputs {
		if out.Kind == types.OutputBitAsset {
			set[out.BitAssetID] = struct{}{}
		}
	}
	return set
}
