package chain

import (
	"fmt"
	"math"

	"github.com/coinshift-network/coinshift-core/pkg/block"
	"github.com/coinshift-network/coinshift-core/pkg/tx"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

// PrevalidatedBlock is the read-only result of checking a candidate
// block's body against the current tip state. Connect takes this as
// proof the body already passed validation, so it never re-validates a
// transaction while holding the write batch.
//
// CoinbaseValue carries no native-minting meaning here: it is the total
// value of the deposit outputs this block's TwoWayPegData introduces,
// CoinShift's equivalent of new value entering circulation.
type PrevalidatedBlock struct {
	MerkleRoot    types.Hash
	TotalFees     uint64
	CoinbaseValue uint64
	NextHeight    uint64
}

// Prevalidate validates every transaction in body against the
// pre-connect state and checks header.MerkleRoot against the body's
// actual merkle root. It performs no writes and holds the engine lock
// only long enough to read the tip.
//
// Transactions are validated independently against the UTXO set as it
// stands before this block; a transaction may not spend an output
// produced earlier in the same block's body.
func (e *Engine) Prevalidate(header *block.Header, body []*tx.Transaction, pegData *block.TwoWayPegData) (*PrevalidatedBlock, error) {
	e.mu.Lock()
	tipHash, tipHeight := e.state.TipHash, e.state.Height
	e.mu.Unlock()

	if !(tipHeight == 0 && tipHash.IsZero()) || header.Height != 0 {
		if header.Height != tipHeight+1 {
			return nil, fmt.Errorf("chain: block height %d does not follow tip %d", header.Height, tipHeight)
		}
		if header.PrevHash != tipHash {
			return nil, fmt.Errorf("chain: block prev_hash %s does not match tip %s", header.PrevHash, tipHash)
		}
	}

	hashes := make([]types.Hash, len(body))
	var totalFees uint64
	for i, t := range body {
		fee, err := e.validator.Validate(t)
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}
		if totalFees > math.MaxUint64-fee {
			return nil, fmt.Errorf("tx %d: total fee overflow", i)
		}
		totalFees += fee
		hashes[i] = t.Hash()
	}

	merkleRoot := block.ComputeMerkleRoot(hashes)
	if merkleRoot != header.MerkleRoot {
		return nil, fmt.Errorf("chain: merkle root mismatch: header has %s, computed %s", header.MerkleRoot, merkleRoot)
	}

	var coinbaseValue uint64
	if pegData != nil {
		for _, d := range pegData.Deposits {
			if coinbaseValue > math.MaxUint64-d.Output.Value {
				return nil, fmt.Errorf("chain: deposit value overflow")
			}
			coinbaseValue += d.Output.Value
		}
	}

	return &PrevalidatedBlock{
		MerkleRoot:    merkleRoot,
		TotalFees:     totalFees,
		CoinbaseValue: coinbaseValue,
		NextHeight:    header.Height,
	}, nil
}
