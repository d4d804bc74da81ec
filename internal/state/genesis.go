package chain

import (
	"github.com/coinshift-network/coinshift-core/pkg/block"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

// genesisVersion is the header version written into the genesis block.
const genesisVersion = 1

// CreateGenesisBlock builds the height-0 block anchoring the chain.
// CoinShift has no native coinbase/supply model: the sidechain's only
// wealth is the set of deposit UTXOs pegged in from the parent chain, so
// genesis carries no transactions and no peg data, only an empty header
// with a zero PrevHash.
func CreateGenesisBlock(timestamp uint64) *block.Block {
	header := &block.Header{
		Version:    genesisVersion,
		PrevHash:   types.Hash{},
		MerkleRoot: block.ComputeMerkleRoot(nil),
		Timestamp:  timestamp,
		Height:     0,
	}
	return block.NewBlock(header, nil)
}
