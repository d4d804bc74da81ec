package chain

import "github.com/coinshift-network/coinshift-core/pkg/types"

// State holds the current chain tip position. Block ordering itself is
// assumed externally provided (see Header's doc in pkg/block); this
// struct only tracks where the engine's own connect/disconnect cursor sits.
type State struct {
	Height       uint64
	TipHash      types.Hash
	TipTimestamp uint64
}

// IsGenesis returns true if no blocks have been connected yet.
func (s *State) IsGenesis() bool {
	return s.Height == 0 && s.TipHash.IsZero()
}
