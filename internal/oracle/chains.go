package oracle

import "github.com/coinshift-network/coinshift-core/pkg/tx"

// Chain is the closed set of parent chains the oracle talks to, the same
// tag space a SwapCreate transaction's Data.ParentChain carries.
type Chain = tx.ParentChainType

const (
	BTC  = tx.ChainBTC
	BCH  = tx.ChainBCH
	LTC  = tx.ChainLTC
	XMR  = tx.ChainXMR
	ETH  = tx.ChainETH
	Tron = tx.ChainTron
)

// blockTimeSeconds is each chain's approximate block interval.
var blockTimeSeconds = map[Chain]uint32{
	BTC:  600,
	BCH:  600,
	LTC:  150,
	XMR:  120,
	ETH:  12,
	Tron: 3,
}

// targetConfirmationSeconds is the confirmation-time floor every chain's
// default confirmation count is derived to meet: roughly 45 minutes.
const targetConfirmationSeconds = 2700

// DefaultConfirmations returns ceil(2700 / block_time_seconds) for chain,
// the number of confirmations needed to cover ~45 minutes of parent-chain
// time.
func DefaultConfirmations(chain Chain) uint32 {
	blockTime := blockTimeSeconds[chain]
	if blockTime == 0 {
		return 0
	}
	return (targetConfirmationSeconds + blockTime - 1) / blockTime
}
