package oracle

import (
	"context"
	"fmt"
)

// Manager is the swap engine's view of the parent-chain oracle: one RPC
// client per configured chain, all sharing the same JSON-RPC 1.0 call
// contract regardless of which chain they talk to.
type Manager struct {
	cfg     Config
	clients map[Chain]*rpcClient
}

// NewManager builds a Manager from cfg, constructing one rpcClient per
// configured chain up front.
func NewManager(cfg Config) *Manager {
	m := &Manager{cfg: cfg, clients: make(map[Chain]*rpcClient, len(cfg.Chains))}
	for chain, node := range cfg.Chains {
		m.clients[chain] = newRPCClient(node.Endpoint, node.Auth, DefaultTimeout)
	}
	return m
}

// RequiredConfirmations returns the confirmation threshold configured (or
// defaulted) for chain.
func (m *Manager) RequiredConfirmations(chain Chain) uint32 {
	return m.cfg.RequiredConfirmations(chain)
}

type rawTransactionResult struct {
	Confirmations int64  `json:"confirmations"`
	BlockHash     string `json:"blockhash"`
}

type blockHeaderResult struct {
	Height uint64 `json:"height"`
}

// GetTransaction looks up txid on chain. A nil *TxInfo with a nil error
// means the transaction has not been seen yet — the oracle's "None"
// result — never an error on its own.
func (m *Manager) GetTransaction(ctx context.Context, chain Chain, txid string) (*TxInfo, error) {
	client, ok := m.clients[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChainNotConfigured, chain)
	}

	var raw rawTransactionResult
	if err := client.Call(ctx, "getrawtransaction", []interface{}{txid, true}, &raw); err != nil {
		return nil, err
	}
	if raw.BlockHash == "" && raw.Confirmations == 0 {
		return nil, nil
	}

	info := &TxInfo{Confirmations: raw.Confirmations, BlockHash: raw.BlockHash}
	if raw.BlockHash != "" {
		var header blockHeaderResult
		if err := client.Call(ctx, "getblockheader", []interface{}{raw.BlockHash}, &header); err == nil {
			info.BlockHeight = header.Height
		}
	}
	return info, nil
}

// GetBlockHeight returns chain's current tip height.
func (m *Manager) GetBlockHeight(ctx context.Context, chain Chain) (uint64, error) {
	client, ok := m.clients[chain]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrChainNotConfigured, chain)
	}
	var height uint64
	if err := client.Call(ctx, "getblockcount", nil, &height); err != nil {
		return 0, err
	}
	return height, nil
}
