package bitasset

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/coinshift-network/coinshift-core/internal/rollback"
	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

var (
	prefixPool   = []byte("amm_pools/")
	rollbackPool = []byte("rbitasset/p/")
)

// CanonicalPair orders a pair so the same two BitAssetIDs always key the
// same pool regardless of the order a transaction names them in.
func CanonicalPair(pair [2]types.BitAssetID) [2]types.BitAssetID {
	if bytes.Compare(pair[0][:], pair[1][:]) > 0 {
		return [2]types.BitAssetID{pair[1], pair[0]}
	}
	return pair
}

func poolKey(pair [2]types.BitAssetID) []byte {
	p := CanonicalPair(pair)
	key := append(append([]byte(nil), prefixPool...), p[0][:]...)
	return append(key, p[1][:]...)
}

func rollbackPoolKey(pair [2]types.BitAssetID) []byte {
	p := CanonicalPair(pair)
	key := append(append([]byte(nil), rollbackPool...), p[0][:]...)
	return append(key, p[1][:]...)
}

// Pool is the cached reserve/LP-share state of a constant-product pair.
// It is a read-optimized mirror of the pair's pool UTXO(s); the pool UTXO
// itself (kind OutputAmmLP) remains the authoritative on-chain value the
// tx shape rules (§4.6) validate against.
type Pool struct {
	Pair         [2]types.BitAssetID `json:"pair"`
	ReserveA     uint64               `json:"reserve_a"`
	ReserveB     uint64               `json:"reserve_b"`
	TotalShares  uint64               `json:"total_shares"`
}

// Pools persists the amm_pools table.
type Pools struct {
	db  storage.DB
	log *rollback.Log
}

// NewPools creates a Pools store over db.
func NewPools(db storage.DB) *Pools {
	return &Pools{db: db, log: rollback.NewLog(db)}
}

// Get retrieves the pool for pair, or a zero-reserve Pool if none exists
// yet (a pool springs into existence on its first Mint).
func (p *Pools) Get(pair [2]types.BitAssetID) (*Pool, error) {
	data, err := p.db.Get(poolKey(pair))
	if err != nil {
		return &Pool{Pair: CanonicalPair(pair)}, nil
	}
	var pool Pool
	if err := json.Unmarshal(data, &pool); err != nil {
		return nil, fmt.Errorf("bitasset: unmarshal pool %x: %w", pair, err)
	}
	return &pool, nil
}

// Put writes next's reserves for its pair at height, recording the prior
// value (nil if the pool did not exist) for rollback.
func (p *Pools) Put(batch storage.Batch, height uint64, next *Pool) error {
	prevData, err := p.db.Get(poolKey(next.Pair))
	var prev []byte
	if err == nil {
		prev = prevData
	}
	if err := p.log.Push(batch, rollbackPoolKey(next.Pair), height, prev); err != nil {
		return fmt.Errorf("bitasset: push pool rollback: %w", err)
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("bitasset: marshal pool %x: %w", next.Pair, err)
	}
	return batch.Put(poolKey(next.Pair), data)
}

// Unput reverses a Put staged at height, used by disconnect.
func (p *Pools) Unput(batch storage.Batch, height uint64, pair [2]types.BitAssetID) error {
	prevData, ok, err := p.log.PopAt(batch, rollbackPoolKey(pair), height)
	if err != nil {
		return fmt.Errorf("bitasset: pop pool rollback: %w", err)
	}
	if !ok {
		return fmt.Errorf("bitasset: no pool mutation recorded for %x at height %d", pair, height)
	}
	if prevData == nil {
		return batch.Delete(poolKey(pair))
	}
	return batch.Put(poolKey(pair), prevData)
}

// ApplyMint adds amountA/amountB to the pool's reserves and mints LP
// shares proportionally (or 1:1 with the geometric mean on first mint).
func (p *Pool) ApplyMint(amountA, amountB uint64) (sharesMinted uint64) {
	if p.TotalShares == 0 {
		sharesMinted = isqrt(amountA * amountB)
	} else if p.ReserveA > 0 {
		sharesMinted = (amountA * p.TotalShares) / p.ReserveA
	}
	p.ReserveA += amountA
	p.ReserveB += amountB
	p.TotalShares += sharesMinted
	return sharesMinted
}

// ApplyBurn removes a proportional share of reserves for shares burned.
func (p *Pool) ApplyBurn(shares uint64) (amountA, amountB uint64) {
	if p.TotalShares == 0 {
		return 0, 0
	}
	amountA = (p.ReserveA * shares) / p.TotalShares
	amountB = (p.ReserveB * shares) / p.TotalShares
	p.ReserveA -= amountA
	p.ReserveB -= amountB
	p.TotalShares -= shares
	return amountA, amountB
}

// ApplySwap executes a constant-product swap of amountIn of the first
// asset in Pair for the second (or the reverse, when aIsIn is false),
// returning the output amount.
func (p *Pool) ApplySwap(amountIn uint64, aIsIn bool) (amountOut uint64) {
	if aIsIn {
		k := p.ReserveA * p.ReserveB
		newReserveA := p.ReserveA + amountIn
		newReserveB := k / newReserveA
		amountOut = p.ReserveB - newReserveB
		p.ReserveA = newReserveA
		p.ReserveB = newReserveB
	} else {
		k := p.ReserveA * p.ReserveB
		newReserveB := p.ReserveB + amountIn
		newReserveA := k / newReserveB
		amountOut = p.ReserveA - newReserveA
		p.ReserveB = newReserveB
		p.ReserveA = newReserveA
	}
	return amountOut
}

func isqrt(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
