package chain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/pkg/block"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

// Key prefixes and state keys for the block store.
var (
	prefixBlock  = []byte("b/") // b/<hash(32)> -> block JSON
	prefixHeight = []byte("h/") // h/<height(8)> -> hash(32)
	prefixTx     = []byte("x/") // x/<txhash(32)> -> height(8) + blockHash(32)

	keyTipHash         = []byte("s/tip")
	keyHeight          = []byte("s/height")
	keyReorgCheckpoint = []byte("s/reorg")
)

// BlockStore persists blocks and chain metadata to a storage.DB.
type BlockStore struct {
	db storage.DB
}

// NewBlockStore creates a block store backed by the given database.
func NewBlockStore(db storage.DB) *BlockStore {
	return &BlockStore{db: db}
}

// StoreBlock stores a block by its hash only, without updating height or
// tx indexes. Use this for blocks that are not (yet) on the active chain
// (e.g. a branch collected during reorg before it is replayed).
func (bs *BlockStore) StoreBlock(blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("block marshal: %w", err)
	}
	hash := blk.Header.Hash()
	return bs.db.Put(blockKey(hash), data)
}

// PutBlock stores a block and indexes it by hash, height, and tx hashes.
func (bs *BlockStore) PutBlock(blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("block marshal: %w", err)
	}

	hash := blk.Header.Hash()
	if err := bs.db.Put(blockKey(hash), data); err != nil {
		return fmt.Errorf("block put: %w", err)
	}
	if err := bs.db.Put(heightKey(blk.Header.Height), hash[:]); err != nil {
		return fmt.Errorf("height index put: %w", err)
	}

	for _, t := range blk.Transactions {
		txHash := t.Hash()
		val := make([]byte, 8+types.HashSize)
		binary.BigEndian.PutUint64(val[:8], blk.Header.Height)
		copy(val[8:], hash[:])
		if err := bs.db.Put(txKey(txHash), val); err != nil {
			return fmt.Errorf("tx index put %s: %w", txHash, err)
		}
	}
	return nil
}

// GetBlock retrieves a block by its header hash.
func (bs *BlockStore) GetBlock(hash types.Hash) (*block.Block, error) {
	data, err := bs.db.Get(blockKey(hash))
	if err != nil {
		return nil, fmt.Errorf("block get: %w", err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("block unmarshal: %w", err)
	}
	return &blk, nil
}

// GetBlockByHeight retrieves a block by its height.
func (bs *BlockStore) GetBlockByHeight(height uint64) (*block.Block, error) {
	hashBytes, err := bs.db.Get(heightKey(height))
	if err != nil {
		return nil, fmt.Errorf("height index get: %w", err)
	}
	if len(hashBytes) != types.HashSize {
		return nil, fmt.Errorf("corrupt height index: got %d bytes, want %d", len(hashBytes), types.HashSize)
	}
	var hash types.Hash
	copy(hash[:], hashBytes)
	return bs.GetBlock(hash)
}

// HasBlock checks if a block exists by hash.
func (bs *BlockStore) HasBlock(hash types.Hash) (bool, error) {
	return bs.db.Has(blockKey(hash))
}

// SetTip stores the current chain tip hash and height.
func (bs *BlockStore) SetTip(hash types.Hash, height uint64) error {
	if err := bs.db.Put(keyTipHash, hash[:]); err != nil {
		return fmt.Errorf("set tip hash: %w", err)
	}
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], height)
	return bs.db.Put(keyHeight, heightBuf[:])
}

// GetTip returns the current chain tip hash and height. Returns zero
// values if no tip is set (fresh chain).
func (bs *BlockStore) GetTip() (types.Hash, uint64, error) {
	hashBytes, err := bs.db.Get(keyTipHash)
	if err != nil {
		return types.Hash{}, 0, nil
	}
	if len(hashBytes) != types.HashSize {
		return types.Hash{}, 0, fmt.Errorf("corrupt tip hash: got %d bytes", len(hashBytes))
	}
	heightBytes, err := bs.db.Get(keyHeight)
	if err != nil {
		return types.Hash{}, 0, fmt.Errorf("tip height missing: %w", err)
	}
	if len(heightBytes) != 8 {
		return types.Hash{}, 0, fmt.Errorf("corrupt tip height: got %d bytes", len(heightBytes))
	}
	var hash types.Hash
	copy(hash[:], hashBytes)
	return hash, binary.BigEndian.Uint64(heightBytes), nil
}

// GetTxLocation returns the block height and hash that contain txHash.
func (bs *BlockStore) GetTxLocation(txHash types.Hash) (uint64, types.Hash, error) {
	data, err := bs.db.Get(txKey(txHash))
	if err != nil {
		return 0, types.Hash{}, fmt.Errorf("tx index get: %w", err)
	}
	if len(data) != 8+types.HashSize {
		return 0, types.Hash{}, fmt.Errorf("corrupt tx index: got %d bytes, want %d", len(data), 8+types.HashSize)
	}
	height := binary.BigEndian.Uint64(data[:8])
	var blockHash types.Hash
	copy(blockHash[:], data[8:])
	return height, blockHash, nil
}

// DeleteTxIndex removes the transaction index entry for txHash.
func (bs *BlockStore) DeleteTxIndex(txHash types.Hash) error {
	return bs.db.Delete(txKey(txHash))
}

func blockKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixBlock)+types.HashSize)
	copy(key, prefixBlock)
	copy(key[len(prefixBlock):], hash[:])
	return key
}

func heightKey(height uint64) []byte {
	key := make([]byte, len(prefixHeight)+8)
	copy(key, prefixHeight)
	binary.BigEndian.PutUint64(key[len(prefixHeight):], height)
	return key
}

func txKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixTx)+types.HashSize)
	copy(key, prefixTx)
	copy(key[len(prefixTx):], hash[:])
	return key
}

// Key prefixes for the two-way-peg event-block tables: which parent-chain
// block each height's deposits/bundle-status updates were observed in.
var (
	prefixDepositBlock    = []byte("peg/deposit_block/")
	prefixWithdrawalEvent = []byte("peg/withdrawal_event_block/")
)

// PutDepositBlockInfo records the parent-chain block a height's deposits
// were observed in.
func (bs *BlockStore) PutDepositBlockInfo(height uint64, info block.BlockInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal deposit block info: %w", err)
	}
	return bs.db.Put(depositBlockKey(height), data)
}

// GetDepositBlockInfo retrieves the parent-chain block info recorded for
// height's deposits, if any.
func (bs *BlockStore) GetDepositBlockInfo(height uint64) (*block.BlockInfo, error) {
	data, err := bs.db.Get(depositBlockKey(height))
	if err != nil {
		return nil, fmt.Errorf("deposit block info get: %w", err)
	}
	var info block.BlockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("unmarshal deposit block info: %w", err)
	}
	return &info, nil
}

// DeleteDepositBlockInfo removes the deposit block-info entry for height.
func (bs *BlockStore) DeleteDepositBlockInfo(height uint64) error {
	return bs.db.Delete(depositBlockKey(height))
}

// PutWithdrawalEventBlockInfo records the parent-chain block a height's
// withdrawal-bundle status updates were observed in.
func (bs *BlockStore) PutWithdrawalEventBlockInfo(height uint64, info block.BlockInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal withdrawal event block info: %w", err)
	}
	return bs.db.Put(withdrawalEventKey(height), data)
}

// GetWithdrawalEventBlockInfo retrieves the parent-chain block info
// recorded for height's withdrawal-bundle status updates, if any.
func (bs *BlockStore) GetWithdrawalEventBlockInfo(height uint64) (*block.BlockInfo, error) {
	data, err := bs.db.Get(withdrawalEventKey(height))
	if err != nil {
		return nil, fmt.Errorf("withdrawal event block info get: %w", err)
	}
	var info block.BlockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("unmarshal withdrawal event block info: %w", err)
	}
	return &info, nil
}

// DeleteWithdrawalEventBlockInfo removes the withdrawal event block-info
// entry for height.
func (bs *BlockStore) DeleteWithdrawalEventBlockInfo(height uint64) error {
	return bs.db.Delete(withdrawalEventKey(height))
}

func depositBlockKey(height uint64) []byte {
	key := make([]byte, len(prefixDepositBlock)+8)
	copy(key, prefixDepositBlock)
	binary.BigEndian.PutUint64(key[len(prefixDepositBlock):], height)
	return key
}

func withdrawalEventKey(height uint64) []byte {
	key := make([]byte, len(prefixWithdrawalEvent)+8)
	copy(key, prefixWithdrawalEvent)
	binary.BigEndian.PutUint64(key[len(prefixWithdrawalEvent):], height)
	return key
}

// PutReorgCheckpoint writes a marker recording that a reorg down to
// forkHeight is in progress. If the process crashes before
// DeleteReorgCheckpoint runs, the marker makes the engine disconnect the
// active branch back down to forkHeight on restart.
func (bs *BlockStore) PutReorgCheckpoint(forkHeight uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], forkHeight)
	return bs.db.Put(keyReorgCheckpoint, buf[:])
}

// GetReorgCheckpoint returns the fork height and true if a reorg
// checkpoint exists.
func (bs *BlockStore) GetReorgCheckpoint() (uint64, bool) {
	data, err := bs.db.Get(keyReorgCheckpoint)
	if err != nil || len(data) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(data), true
}

// DeleteReorgCheckpoint removes the reorg-in-progress marker.
func (bs *BlockStore) DeleteReorgCheckpoint() error {
	return bs.db.Delete(keyReorgCheckpoint)
}
