// Package utxo implements the UTXO/STXO index: two keyed-by-OutPoint
// tables recording which outputs are currently spendable and which have
// been spent, with every mutation invertible through the rollback log.
package utxo

import (
	"errors"

	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

var (
	// ErrNoUtxo is returned when consume is called on an OutPoint that is
	// not present in the UTXO table.
	ErrNoUtxo = errors.New("utxo: no such unspent output")
	// ErrNoStxo is returned when a spent-output lookup misses.
	ErrNoStxo = errors.New("utxo: no such spent output")
	// ErrAlreadyProduced is returned when produce is called on an OutPoint
	// already present in the UTXO or STXO table.
	ErrAlreadyProduced = errors.New("utxo: outpoint already produced")
)

// Set is the UTXO/STXO index contract: Consume moves an output from
// unspent to spent, Produce inserts a new unspent output, and both fail
// if the outpoint's slot isn't in the expected state. Every mutation is
// staged on the caller's storage.Batch alongside a rollback.Log entry, so
// Unproduce/Unconsume at the same height exactly reverse it.
type Set interface {
	Get(outpoint types.OutPoint) (*types.FilledOutput, error)
	Has(outpoint types.OutPoint) (bool, error)
	GetSpent(outpoint types.OutPoint) (*types.SpentOutput, error)

	Produce(batch storage.Batch, height uint64, outpoint types.OutPoint, output types.FilledOutput) error
	Consume(batch storage.Batch, height uint64, outpoint types.OutPoint, spentBy types.InPoint) (*types.FilledOutput, error)

	Unproduce(batch storage.Batch, height uint64, outpoint types.OutPoint) error
	Unconsume(batch storage.Batch, height uint64, outpoint types.OutPoint) error

	ForEach(fn func(types.OutPoint, *types.FilledOutput) error) error
	GetByAddress(addr types.Address) ([]UTXOEntry, error)
}

// UTXOEntry pairs an OutPoint with the output it references, returned by
// address-index scans.
type UTXOEntry struct {
	OutPoint types.OutPoint
	Output   types.FilledOutput
}
