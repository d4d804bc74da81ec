package validator

import (
	"testing"

	"github.com/coinshift-network/coinshift-core/internal/bitasset"
	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/internal/swap"
	"github.com/coinshift-network/coinshift-core/internal/utxo"
	"github.com/coinshift-network/coinshift-core/pkg/crypto"
	"github.com/coinshift-network/coinshift-core/pkg/tx"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

func newFixture(t *testing.T) (*Validator, *utxo.Store, *swap.Store, *storage.MemoryDB, *crypto.PrivateKey) {
	t.Helper()
	db := storage.NewMemory()
	utxoStore := utxo.NewStore(db)
	registry := bitasset.NewRegistry(db)
	swapStore := swap.NewStore(db)
	v := New(utxoStore, registry, swapStore)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return v, utxoStore, swapStore, db, key
}

func signedSpend(t *testing.T, key *crypto.PrivateKey, op types.OutPoint, addr types.Address, outValue uint64) *tx.Transaction {
	t.Helper()
	transaction := &tx.Transaction{
		Inputs:  []tx.Input{{PrevOut: op, PubKey: key.PublicKey()}},
		Outputs: []types.FilledOutput{{Address: addr, Value: outValue}},
	}
	sigHash := transaction.Hash()
	sig, err := key.Sign(sigHash[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	transaction.Inputs[0].Signature = sig
	return transaction
}

func TestValidator_RejectsMissingUtxo(t *testing.T) {
	v, _, _, _, key := newFixture(t)
	transaction := &tx.Transaction{
		Inputs: []tx.Input{{
			PrevOut: types.RegularOutPoint(types.Hash{1}, 0),
			PubKey:  key.PublicKey(),
		}},
	}
	if _, err := v.Validate(transaction); err == nil {
		t.Fatal("expected NoUtxo failure for unknown input")
	}
}

func TestValidator_AcceptsSignedSpend(t *testing.T) {
	v, utxoStore, _, db, key := newFixture(t)
	addr := crypto.AddressFromPubKey(key.PublicKey())
	op := types.RegularOutPoint(types.Hash{2}, 0)
	batch := db.NewBatch()
	if err := utxoStore.Produce(batch, 1, op, types.FilledOutput{Address: addr, Value: 1000}); err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	fee, err := v.Validate(signedSpend(t, key, op, addr, 900))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if fee != 100 {
		t.Fatalf("fee = %d, want 100", fee)
	}
}

func TestValidator_RejectsWrongSignature(t *testing.T) {
	v, utxoStore, _, db, key := newFixture(t)
	addr := crypto.AddressFromPubKey(key.PublicKey())
	op := types.RegularOutPoint(types.Hash{3}, 0)
	batch := db.NewBatch()
	if err := utxoStore.Produce(batch, 1, op, types.FilledOutput{Address: addr, Value: 1000}); err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	transaction := signedSpend(t, key, op, addr, 900)
	sigHash := transaction.Hash()
	wrongSig, err := other.Sign(sigHash[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	transaction.Inputs[0].Signature = wrongSig

	if _, err := v.Validate(transaction); err == nil {
		t.Fatal("expected authorization failure for mismatched signature")
	}
}

func TestValidator_RejectsInsufficientInputValue(t *testing.T) {
	v, utxoStore, _, db, key := newFixture(t)
	addr := crypto.AddressFromPubKey(key.PublicKey())
	op := types.RegularOutPoint(types.Hash{4}, 0)
	batch := db.NewBatch()
	if err := utxoStore.Produce(batch, 1, op, types.FilledOutput{Address: addr, Value: 100}); err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := v.Validate(signedSpend(t, key, op, addr, 900)); err == nil {
		t.Fatal("expected NotEnoughValueIn failure")
	}
}

func TestValidator_RejectsLockedInputOnNonClaim(t *testing.T) {
	v, utxoStore, swapStore, db, key := newFixture(t)
	addr := crypto.AddressFromPubKey(key.PublicKey())
	op := types.RegularOutPoint(types.Hash{5}, 0)
	batch := db.NewBatch()
	if err := utxoStore.Produce(batch, 1, op, types.FilledOutput{Address: addr, Value: 1000}); err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	lockedSwap := &swap.Swap{
		ID:            types.SwapID{0xAB},
		Direction:     tx.SwapL2ToL1,
		State:         swap.SwapState{Kind: swap.StatePending},
		L2Recipient:   addr,
		LockedOutputs: []types.OutPoint{op},
	}
	batch = db.NewBatch()
	if err := swapStore.Put(batch, 0, nil, lockedSwap); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := v.Validate(signedSpend(t, key, op, addr, 900)); err == nil {
		t.Fatal("expected the locked-outputs gate to reject a non-claim spend of a locked output")
	}
}
