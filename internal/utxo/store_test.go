package utxo

import (
	"errors"
	"testing"

	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

func testStore(t *testing.T) (*Store, storage.DB) {
	t.Helper()
	mem := storage.NewMemory()
	return NewStore(mem), mem
}

func commit(t *testing.T, db storage.DB, fn func(storage.Batch) error) {
	t.Helper()
	batcher, ok := db.(storage.Batcher)
	if !ok {
		t.Fatalf("db does not implement Batcher")
	}
	batch := batcher.NewBatch()
	if err := fn(batch); err != nil {
		t.Fatalf("batch build error: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("batch commit error: %v", err)
	}
}

func valueOutput(addr types.Address, value uint64) types.FilledOutput {
	return types.FilledOutput{Address: addr, Value: value, Kind: types.OutputValue}
}

func TestStore_ProduceThenGet(t *testing.T) {
	s, db := testStore(t)
	op := types.RegularOutPoint(types.Hash{0x01}, 0)
	out := valueOutput(types.Address{0x02}, 5000)

	commit(t, db, func(b storage.Batch) error {
		return s.Produce(b, 1, op, out)
	})

	got, err := s.Get(op)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Value != 5000 {
		t.Errorf("Get().Value = %d, want 5000", got.Value)
	}
}

func TestStore_ProduceTwiceFails(t *testing.T) {
	s, db := testStore(t)
	op := types.RegularOutPoint(types.Hash{0x01}, 0)
	out := valueOutput(types.Address{0x02}, 5000)

	commit(t, db, func(b storage.Batch) error {
		return s.Produce(b, 1, op, out)
	})

	batcher := db.(storage.Batcher)
	batch := batcher.NewBatch()
	err := s.Produce(batch, 2, op, out)
	if !errors.Is(err, ErrAlreadyProduced) {
		t.Errorf("Produce() second time error = %v, want ErrAlreadyProduced", err)
	}
}

func TestStore_ConsumeMovesToSTXO(t *testing.T) {
	s, db := testStore(t)
	op := types.RegularOutPoint(types.Hash{0x01}, 0)
	out := valueOutput(types.Address{0x02}, 5000)

	commit(t, db, func(b storage.Batch) error {
		return s.Produce(b, 1, op, out)
	})

	inPoint := types.RegularInPoint(types.Hash{0x03}, 0)
	commit(t, db, func(b storage.Batch) error {
		_, err := s.Consume(b, 2, op, inPoint)
		return err
	})

	if has, _ := s.Has(op); has {
		t.Error("outpoint should no longer be unspent after Consume")
	}
	spent, err := s.GetSpent(op)
	if err != nil {
		t.Fatalf("GetSpent() error: %v", err)
	}
	if spent.Output.Value != 5000 {
		t.Errorf("GetSpent().Output.Value = %d, want 5000", spent.Output.Value)
	}
	if spent.InPoint.TxID != inPoint.TxID {
		t.Error("GetSpent().InPoint.TxID mismatch")
	}
}

func TestStore_ConsumeWithoutUtxoFails(t *testing.T) {
	s, db := testStore(t)
	op := types.RegularOutPoint(types.Hash{0x01}, 0)
	batcher := db.(storage.Batcher)
	batch := batcher.NewBatch()
	_, err := s.Consume(batch, 1, op, types.InPoint{})
	if !errors.Is(err, ErrNoUtxo) {
		t.Errorf("Consume() on missing outpoint error = %v, want ErrNoUtxo", err)
	}
}

func TestStore_UnconsumeRestoresUTXO(t *testing.T) {
	s, db := testStore(t)
	op := types.RegularOutPoint(types.Hash{0x01}, 0)
	out := valueOutput(types.Address{0x02}, 5000)

	commit(t, db, func(b storage.Batch) error {
		return s.Produce(b, 1, op, out)
	})
	commit(t, db, func(b storage.Batch) error {
		_, err := s.Consume(b, 2, op, types.RegularInPoint(types.Hash{0x03}, 0))
		return err
	})
	commit(t, db, func(b storage.Batch) error {
		return s.Unconsume(b, 2, op)
	})

	got, err := s.Get(op)
	if err != nil {
		t.Fatalf("Get() after Unconsume error: %v", err)
	}
	if got.Value != 5000 {
		t.Errorf("restored Value = %d, want 5000", got.Value)
	}
	if has, _ := s.GetSpent(op); has != nil {
		t.Error("STXO record should be gone after Unconsume")
	}
}

func TestStore_UnproduceRemovesUTXO(t *testing.T) {
	s, db := testStore(t)
	op := types.RegularOutPoint(types.Hash{0x01}, 0)
	out := valueOutput(types.Address{0x02}, 5000)

	commit(t, db, func(b storage.Batch) error {
		return s.Produce(b, 1, op, out)
	})
	commit(t, db, func(b storage.Batch) error {
		return s.Unproduce(b, 1, op)
	})

	if has, _ := s.Has(op); has {
		t.Error("outpoint should not exist after Unproduce")
	}
}

func TestStore_GetByAddress(t *testing.T) {
	s, db := testStore(t)
	addr := types.Address{0x02}
	op1 := types.RegularOutPoint(types.Hash{0x01}, 0)
	op2 := types.RegularOutPoint(types.Hash{0x01}, 1)

	commit(t, db, func(b storage.Batch) error {
		if err := s.Produce(b, 1, op1, valueOutput(addr, 1000)); err != nil {
			return err
		}
		return s.Produce(b, 1, op2, valueOutput(addr, 2000))
	})

	entries, err := s.GetByAddress(addr)
	if err != nil {
		t.Fatalf("GetByAddress() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("GetByAddress() returned %d entries, want 2", len(entries))
	}
}

func TestStore_GetByAddress_SkipsSpent(t *testing.T) {
	s, db := testStore(t)
	addr := types.Address{0x02}
	op := types.RegularOutPoint(types.Hash{0x01}, 0)

	commit(t, db, func(b storage.Batch) error {
		return s.Produce(b, 1, op, valueOutput(addr, 1000))
	})
	commit(t, db, func(b storage.Batch) error {
		_, err := s.Consume(b, 2, op, types.RegularInPoint(types.Hash{0x03}, 0))
		return err
	})

	entries, err := s.GetByAddress(addr)
	if err != nil {
		t.Fatalf("GetByAddress() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("GetByAddress() returned %d entries, want 0 after spend", len(entries))
	}
}

func TestStore_ForEach(t *testing.T) {
	s, db := testStore(t)
	op1 := types.RegularOutPoint(types.Hash{0x01}, 0)
	op2 := types.DepositOutPoint(7)

	commit(t, db, func(b storage.Batch) error {
		if err := s.Produce(b, 1, op1, valueOutput(types.Address{0x02}, 1000)); err != nil {
			return err
		}
		return s.Produce(b, 1, op2, valueOutput(types.Address{0x03}, 2000))
	})

	seen := make(map[types.OutPointKind]int)
	err := s.ForEach(func(op types.OutPoint, out *types.FilledOutput) error {
		seen[op.Kind]++
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach() error: %v", err)
	}
	if seen[types.OutPointRegular] != 1 || seen[types.OutPointDeposit] != 1 {
		t.Errorf("ForEach() saw %v, want one Regular and one Deposit", seen)
	}
}

func TestStore_DistinguishesRegularAndWithdrawalSharingTxidVout(t *testing.T) {
	s, db := testStore(t)
	txid := types.Hash{0x09}
	regular := types.RegularOutPoint(txid, 0)
	withdrawal := types.WithdrawalOutPoint(txid, 0)

	commit(t, db, func(b storage.Batch) error {
		if err := s.Produce(b, 1, regular, valueOutput(types.Address{0x01}, 100)); err != nil {
			return err
		}
		return s.Produce(b, 1, withdrawal, valueOutput(types.Address{0x02}, 200))
	})

	got, err := s.Get(regular)
	if err != nil {
		t.Fatalf("Get(regular) error: %v", err)
	}
	if got.Value != 100 {
		t.Errorf("Get(regular).Value = %d, want 100", got.Value)
	}
	got2, err := s.Get(withdrawal)
	if err != nil {
		t.Fatalf("Get(withdrawal) error: %v", err)
	}
	if got2.Value != 200 {
		t.Errorf("Get(withdrawal).Value = %d, want 200", got2.Value)
	}
}
