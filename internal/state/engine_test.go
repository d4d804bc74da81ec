package chain

import (
	"context"
	"testing"

	"github.com/coinshift-network/coinshift-core/internal/oracle"
	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/internal/withdrawal"
	"github.com/coinshift-network/coinshift-core/pkg/block"
	"github.com/coinshift-network/coinshift-core/pkg/crypto"
	"github.com/coinshift-network/coinshift-core/pkg/tx"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

type noopOracle struct{}

func (noopOracle) GetTransaction(ctx context.Context, chain tx.ParentChainType, txid string) (*oracle.TxInfo, error) {
	return nil, nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db := storage.NewMemory()
	e, err := New(db, noopOracle{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.InitGenesis(1000); err != nil {
		t.Fatalf("InitGenesis: %v", err)
	}
	return e
}

// depositBlock builds and connects a block whose only effect is pegging
// in a single deposit output to key's address, returning the produced
// deposit outpoint.
func depositBlock(t *testing.T, e *Engine, key *crypto.PrivateKey, value uint64, sequence uint64) types.OutPoint {
	t.Helper()
	tip := e.TipHash()
	header := &block.Header{
		Version:   1,
		PrevHash:  tip,
		Height:    e.Height() + 1,
		Timestamp: 1001,
	}
	peg := &block.TwoWayPegData{
		Deposits: []block.Deposit{{
			Sequence: sequence,
			Output: types.FilledOutput{
				Address: crypto.AddressFromPubKey(key.PublicKey()),
				Value:   value,
				Kind:    types.OutputValue,
			},
		}},
	}
	header.MerkleRoot = block.ComputeMerkleRoot(nil)

	pre, err := e.Prevalidate(header, nil, peg)
	if err != nil {
		t.Fatalf("Prevalidate deposit block: %v", err)
	}
	if err := e.Connect(header, nil, peg, pre); err != nil {
		t.Fatalf("Connect deposit block: %v", err)
	}
	return types.DepositOutPoint(sequence)
}

// signedSpend builds a single-input, single-output transaction spending
// prevOut (worth inValue) to recipient, signed by key.
func signedSpend(key *crypto.PrivateKey, prevOut types.OutPoint, inValue, outValue uint64, recipient types.Address) *tx.Transaction {
	t := &tx.Transaction{
		Version: 1,
		Inputs: []tx.Input{{
			PrevOut: prevOut,
			PubKey:  key.PublicKey(),
		}},
		Outputs: []types.FilledOutput{{
			Address: recipient,
			Value:   outValue,
			Kind:    types.OutputValue,
		}},
	}
	sigHash := t.Hash()
	sig, err := key.Sign(sigHash[:])
	if err != nil {
		panic(err)
	}
	t.Inputs[0].Signature = sig
	return t
}

func TestEngine_ConnectDisconnectRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	depositKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	recipientKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	recipient := crypto.AddressFromPubKey(recipientKey.PublicKey())

	depositOut := depositBlock(t, e, depositKey, 1000, 1)
	heightAfterDeposit := e.Height()
	tipAfterDeposit := e.TipHash()

	spendTx := signedSpend(depositKey, depositOut, 1000, 900, recipient)

	header := &block.Header{
		Version:   1,
		PrevHash:  tipAfterDeposit,
		Height:    heightAfterDeposit + 1,
		Timestamp: 1002,
	}
	body := []*tx.Transaction{spendTx}
	header.MerkleRoot = block.ComputeMerkleRoot([]types.Hash{spendTx.Hash()})

	pre, err := e.Prevalidate(header, body, nil)
	if err != nil {
		t.Fatalf("Prevalidate spend block: %v", err)
	}
	if pre.TotalFees != 100 {
		t.Fatalf("fee = %d, want 100", pre.TotalFees)
	}

	if err := e.Connect(header, body, nil, pre); err != nil {
		t.Fatalf("Connect spend block: %v", err)
	}

	if has, err := e.UTXOs().Has(depositOut); err != nil || has {
		t.Fatalf("deposit output still unspent after connect: has=%v err=%v", has, err)
	}
	newOut := types.RegularOutPoint(spendTx.Hash(), 0)
	if has, err := e.UTXOs().Has(newOut); err != nil || !has {
		t.Fatalf("new output missing after connect: has=%v err=%v", has, err)
	}
	if e.TipHash() != header.Hash() {
		t.Fatalf("tip = %s, want %s", e.TipHash(), header.Hash())
	}

	// Disconnect must restore the pre-spend UTXO set and tip exactly.
	if err := e.Disconnect(header, body, nil); err != nil {
		t.Fatalf("Disconnect spend block: %v", err)
	}
	if e.TipHash() != tipAfterDeposit || e.Height() != heightAfterDeposit {
		t.Fatalf("tip/height after disconnect = %s/%d, want %s/%d", e.TipHash(), e.Height(), tipAfterDeposit, heightAfterDeposit)
	}
	if has, err := e.UTXOs().Has(depositOut); err != nil || !has {
		t.Fatalf("deposit output not restored after disconnect: has=%v err=%v", has, err)
	}
	if has, err := e.UTXOs().Has(newOut); err != nil || has {
		t.Fatalf("spend output still present after disconnect: has=%v err=%v", has, err)
	}
}

func TestEngine_PrevalidateRejectsWrongHeight(t *testing.T) {
	e := newTestEngine(t)
	header := &block.Header{
		Version:    1,
		PrevHash:   e.TipHash(),
		Height:     5,
		MerkleRoot: block.ComputeMerkleRoot(nil),
		Timestamp:  2000,
	}
	if _, err := e.Prevalidate(header, nil, nil); err == nil {
		t.Fatal("expected prevalidate to reject a block skipping ahead in height")
	}
}

func TestEngine_PrevalidateRejectsBadMerkleRoot(t *testing.T) {
	e := newTestEngine(t)
	header := &block.Header{
		Version:    1,
		PrevHash:   e.TipHash(),
		Height:     e.Height() + 1,
		MerkleRoot: types.Hash{0xFF},
		Timestamp:  2000,
	}
	if _, err := e.Prevalidate(header, nil, nil); err == nil {
		t.Fatal("expected prevalidate to reject a mismatched merkle root")
	}
}

// bundleID returns a distinct Hash for use as a withdrawal bundle's M6id.
func bundleID(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

// pegBlock builds and connects an empty-body block carrying only peg.
func pegBlock(t *testing.T, e *Engine, ts uint64, peg *block.TwoWayPegData) {
	t.Helper()
	header := &block.Header{
		Version:    1,
		PrevHash:   e.TipHash(),
		Height:     e.Height() + 1,
		MerkleRoot: block.ComputeMerkleRoot(nil),
		Timestamp:  ts,
	}
	pre, err := e.Prevalidate(header, nil, peg)
	if err != nil {
		t.Fatalf("Prevalidate peg block: %v", err)
	}
	if err := e.Connect(header, nil, peg, pre); err != nil {
		t.Fatalf("Connect peg block: %v", err)
	}
}

func TestEngine_WithdrawalBundleConfirmConsumesOutputs(t *testing.T) {
	e := newTestEngine(t)

	depositKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	depositOut := depositBlock(t, e, depositKey, 1000, 1)

	id := bundleID(7)
	outputs := []types.OutPoint{depositOut}

	pegBlock(t, e, 1100, &block.TwoWayPegData{
		BundleStatuses: []block.BundleStatusUpdate{
			{BundleID: id, Status: block.BundleSubmitted, Outputs: outputs},
		},
	})

	b, err := e.Withdrawals().Get(id)
	if err != nil {
		t.Fatalf("Get submitted bundle: %v", err)
	}
	if b.Status != withdrawal.StatusSubmitted {
		t.Fatalf("status = %s, want submitted", b.Status)
	}
	if has, err := e.UTXOs().Has(depositOut); err != nil || !has {
		t.Fatalf("submitted bundle's output should still be unspent: has=%v err=%v", has, err)
	}

	heightAfterSubmit := e.Height()
	tipAfterSubmit := e.TipHash()

	pegBlock(t, e, 1200, &block.TwoWayPegData{
		BundleStatuses: []block.BundleStatusUpdate{
			{BundleID: id, Status: block.BundleConfirmed},
		},
	})

	if has, err := e.UTXOs().Has(depositOut); err != nil || has {
		t.Fatalf("confirmed bundle's output still unspent: has=%v err=%v", has, err)
	}
	spent, err := e.UTXOs().GetSpent(depositOut)
	if err != nil {
		t.Fatalf("GetSpent: %v", err)
	}
	if spent.InPoint.Kind != types.InPointWithdrawal || spent.InPoint.BundleID != id {
		t.Fatalf("InPoint = %+v, want withdrawal inpoint for bundle %s", spent.InPoint, id)
	}

	// Disconnecting the confirmation must restore the output to UTXO and
	// put the bundle back in Submitted.
	confirmedHeader := &block.Header{
		Version:    1,
		PrevHash:   tipAfterSubmit,
		Height:     heightAfterSubmit + 1,
		MerkleRoot: block.ComputeMerkleRoot(nil),
		Timestamp:  1200,
	}
	confirmedPeg := &block.TwoWayPegData{
		BundleStatuses: []block.BundleStatusUpdate{
			{BundleID: id, Status: block.BundleConfirmed},
		},
	}
	if err := e.Disconnect(confirmedHeader, nil, confirmedPeg); err != nil {
		t.Fatalf("Disconnect confirmation: %v", err)
	}
	if has, err := e.UTXOs().Has(depositOut); err != nil || !has {
		t.Fatalf("output not restored after disconnecting confirmation: has=%v err=%v", has, err)
	}
	b, err = e.Withdrawals().Get(id)
	if err != nil {
		t.Fatalf("Get after undo: %v", err)
	}
	if b.Status != withdrawal.StatusSubmitted {
		t.Fatalf("status after undo = %s, want submitted", b.Status)
	}
}

func TestEngine_WithdrawalBundleUnknownConfirmedConsumesOutputs(t *testing.T) {
	e := newTestEngine(t)

	depositKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	depositOut := depositBlock(t, e, depositKey, 750, 1)

	id := bundleID(9)
	pegBlock(t, e, 1100, &block.TwoWayPegData{
		BundleStatuses: []block.BundleStatusUpdate{
			{BundleID: id, Status: block.BundleUnknownConfirmed, Outputs: []types.OutPoint{depositOut}},
		},
	})

	if has, err := e.UTXOs().Has(depositOut); err != nil || has {
		t.Fatalf("unknown-confirmed bundle's output still unspent: has=%v err=%v", has, err)
	}
	b, err := e.Withdrawals().Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if b.Status != withdrawal.StatusUnknownConfirmed {
		t.Fatalf("status = %s, want unknown_confirmed", b.Status)
	}
}

func TestEngine_Reorg(t *testing.T) {
	e := newTestEngine(t)

	depositKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	depositOut := depositBlock(t, e, depositKey, 500, 1)
	forkTip := e.TipHash()
	forkHeight := e.Height()

	recipientKey, _ := crypto.GenerateKey()
	recipient := crypto.AddressFromPubKey(recipientKey.PublicKey())

	buildBlock := func(prevHash types.Hash, height uint64, ts uint64, body []*tx.Transaction) *block.Block {
		hashes := make([]types.Hash, len(body))
		for i, t := range body {
			hashes[i] = t.Hash()
		}
		header := &block.Header{
			Version:    1,
			PrevHash:   prevHash,
			Height:     height,
			MerkleRoot: block.ComputeMerkleRoot(hashes),
			Timestamp:  ts,
		}
		return block.NewBlock(header, body)
	}

	// Old branch: one more block spending the deposit.
	spendTx := signedSpend(depositKey, depositOut, 500, 400, recipient)
	oldBlock := buildBlock(forkTip, forkHeight+1, 1100, []*tx.Transaction{spendTx})
	pre, err := e.Prevalidate(oldBlock.Header, oldBlock.Transactions, nil)
	if err != nil {
		t.Fatalf("Prevalidate old branch: %v", err)
	}
	if err := e.Connect(oldBlock.Header, oldBlock.Transactions, nil, pre); err != nil {
		t.Fatalf("Connect old branch: %v", err)
	}

	// New branch: an empty block at the same height, replacing the old one.
	newBlock := buildBlock(forkTip, forkHeight+1, 1200, nil)

	if err := e.Reorg([]*block.Block{newBlock}); err != nil {
		t.Fatalf("Reorg: %v", err)
	}

	if e.TipHash() != newBlock.Header.Hash() {
		t.Fatalf("tip after reorg = %s, want %s", e.TipHash(), newBlock.Header.Hash())
	}
	// The deposit should be unspent again: the old branch's spend was undone.
	if has, err := e.UTXOs().Has(depositOut); err != nil || !has {
		t.Fatalf("deposit not restored after reorg: has=%v err=%v", has, err)
	}
}
