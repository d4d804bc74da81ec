package block

import (
	"encoding/json"
	"testing"

	"github.com/coinshift-network/coinshift-core/pkg/types"
)

func TestHeader_Hash_Deterministic(t *testing.T) {
	h := &Header{
		Version:    1,
		PrevHash:   types.Hash{0x01},
		MerkleRoot: types.Hash{0x02},
		Timestamp:  1000,
		Height:     5,
	}
	if h.Hash() != h.Hash() {
		t.Error("Hash() should be deterministic")
	}
}

func TestHeader_Hash_IgnoresValidatorSig(t *testing.T) {
	h := &Header{Version: 1, Height: 5}
	h1 := h.Hash()
	h.ValidatorSig = []byte("signature")
	h2 := h.Hash()
	if h1 != h2 {
		t.Error("Hash() should not change when ValidatorSig is set")
	}
}

func TestHeader_Hash_ChangesWithHeight(t *testing.T) {
	h1 := &Header{Version: 1, Height: 5}
	h2 := &Header{Version: 1, Height: 6}
	if h1.Hash() == h2.Hash() {
		t.Error("different heights should hash differently")
	}
}

func TestHeader_JSONRoundTrip(t *testing.T) {
	h := &Header{
		Version:      1,
		PrevHash:     types.Hash{0x01},
		MerkleRoot:   types.Hash{0x02},
		Timestamp:    1000,
		Height:       5,
		ValidatorSig: []byte{0xde, 0xad, 0xbe, 0xef},
	}
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var got Header
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got.Hash() != h.Hash() {
		t.Error("round-tripped header should hash the same")
	}
	if string(got.ValidatorSig) != string(h.ValidatorSig) {
		t.Error("ValidatorSig should round-trip")
	}
}

func TestHeader_JSONRoundTrip_NoValidatorSig(t *testing.T) {
	h := &Header{Version: 1, Height: 5}
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var got Header
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got.ValidatorSig != nil {
		t.Error("ValidatorSig should remain nil when absent")
	}
}
