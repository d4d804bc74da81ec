// Package types defines core primitive types for the CoinShift sidechain.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash represents a 256-bit hash value.
type Hash [HashSize]byte

// ChainID uniquely identifies a chain (root or sub-chain).
type ChainID Hash

// BitAssetID identifies a registered named asset, derived from its
// reservation commitment.
type BitAssetID Hash

// SwapID identifies a cross-chain swap, derived deterministically from its
// initiating transaction per direction (see internal/swap).
type SwapID Hash

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(decoded) != HashSize {
		return fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(decoded))
	}
	copy(h[:], decoded)
	return nil
}

// HexToHash converts a hex string to a Hash.
// Returns an error if the string is not exactly 64 hex characters.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// IsZero returns true if the chain ID is all zeros.
func (c ChainID) IsZero() bool {
	return Hash(c).IsZero()
}

// String returns the hex-encoded chain ID.
func (c ChainID) String() string {
	return Hash(c).String()
}

// MarshalJSON encodes the chain ID as a hex string.
func (c ChainID) MarshalJSON() ([]byte, error) {
	return Hash(c).MarshalJSON()
}

// UnmarshalJSON decodes a hex string into a chain ID.
func (c *ChainID) UnmarshalJSON(data []byte) error {
	return (*Hash)(c).UnmarshalJSON(data)
}

// IsZero returns true if the bitasset ID is all zeros.
func (b BitAssetID) IsZero() bool {
	return Hash(b).IsZero()
}

// String returns the hex-encoded bitasset ID.
func (b BitAssetID) String() string {
	return Hash(b).String()
}

// MarshalJSON encodes the bitasset ID as a hex string.
func (b BitAssetID) MarshalJSON() ([]byte, error) {
	return Hash(b).MarshalJSON()
}

// UnmarshalJSON decodes a hex string into a bitasset ID.
func (b *BitAssetID) UnmarshalJSON(data []byte) error {
	return (*Hash)(b).UnmarshalJSON(data)
}

// IsZero returns true if the swap ID is all zeros.
func (s SwapID) IsZero() bool {
	return Hash(s).IsZero()
}

// String returns the hex-encoded swap ID.
func (s SwapID) String() string {
	return Hash(s).String()
}

// MarshalJSON encodes the swap ID as a hex string.
func (s SwapID) MarshalJSON() ([]byte, error) {
	return Hash(s).MarshalJSON()
}

// UnmarshalJSON decodes a hex string into a swap ID.
func (s *SwapID) UnmarshalJSON(data []byte) error {
	return (*Hash)(s).UnmarshalJSON(data)
}
