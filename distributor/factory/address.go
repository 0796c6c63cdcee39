package factory

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/xla-labs/waterfall-hub/distributor/engine"
)

// AddressPrefix is the bech32 human-readable part of every waterfall
// instance address.
const AddressPrefix = "wf"

// DeriveInstanceAddress deterministically derives a fresh bech32 instance
// address from the creator, the creation id and the factory's running nonce.
// The same inputs always derive the same address.
func DeriveInstanceAddress(creator engine.Address, creationID string, nonce uint64) (engine.Address, error) {
	h := sha256.New()
	h.Write([]byte(creator))
	h.Write([]byte(creationID))

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	h.Write(n[:])

	// 20-byte account identifier, the usual bech32 payload size.
	digest := h.Sum(nil)[:20]

	words, err := bech32.ConvertBits(digest, 8, 5, true)
	if err != nil {
		return engine.ZeroAddress, fmt.Errorf("failed to convert address bits: %w", err)
	}
	addr, err := bech32.Encode(AddressPrefix, words)
	if err != nil {
		return engine.ZeroAddress, fmt.Errorf("failed to encode address: %w", err)
	}
	return engine.Address(addr), nil
}

// ValidInstanceAddress reports whether addr is a well-formed instance
// address under the factory prefix.
func ValidInstanceAddress(addr engine.Address) bool {
	hrp, _, err := bech32.Decode(string(addr))
	return err == nil && hrp == AddressPrefix
}
