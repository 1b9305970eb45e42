package crypto

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// worldlineDomainTag domain-separates worldline derivation from every other
// digest this package computes (adjudicator addresses, event hashes). A
// material value that happens to collide with another domain's preimage must
// never collide in WorldlineId-space.
const worldlineDomainTag = "warden-kernel/worldline/v1"

// WorldlineIdSize is the width of a worldline identifier: a 256-bit digest.
const WorldlineIdSize = 32

// WorldlineId is the durable, deterministically-derived identity of an
// agent. It is reconstructable from identity material but never stores the
// material itself.
type WorldlineId [WorldlineIdSize]byte

// DeriveWorldlineId computes the deterministic digest for a piece of opaque
// identity material. Same material always yields the same id, across
// restarts and across processes, because the domain tag and hash function
// are fixed.
func DeriveWorldlineId(material []byte) WorldlineId {
	h := ethcrypto.Keccak256([]byte(worldlineDomainTag), material)
	var id WorldlineId
	copy(id[:], h)
	return id
}

// IsZero reports whether this is the unset worldline id.
func (w WorldlineId) IsZero() bool {
	return w == WorldlineId{}
}

// Bytes returns a defensive copy of the raw digest.
func (w WorldlineId) Bytes() []byte {
	out := make([]byte, WorldlineIdSize)
	copy(out, w[:])
	return out
}

// Hex returns the raw digest hex-encoded, for log lines and storage keys
// where a fixed-width comparable string is more useful than the bech32 form.
func (w WorldlineId) Hex() string {
	return hex.EncodeToString(w[:])
}

// String renders the worldline id as a bech32 string with the "wl" human
// readable part, mirroring the way the adjudicator Address type renders
// itself — a 256-bit payload bech32-encodes the same way a 160-bit address
// does, just with more 5-bit groups.
func (w WorldlineId) String() string {
	conv, err := bech32.ConvertBits(w[:], 8, 5, true)
	if err != nil {
		// ConvertBits only fails on malformed bit widths, never on data;
		// a fixed 32-byte input can never trigger this.
		panic(err)
	}
	encoded, err := bech32.Encode("wl", conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// ParseWorldlineId decodes a bech32 "wl1..." string back into a WorldlineId.
func ParseWorldlineId(s string) (WorldlineId, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return WorldlineId{}, fmt.Errorf("crypto: decode worldline id: %w", err)
	}
	if hrp != "wl" {
		return WorldlineId{}, fmt.Errorf("crypto: unsupported worldline hrp %q", hrp)
	}
	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return WorldlineId{}, fmt.Errorf("crypto: decode worldline id: %w", err)
	}
	if len(conv) != WorldlineIdSize {
		return WorldlineId{}, fmt.Errorf("crypto: invalid worldline id length %d", len(conv))
	}
	var id WorldlineId
	copy(id[:], conv)
	return id, nil
}
