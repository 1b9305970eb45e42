package crypto

import (
	"crypto/sha256"

	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"
)

// CanonicalEncode produces the pinned, byte-stable serialization used as
// hash input throughout the kernel (event bodies, decision cards for
// signing). RLP is deterministic over a fixed Go struct layout and is
// already a dependency this corpus reaches for when it needs a canonical
// encoding (see the teacher's username-index round trip in
// core/state/manager.go) — unlike encoding/json, whose map and pointer
// handling is not guaranteed byte-stable across stdlib versions.
func CanonicalEncode(v interface{}) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

// CanonicalDecode reverses CanonicalEncode into v, which must be a pointer
// to the same shape that produced the bytes.
func CanonicalDecode(data []byte, v interface{}) error {
	return rlp.DecodeBytes(data, v)
}

// ChainHash computes the next hash-chain link: H(prevHash ∥ body). A zero
// length prevHash is valid only for the genesis event of a fabric.
func ChainHash(prevHash []byte, body []byte) []byte {
	h := sha256.New()
	h.Write(prevHash)
	h.Write(body)
	return h.Sum(nil)
}

// ContentHash pins a payload to a fixed digest; the kernel uses it for
// decision-card signing digests (core/gate) and continuity-segment hashes
// (core/identity). Receipt content hashes are supplied by the caller, not
// computed here. blake3 is used rather than sha256 so that chain
// integrity hashes (sha256, matching the teacher's BlockHeader.Hash) and
// content hashes are never computed with the same primitive —
// keeping the two hash domains visibly distinct in code review.
func ContentHash(payload []byte) []byte {
	sum := blake3.Sum256(payload)
	return sum[:]
}
