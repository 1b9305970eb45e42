package types

import (
	"time"

	"github.com/wardenledger/kernel/crypto"
)

// eventBody is the RLP-encodable projection of a KernelEvent used as hash
// input. It deliberately excludes PrevHash and Hash themselves — per
// spec.md §3, "Integrity = H(prev_hash ∥ serialized_event_without_hash)".
type eventBody struct {
	ID          [16]byte
	Worldline   [32]byte
	Stage       string
	Seq         uint64
	TimestampNS int64
	Parents     [][16]byte
	PayloadKind string
	Payload     []byte
}

// KernelEvent is the atomic, immutable unit of the Event Fabric.
type KernelEvent struct {
	ID          EventId
	Worldline   WorldlineId
	Stage       Stage
	Seq         uint64
	Timestamp   time.Time
	Parents     []EventId
	PayloadKind string
	Payload     []byte
	PrevHash    []byte
	Hash        []byte
}

func (e KernelEvent) body() eventBody {
	parents := make([][16]byte, len(e.Parents))
	for i, p := range e.Parents {
		parents[i] = [16]byte(p)
	}
	return eventBody{
		ID:          [16]byte(e.ID),
		Worldline:   [32]byte(e.Worldline),
		Stage:       string(e.Stage),
		Seq:         e.Seq,
		TimestampNS: e.Timestamp.UnixNano(),
		Parents:     parents,
		PayloadKind: e.PayloadKind,
		Payload:     e.Payload,
	}
}

// CanonicalEncode returns the pinned byte-stable encoding of the event,
// excluding PrevHash and Hash, suitable as chain-hash input.
func (e KernelEvent) CanonicalEncode() ([]byte, error) {
	return crypto.CanonicalEncode(e.body())
}

// DecodeCanonicalEvent reconstructs a KernelEvent from its canonical body
// bytes (as stored in a WAL record) plus the PrevHash/Hash carried
// alongside it in the record framing — the one place those two fields are
// threaded back in, since CanonicalEncode deliberately excludes them.
func DecodeCanonicalEvent(body, prevHash, hash []byte) (KernelEvent, error) {
	var b eventBody
	if err := crypto.CanonicalDecode(body, &b); err != nil {
		return KernelEvent{}, err
	}
	parents := make([]EventId, len(b.Parents))
	for i, p := range b.Parents {
		parents[i] = EventId(p)
	}
	return KernelEvent{
		ID:          EventId(b.ID),
		Worldline:   WorldlineId(b.Worldline),
		Stage:       Stage(b.Stage),
		Seq:         b.Seq,
		Timestamp:   time.Unix(0, b.TimestampNS).UTC(),
		Parents:     parents,
		PayloadKind: b.PayloadKind,
		Payload:     b.Payload,
		PrevHash:    append([]byte(nil), prevHash...),
		Hash:        append([]byte(nil), hash...),
	}, nil
}

// ComputeHash computes the event's integrity hash given the preceding
// event's hash (or an empty slice for the fabric's genesis event).
func (e KernelEvent) ComputeHash() ([]byte, error) {
	body, err := e.CanonicalEncode()
	if err != nil {
		return nil, err
	}
	return crypto.ChainHash(e.PrevHash, body), nil
}

// VerifyHash recomputes the event's hash from PrevHash and the canonical
// body and reports whether it matches the stored Hash.
func (e KernelEvent) VerifyHash() (bool, error) {
	want, err := e.ComputeHash()
	if err != nil {
		return false, err
	}
	return bytesEqual(want, e.Hash), nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IntegrityReport is the result of a full-fabric chain verification.
type IntegrityReport struct {
	Total           int
	Verified        int
	BrokenLinks     []EventId
	IntegrityErrors []string
}

// IsClean reports whether the fabric verified with zero broken links, no
// integrity errors, and every event counted as verified.
func (r IntegrityReport) IsClean() bool {
	return len(r.BrokenLinks) == 0 && len(r.IntegrityErrors) == 0 && r.Verified == r.Total
}
