// Package identity derives deterministic worldline identities from opaque
// keying material and tracks each worldline's continuity chain.
package identity

import (
	"sync"
	"time"

	"github.com/wardenledger/kernel/crypto"
)

// ContinuityRef is a monotonically-indexed segment attached to a worldline.
// Re-constitution of a worldline from the same material extends the chain
// with a new segment rather than replacing or erroring on the existing one.
type ContinuityRef struct {
	Worldline crypto.WorldlineId
	Index     uint64
	BackHash  []byte
	StartedAt time.Time
}

// segmentHash is the continuity chain's own link hash, independent of the
// event fabric's chain — it only needs to bind one segment to its
// predecessor, so a single content hash over the prior segment suffices.
func segmentHash(prev ContinuityRef, hasPrev bool) []byte {
	if !hasPrev {
		return nil
	}
	buf := make([]byte, 0, 8+len(prev.BackHash))
	buf = append(buf, byte(prev.Index))
	buf = append(buf, prev.BackHash...)
	return crypto.ContentHash(buf)
}

// Registry is the Identity Registry (spec component A): derive, create, and
// track continuity for worldlines. Unknown worldline queries return
// absence, never an error — callers decide what absence means.
type Registry struct {
	mu         sync.RWMutex
	continuity map[crypto.WorldlineId][]ContinuityRef
}

// NewRegistry constructs an empty Identity Registry.
func NewRegistry() *Registry {
	return &Registry{
		continuity: make(map[crypto.WorldlineId][]ContinuityRef),
	}
}

// Derive computes the deterministic, domain-separated worldline id for the
// given identity material. It is pure: it never touches registry state.
func Derive(material []byte) crypto.WorldlineId {
	return crypto.DeriveWorldlineId(material)
}

// Create derives a worldline id from material and registers a new
// continuity segment. Re-presenting the same material is idempotent in the
// sense that it extends the existing continuity chain with a fresh segment
// rather than erroring or duplicating index 0.
func (r *Registry) Create(material []byte) crypto.WorldlineId {
	wid := Derive(material)
	r.mu.Lock()
	defer r.mu.Unlock()

	segments := r.continuity[wid]
	var prev ContinuityRef
	hasPrev := len(segments) > 0
	if hasPrev {
		prev = segments[len(segments)-1]
	}
	seg := ContinuityRef{
		Worldline: wid,
		Index:     uint64(len(segments)),
		BackHash:  segmentHash(prev, hasPrev),
		StartedAt: time.Now().UTC(),
	}
	r.continuity[wid] = append(segments, seg)
	return wid
}

// Continuity returns the current (most recent) continuity segment for a
// worldline, and whether the worldline is known at all.
func (r *Registry) Continuity(wid crypto.WorldlineId) (ContinuityRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	segments := r.continuity[wid]
	if len(segments) == 0 {
		return ContinuityRef{}, false
	}
	return segments[len(segments)-1], true
}

// Verify walks the continuity chain for a worldline end to end, confirming
// each segment's back-hash matches the recomputed hash of its predecessor.
func (r *Registry) Verify(wid crypto.WorldlineId) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	segments := r.continuity[wid]
	for i := 1; i < len(segments); i++ {
		want := segmentHash(segments[i-1], true)
		if !bytesEqual(want, segments[i].BackHash) {
			return false
		}
	}
	return true
}

// Known reports whether a worldline has at least one continuity segment.
func (r *Registry) Known(wid crypto.WorldlineId) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.continuity[wid]) > 0
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
