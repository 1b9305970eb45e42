// Package capability tracks which worldlines hold which capabilities, with
// scope and temporal validity, per spec component D.
package capability

import (
	"sync"
	"time"

	"github.com/wardenledger/kernel/core/types"
)

// EventEmitter is the narrow Fabric contract the registry needs to record
// revocations as System events, without importing core/fabric directly and
// creating an import cycle (fabric never needs capability).
type EventEmitter interface {
	Emit(worldline types.WorldlineId, stage types.Stage, payloadKind string, payload []byte, parents []types.EventId) (types.KernelEvent, error)
}

// Registry is the Capability Registry (spec component D). Lookups are
// read-mostly; grants and revokes serialize.
type Registry struct {
	mu     sync.RWMutex
	byID   map[types.CapabilityId]types.Capability
	holder map[types.WorldlineId][]types.CapabilityId

	emitter EventEmitter
}

// New constructs an empty Capability Registry. emitter may be nil in tests
// that do not care about the revocation audit trail.
func New(emitter EventEmitter) *Registry {
	return &Registry{
		byID:    make(map[types.CapabilityId]types.Capability),
		holder:  make(map[types.WorldlineId][]types.CapabilityId),
		emitter: emitter,
	}
}

// Grant registers a new capability, held by cap.HolderWorldline.
func (r *Registry) Grant(cap types.Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[cap.ID] = cap
	r.holder[cap.HolderWorldline] = append(r.holder[cap.HolderWorldline], cap.ID)
}

// Revoke marks a capability as revoked as of now, and records a System
// event carrying the capability id so revocation is never a silent state
// change.
func (r *Registry) Revoke(id types.CapabilityId) bool {
	r.mu.Lock()
	cap, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	now := time.Now().UTC()
	cap.Revoked = true
	cap.RevokedAt = &now
	r.byID[id] = cap
	holder := cap.HolderWorldline
	r.mu.Unlock()

	if r.emitter != nil {
		r.emitter.Emit(holder, types.StageSystem, "capability.revoked", []byte(id), nil)
	}
	return true
}

// Has reports whether wid holds an active (not revoked, within temporal
// bounds) capability matching id at the current instant. Expired or
// revoked capabilities are reported absent, never silently valid.
func (r *Registry) Has(wid types.WorldlineId, id types.CapabilityId) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cap, ok := r.byID[id]
	if !ok || cap.HolderWorldline != wid {
		return false
	}
	return cap.ActiveAt(time.Now().UTC())
}

// Get returns the capability by id, and whether it was found — regardless
// of whether it is currently active.
func (r *Registry) Get(id types.CapabilityId) (types.Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cap, ok := r.byID[id]
	return cap, ok
}

// List returns every capability currently held by wid (active or not).
func (r *Registry) List(wid types.WorldlineId) []types.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.holder[wid]
	out := make([]types.Capability, 0, len(ids))
	for _, id := range ids {
		if cap, ok := r.byID[id]; ok {
			out = append(out, cap)
		}
	}
	return out
}
