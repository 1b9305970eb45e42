// Package provenance maintains the Event Fabric's secondary indices: by
// event id, by worldline, by (worldline, stage), and by parent (for
// forward-walking causality). Lookups are read-locked and never block a
// concurrent Fabric append beyond the moment of index insertion.
package provenance

import (
	"sort"
	"sync"

	"github.com/wardenledger/kernel/core/types"
)

// Index is the Provenance Index (spec component C).
type Index struct {
	mu sync.RWMutex

	byID          map[types.EventId]types.KernelEvent
	byWorldline   map[types.WorldlineId][]types.EventId
	byWorldlineAt map[types.WorldlineId]map[types.Stage][]types.EventId
	children      map[types.EventId][]types.EventId
}

// New constructs an empty Provenance Index.
func New() *Index {
	return &Index{
		byID:          make(map[types.EventId]types.KernelEvent),
		byWorldline:   make(map[types.WorldlineId][]types.EventId),
		byWorldlineAt: make(map[types.WorldlineId]map[types.Stage][]types.EventId),
		children:      make(map[types.EventId][]types.EventId),
	}
}

// Insert adds an event to every index. Callers (the Fabric, or replay) are
// responsible for ensuring insertion order matches sequence order so the
// per-worldline slices stay sorted without a re-sort on every insert.
func (idx *Index) Insert(e types.KernelEvent) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.byID[e.ID] = e
	idx.byWorldline[e.Worldline] = append(idx.byWorldline[e.Worldline], e.ID)

	byStage, ok := idx.byWorldlineAt[e.Worldline]
	if !ok {
		byStage = make(map[types.Stage][]types.EventId)
		idx.byWorldlineAt[e.Worldline] = byStage
	}
	byStage[e.Stage] = append(byStage[e.Stage], e.ID)

	for _, p := range e.Parents {
		idx.children[p] = append(idx.children[p], e.ID)
	}
}

// Get returns an event by id, and whether it was found.
func (idx *Index) Get(id types.EventId) (types.KernelEvent, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.byID[id]
	return e, ok
}

// ByWorldline returns every event id for a worldline, in sequence order.
func (idx *Index) ByWorldline(wid types.WorldlineId) []types.EventId {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := idx.byWorldline[wid]
	out := make([]types.EventId, len(ids))
	copy(out, ids)
	return out
}

// ByWorldlineStage returns every event id for a worldline at a given stage,
// in sequence order.
func (idx *Index) ByWorldlineStage(wid types.WorldlineId, stage types.Stage) []types.EventId {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	byStage, ok := idx.byWorldlineAt[wid]
	if !ok {
		return nil
	}
	ids := byStage[stage]
	out := make([]types.EventId, len(ids))
	copy(out, ids)
	return out
}

// Children returns the event ids that list id as a parent.
func (idx *Index) Children(id types.EventId) []types.EventId {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := idx.children[id]
	out := make([]types.EventId, len(ids))
	copy(out, ids)
	return out
}

// Range returns every event across the whole fabric with seq in
// [fromSeq, toSeq], sorted by sequence. It is a full scan, intended for
// audit queries rather than hot paths.
func (idx *Index) Range(fromSeq, toSeq uint64) []types.KernelEvent {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []types.KernelEvent
	for _, e := range idx.byID {
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Reset clears every index — used by replay before rebuilding from a
// snapshot plus trailing WAL records.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byID = make(map[types.EventId]types.KernelEvent)
	idx.byWorldline = make(map[types.WorldlineId][]types.EventId)
	idx.byWorldlineAt = make(map[types.WorldlineId]map[types.Stage][]types.EventId)
	idx.children = make(map[types.EventId][]types.EventId)
}

// Len reports the total number of indexed events.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}
