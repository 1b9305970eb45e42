package safety

import (
	"sync"

	"github.com/wardenledger/kernel/core/types"
)

// CouplingBook tracks the latest CouplingMetrics snapshot per worldline,
// keyed on the dependent worldline rather than the (worldline, peer) pair:
// the Gate's co-signature stage only ever needs "is this worldline
// concerningly dependent on anything," not which peer.
type CouplingBook struct {
	mu      sync.Mutex
	metrics map[types.WorldlineId]types.CouplingMetrics
}

// NewCouplingBook constructs an empty coupling book.
func NewCouplingBook() *CouplingBook {
	return &CouplingBook{metrics: make(map[types.WorldlineId]types.CouplingMetrics)}
}

// Record stores (overwriting) the latest measured CouplingMetrics for a
// worldline.
func (c *CouplingBook) Record(metrics types.CouplingMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics[metrics.Worldline] = metrics
}

// Dependency returns the stored DependencyMetrics for a worldline, if any
// coupling has been recorded for it. It satisfies the
// func(types.WorldlineId) (types.DependencyMetrics, bool) shape
// core/gate.Config.DependencyLookup expects.
func (c *CouplingBook) Dependency(wid types.WorldlineId) (types.DependencyMetrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.metrics[wid]
	if !ok {
		return types.DependencyMetrics{}, false
	}
	return m.Dependency, true
}
