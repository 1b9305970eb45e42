// Package safety implements the Safety/Coupling layer (spec component I):
// attention budgets bounding cross-worldline influence, and coercion
// detection over measured coupling signals.
package safety

import (
	"sync"

	kernelerrors "github.com/wardenledger/kernel/core/errors"
	"github.com/wardenledger/kernel/core/types"
)

// BudgetBook tracks one AttentionBudget per (worldline, effect domain)
// pair, each with its own per-counterparty allocations.
type BudgetBook struct {
	mu      sync.Mutex
	budgets map[budgetKey]*types.AttentionBudget
}

type budgetKey struct {
	worldline types.WorldlineId
	domain    types.EffectDomainKind
}

// NewBudgetBook constructs an empty budget book.
func NewBudgetBook() *BudgetBook {
	return &BudgetBook{budgets: make(map[budgetKey]*types.AttentionBudget)}
}

// Open registers a budget for a (worldline, domain) pair with the given
// total capacity and reserve. Calling Open again for the same pair resets
// it — callers are expected to call this once per window.
func (b *BudgetBook) Open(budget types.AttentionBudget) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := budgetKey{worldline: budget.Worldline, domain: budget.EffectDomain.Kind}
	cp := budget
	if cp.Allocations == nil {
		cp.Allocations = make(map[string]float64)
	}
	b.budgets[key] = &cp
}

// Available returns the unallocated capacity for a (worldline, domain)
// pair, or 0 if no budget has been opened.
func (b *BudgetBook) Available(wid types.WorldlineId, domain types.EffectDomain) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	bud, ok := b.budgets[budgetKey{worldline: wid, domain: domain.Kind}]
	if !ok {
		return 0
	}
	return bud.Remaining()
}

// Allocate grants amount of budget to target under the (worldline, domain)
// budget. It fails with BudgetExhausted — rather than granting a partial
// allocation — when amount exceeds what's available; exhaustion is
// reported as an anomaly, never truncated silently, per spec.md §4.I.
func (b *BudgetBook) Allocate(wid types.WorldlineId, domain types.EffectDomain, target string, amount float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bud, ok := b.budgets[budgetKey{worldline: wid, domain: domain.Kind}]
	if !ok {
		return kernelerrors.New(kernelerrors.KindNotFound, "safety: no budget open for worldline/domain")
	}
	if bud.Remaining() < amount {
		return kernelerrors.New(kernelerrors.KindBudgetExhausted, "safety: attention budget exhausted").WithStage("safety.allocate")
	}
	bud.Allocations[target] += amount
	return nil
}

// Release credits amount back to target's allocation under the
// (worldline, domain) budget. Release is always explicit — nothing
// reclaims budget on its own.
func (b *BudgetBook) Release(wid types.WorldlineId, domain types.EffectDomain, target string, amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bud, ok := b.budgets[budgetKey{worldline: wid, domain: domain.Kind}]
	if !ok {
		return
	}
	bud.Allocations[target] -= amount
	if bud.Allocations[target] < 0 {
		bud.Allocations[target] = 0
	}
}

// IsExhausted reports whether the (worldline, domain) budget has no
// remaining capacity.
func (b *BudgetBook) IsExhausted(wid types.WorldlineId, domain types.EffectDomain) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	bud, ok := b.budgets[budgetKey{worldline: wid, domain: domain.Kind}]
	if !ok {
		return true
	}
	return bud.IsExhausted()
}
