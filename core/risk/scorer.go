// Package risk implements the deterministic Risk Scorer (spec component
// F): a pure mapping from a commitment declaration to a score in [0,1] and
// a discrete risk class.
package risk

import "github.com/wardenledger/kernel/core/types"

const (
	factorBase                   = 0.20
	factorIrreversible           = 0.30
	factorConditional            = 0.15
	factorShortTimeWindowMS      = 60_000
	factorShortTimeWindow        = 0.10
	factorFinancialMultiplier    = 1.50
	factorInfrastructure         = 0.20
	factorGovernance             = 0.15
	factorWideScopeThreshold     = 10
	factorWideScope              = 0.15
	factorModerateScopeThreshold = 5
	factorModerateScope          = 0.05
	factorLowConfidenceThreshold = 0.7
	factorLowConfidence          = 0.10
)

const (
	classCriticalThreshold = 0.8
	classHighThreshold     = 0.6
	classMediumThreshold   = 0.3
)

// Score computes the declaration's risk score, its discrete class, and the
// named factors that contributed, applying spec.md §4.F's table exactly
// (including the single multiplicative Financial factor, applied once,
// after all additive factors).
func Score(decl types.CommitmentDeclaration) types.RiskLevel {
	score := factorBase
	var factors []string
	factors = append(factors, "base")

	switch decl.Reversibility.Kind {
	case types.ReversibilityIrreversible:
		score += factorIrreversible
		factors = append(factors, "reversibility=irreversible")
	case types.ReversibilityConditional:
		score += factorConditional
		factors = append(factors, "reversibility=conditional")
	case types.ReversibilityTimeWindow:
		if decl.Reversibility.WindowMS < factorShortTimeWindowMS {
			score += factorShortTimeWindow
			factors = append(factors, "reversibility=short_time_window")
		}
	}

	switch decl.Scope.EffectDomain.Kind {
	case types.EffectDomainInfrastructure:
		score += factorInfrastructure
		factors = append(factors, "effect_domain=infrastructure")
	case types.EffectDomainGovernance:
		score += factorGovernance
		factors = append(factors, "effect_domain=governance")
	}

	affected := len(decl.Scope.Targets) + len(decl.AffectedParties)
	if affected > factorWideScopeThreshold {
		score += factorWideScope
		factors = append(factors, "scope_size>10")
	} else if affected > factorModerateScopeThreshold {
		score += factorModerateScope
		factors = append(factors, "scope_size>5")
	}

	if decl.Confidence.Overall < factorLowConfidenceThreshold {
		score += factorLowConfidence
		factors = append(factors, "low_confidence")
	}

	// Financial is multiplicative and applied once, after every additive
	// factor above, per spec.md §4.F.
	if decl.Scope.EffectDomain.Kind == types.EffectDomainFinancial {
		score *= factorFinancialMultiplier
		factors = append(factors, "effect_domain=financial")
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	return types.RiskLevel{
		Class:   classify(score),
		Score:   score,
		Factors: factors,
	}
}

func classify(score float64) types.RiskClass {
	switch {
	case score >= classCriticalThreshold:
		return types.RiskCritical
	case score >= classHighThreshold:
		return types.RiskHigh
	case score >= classMediumThreshold:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}
