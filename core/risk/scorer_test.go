package risk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wardenledger/kernel/core/types"
	"github.com/wardenledger/kernel/crypto"
)

func worldline(seed string) types.WorldlineId {
	return crypto.DeriveWorldlineId([]byte(seed))
}

func baseDecl() types.CommitmentDeclaration {
	return types.NewDeclaration(worldline("declarer"), types.CommitmentScope{
		EffectDomain: types.Communication(),
		Targets:      []types.WorldlineId{worldline("target-1")},
	}).Build()
}

func TestScoreBaseIsLowRisk(t *testing.T) {
	level := Score(baseDecl())
	require.Equal(t, types.RiskLow, level.Class)
	require.InDelta(t, 0.20, level.Score, 1e-9)
	require.Equal(t, []string{"base"}, level.Factors)
}

func TestScoreIrreversibleInfrastructureWideScopeIsCritical(t *testing.T) {
	targets := make([]types.WorldlineId, 11)
	for i := range targets {
		targets[i] = worldline(string(rune('a' + i)))
	}
	decl := types.NewDeclaration(worldline("declarer"), types.CommitmentScope{
		EffectDomain: types.Infrastructure(),
		Targets:      targets,
	}).WithReversibility(types.Irreversible()).Build()

	level := Score(decl)
	// base .20 + irreversible .30 + infrastructure .20 + wide_scope .15 = .85
	require.InDelta(t, 0.85, level.Score, 1e-9)
	require.Equal(t, types.RiskCritical, level.Class)
	require.Contains(t, level.Factors, "reversibility=irreversible")
	require.Contains(t, level.Factors, "effect_domain=infrastructure")
	require.Contains(t, level.Factors, "scope_size>10")
}

func TestScoreFinancialMultiplierAppliesOnceAfterAdditiveFactors(t *testing.T) {
	decl := types.NewDeclaration(worldline("declarer"), types.CommitmentScope{
		EffectDomain: types.Financial(),
		Targets:      []types.WorldlineId{worldline("t1")},
	}).WithReversibility(types.Irreversible()).Build()

	level := Score(decl)
	// (base .20 + irreversible .30) * 1.50 = .75
	require.InDelta(t, 0.75, level.Score, 1e-9)
	require.Equal(t, types.RiskHigh, level.Class)
	require.Equal(t, level.Factors[len(level.Factors)-1], "effect_domain=financial")
}

func TestScoreShortTimeWindowAddsFactorOnlyBelowThreshold(t *testing.T) {
	short := types.NewDeclaration(worldline("d"), types.CommitmentScope{EffectDomain: types.Communication(), Targets: []types.WorldlineId{worldline("t")}}).
		WithReversibility(types.TimeWindow(1_000)).Build()
	long := types.NewDeclaration(worldline("d"), types.CommitmentScope{EffectDomain: types.Communication(), Targets: []types.WorldlineId{worldline("t")}}).
		WithReversibility(types.TimeWindow(120_000)).Build()

	require.Contains(t, Score(short).Factors, "reversibility=short_time_window")
	require.NotContains(t, Score(long).Factors, "reversibility=short_time_window")
}

func TestScoreLowConfidenceAddsFactor(t *testing.T) {
	decl := baseDecl()
	decl.Confidence.Overall = 0.5
	level := Score(decl)
	require.Contains(t, level.Factors, "low_confidence")
}

func TestScoreNeverExceedsOne(t *testing.T) {
	targets := make([]types.WorldlineId, 12)
	for i := range targets {
		targets[i] = worldline(string(rune('a' + i)))
	}
	decl := types.NewDeclaration(worldline("declarer"), types.CommitmentScope{
		EffectDomain: types.Financial(),
		Targets:      targets,
	}).WithReversibility(types.Irreversible()).Build()
	decl.Confidence.Overall = 0.1

	level := Score(decl)
	require.LessOrEqual(t, level.Score, 1.0)
	require.Equal(t, types.RiskCritical, level.Class)
}
