package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wardenledger/kernel/core/capability"
	"github.com/wardenledger/kernel/core/identity"
	"github.com/wardenledger/kernel/core/policy"
	"github.com/wardenledger/kernel/core/types"
	"github.com/wardenledger/kernel/crypto"
)

func newTestGate(t *testing.T, profile policy.Profile, depLookup func(types.WorldlineId) (types.DependencyMetrics, bool)) (*Gate, *identity.Registry, crypto.WorldlineId) {
	t.Helper()
	reg := identity.NewRegistry()
	wid := reg.Create([]byte("agent-1"))
	capReg := capability.New(nil)
	provider := policy.NewProfileProvider(profile, "v1")

	cfg := Config{
		MinConfidence:     profile.MinConfidence,
		MaxAllowedRisk:    profile.MaxAllowedRisk,
		HumanReviewAtRisk: profile.HumanReviewAtRisk,
		RequireIntentRef:  profile.RequireIntentRef,
		CoSignBeyondSelf:  profile.CoSignBeyondSelf,
		CoSignTimeout:     24 * time.Hour,
		DependencyLookup:  depLookup,
	}
	return New(reg, capReg, provider, nil, cfg), reg, wid
}

func declarationFor(wid types.WorldlineId, withIntent bool) types.CommitmentDeclaration {
	b := types.NewDeclaration(wid, types.CommitmentScope{
		EffectDomain: types.Communication(),
		Targets:      []types.WorldlineId{crypto.DeriveWorldlineId([]byte("target"))},
	})
	if withIntent {
		b = b.WithIntent(types.NewEventId())
	}
	return b.Build()
}

func TestAdjudicateApprovesWellFormedDeclaration(t *testing.T) {
	g, _, wid := newTestGate(t, policy.ThroughputFirst, nil)
	decl := declarationFor(wid, true)

	result := g.Adjudicate(decl)
	require.Equal(t, ResultPass, result.Kind)
	require.Equal(t, types.DecisionApproved, result.Card.Decision)
	require.NotEmpty(t, result.Card.DecisionID)
}

func TestAdjudicateDeniesMissingIntentRefUnderOversightFirst(t *testing.T) {
	g, _, wid := newTestGate(t, policy.OversightFirst, nil)
	decl := declarationFor(wid, false)

	result := g.Adjudicate(decl)
	require.Equal(t, ResultDeny, result.Kind)
	require.Equal(t, "MISSING_INTENT_REF", result.Reason.Code)
	require.Equal(t, types.DecisionDenied, result.Card.Decision)
}

func TestAdjudicateDeniesUnknownIdentity(t *testing.T) {
	reg := identity.NewRegistry()
	capReg := capability.New(nil)
	provider := policy.NewProfileProvider(policy.ThroughputFirst, "v1")
	g := New(reg, capReg, provider, nil, Config{MinConfidence: 0.5, MaxAllowedRisk: types.RiskCritical, HumanReviewAtRisk: types.RiskCritical})

	unregistered := crypto.DeriveWorldlineId([]byte("ghost"))
	decl := declarationFor(unregistered, true)

	result := g.Adjudicate(decl)
	require.Equal(t, ResultDeny, result.Kind)
	require.Equal(t, "IDENTITY_UNKNOWN", result.Reason.Code)
}

func TestAdjudicateRequiresCoSignBeyondSelf(t *testing.T) {
	g, _, wid := newTestGate(t, policy.OversightFirst, nil)
	peer := crypto.DeriveWorldlineId([]byte("peer"))
	decl := types.NewDeclaration(wid, types.CommitmentScope{
		EffectDomain: types.Communication(),
		Targets:      []types.WorldlineId{peer},
	}).WithIntent(types.NewEventId()).WithAffectedParty(peer).Build()

	result := g.Adjudicate(decl)
	require.Equal(t, ResultRequireCoSign, result.Kind)
	require.Contains(t, result.MissingSigners, peer)
	require.Equal(t, types.DecisionPendingHumanReview, result.Card.Decision)
}

func TestAdjudicateDeniesRiskAboveMaximum(t *testing.T) {
	g, _, wid := newTestGate(t, policy.AccountabilityMaximal, nil)
	targets := make([]types.WorldlineId, 11)
	for i := range targets {
		targets[i] = crypto.DeriveWorldlineId([]byte{byte(i)})
	}
	decl := types.NewDeclaration(wid, types.CommitmentScope{
		EffectDomain: types.Financial(),
		Targets:      targets,
	}).WithIntent(types.NewEventId()).WithReversibility(types.Irreversible()).Build()

	result := g.Adjudicate(decl)
	require.Equal(t, ResultDeny, result.Kind)
	require.Equal(t, "RISK_TOO_HIGH", result.Reason.Code)
}

func TestAdjudicateDeniesSubmissionOverRateCeiling(t *testing.T) {
	reg := identity.NewRegistry()
	wid := reg.Create([]byte("agent-1"))
	capReg := capability.New(nil)
	provider := policy.NewProfileProvider(policy.ThroughputFirst, "v1")
	cfg := Config{
		MinConfidence:     policy.ThroughputFirst.MinConfidence,
		MaxAllowedRisk:    policy.ThroughputFirst.MaxAllowedRisk,
		HumanReviewAtRisk: policy.ThroughputFirst.HumanReviewAtRisk,
		SubmissionAllowed: func(types.WorldlineId) bool { return false },
	}
	g := New(reg, capReg, provider, nil, cfg)
	decl := declarationFor(wid, true)

	result := g.Adjudicate(decl)
	require.Equal(t, ResultDeny, result.Kind)
	require.Equal(t, "RATE_LIMITED", result.Reason.Code)
}

// countingEmitter is a minimal EventEmitter that only counts calls, standing
// in for the fabric so a test can assert on exactly how many stage events
// an adjudication produces without a full fabric/WAL fixture.
type countingEmitter struct {
	calls int
}

func (c *countingEmitter) Emit(_ types.WorldlineId, _ types.Stage, _ string, _ []byte, _ []types.EventId) (types.KernelEvent, error) {
	c.calls++
	return types.KernelEvent{ID: types.NewEventId()}, nil
}

func TestAdjudicateEmitsStageEventsForAllSevenStagesOnApproval(t *testing.T) {
	reg := identity.NewRegistry()
	wid := reg.Create([]byte("agent-1"))
	capReg := capability.New(nil)
	provider := policy.NewProfileProvider(policy.ThroughputFirst, "v1")
	cfg := Config{
		MinConfidence:     policy.ThroughputFirst.MinConfidence,
		MaxAllowedRisk:    policy.ThroughputFirst.MaxAllowedRisk,
		HumanReviewAtRisk: policy.ThroughputFirst.HumanReviewAtRisk,
	}
	emitter := &countingEmitter{}
	g := New(reg, capReg, provider, emitter, cfg)
	decl := declarationFor(wid, true)

	result := g.Adjudicate(decl)
	require.Equal(t, ResultPass, result.Kind)
	// Six pipeline stages plus the seventh, Final Decision: two fabric
	// events (enter, exit) per stage.
	require.Equal(t, 14, emitter.calls)
}

func TestAdjudicateEmitsStageEventsThroughFinalDecisionOnEarlyDenial(t *testing.T) {
	reg := identity.NewRegistry()
	wid := reg.Create([]byte("agent-1"))
	capReg := capability.New(nil)
	provider := policy.NewProfileProvider(policy.ThroughputFirst, "v1")
	cfg := Config{
		MinConfidence:     policy.ThroughputFirst.MinConfidence,
		MaxAllowedRisk:    policy.ThroughputFirst.MaxAllowedRisk,
		HumanReviewAtRisk: policy.ThroughputFirst.HumanReviewAtRisk,
		SubmissionAllowed: func(types.WorldlineId) bool { return false },
	}
	emitter := &countingEmitter{}
	g := New(reg, capReg, provider, emitter, cfg)
	decl := declarationFor(wid, true)

	result := g.Adjudicate(decl)
	require.Equal(t, ResultDeny, result.Kind)
	// Denied on stage 1 (declaration_validation): that stage's enter/exit,
	// then Final Decision's enter/exit — no later stage runs.
	require.Equal(t, 4, emitter.calls)
}

func TestAdjudicateDependencyLookupForcesCoSignOnSelfOnlyDeclaration(t *testing.T) {
	target := crypto.DeriveWorldlineId([]byte("target"))
	depLookup := func(wid types.WorldlineId) (types.DependencyMetrics, bool) {
		return types.DependencyMetrics{SampleCount: 20, DeferenceRate: 0.9, InitiativeRate: 0.05}, true
	}
	// ThroughputFirst does not require co-sign beyond self; the dependency
	// lookup must still force it for a worldline flagged as concerningly
	// dependent.
	g, _, wid := newTestGate(t, policy.ThroughputFirst, depLookup)
	decl := types.NewDeclaration(wid, types.CommitmentScope{
		EffectDomain: types.Communication(),
		Targets:      []types.WorldlineId{target},
	}).WithIntent(types.NewEventId()).Build()

	result := g.Adjudicate(decl)
	require.Equal(t, ResultRequireCoSign, result.Kind)
	require.Contains(t, result.MissingSigners, target)
}
