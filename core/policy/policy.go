// Package policy implements the pluggable Policy Provider (spec component
// E): a pure, deterministic function from a declaration to a decision card.
package policy

import (
	"time"

	"github.com/wardenledger/kernel/core/types"
)

// Provider is the narrow capability the Gate depends on. Implementations
// must be deterministic for a given Version — the version is stamped into
// every card produced so replay can distinguish policy changes from
// non-determinism bugs.
type Provider interface {
	// Evaluate is a pure function over the declaration. Per spec.md §9(c)
	// it does not see prior cards for the same declaration; re-evaluation
	// with an incremented version happens at the Gate layer.
	Evaluate(decl types.CommitmentDeclaration) types.PolicyDecisionCard
	// Version identifies this provider's policy version, stamped onto
	// every card it produces.
	Version() string
}

// RequireIntentRef, when true, causes profiles to deny declarations that
// carry no DerivedFromIntent reference, citing "no action without
// stabilized intent" per spec.md §4.G stage 1. It is read both by the
// Gate's Declaration Validation stage (via Gate Config) and by
// ProfileProvider.Evaluate at stage 4, so a single profile value drives
// both checks consistently.
type Profile struct {
	Name              string
	RequireIntentRef  bool
	MinConfidence     float64
	MaxAllowedRisk    types.RiskClass
	HumanReviewAtRisk types.RiskClass
	CoSignBeyondSelf  bool
}

// Built-in profiles, named the way the spec's §4.E describes them:
// throughput-first, oversight-first, accountability-maximal, permissive-dev.
var (
	ThroughputFirst = Profile{
		Name:              "throughput-first",
		RequireIntentRef:  false,
		MinConfidence:     0.5,
		MaxAllowedRisk:    types.RiskCritical,
		HumanReviewAtRisk: types.RiskCritical,
		CoSignBeyondSelf:  false,
	}
	OversightFirst = Profile{
		Name:              "oversight-first",
		RequireIntentRef:  true,
		MinConfidence:     0.7,
		MaxAllowedRisk:    types.RiskHigh,
		HumanReviewAtRisk: types.RiskHigh,
		CoSignBeyondSelf:  true,
	}
	AccountabilityMaximal = Profile{
		Name:              "accountability-maximal",
		RequireIntentRef:  true,
		MinConfidence:     0.8,
		MaxAllowedRisk:    types.RiskMedium,
		HumanReviewAtRisk: types.RiskMedium,
		CoSignBeyondSelf:  true,
	}
	PermissiveDev = Profile{
		Name:              "permissive-dev",
		RequireIntentRef:  false,
		MinConfidence:     0.0,
		MaxAllowedRisk:    types.RiskCritical,
		HumanReviewAtRisk: types.RiskCritical,
		CoSignBeyondSelf:  false,
	}
)

// ProfileProvider is a Provider backed by a static Profile. It only decides
// the policy-level concerns (intent-ref requirement, confidence floor,
// non-empty scope);
// risk scoring and capability/identity checks are separate Gate stages.
type ProfileProvider struct {
	profile Profile
	version string
}

// NewProfileProvider builds a Provider from a named profile and a version
// string (typically the config's PolicyProviderVersion, stamped into every
// card for replay and audit per spec.md §6).
func NewProfileProvider(profile Profile, version string) *ProfileProvider {
	return &ProfileProvider{profile: profile, version: version}
}

func (p *ProfileProvider) Version() string { return p.version }

// Evaluate applies the profile's intent-ref requirement and confidence
// floor, and rejects an empty scope. A declaration that fails any of these
// is Denied here; anything
// else is provisionally Approved — the Gate's later stages (risk,
// co-signature, human approval) may still downgrade the decision.
func (p *ProfileProvider) Evaluate(decl types.CommitmentDeclaration) types.PolicyDecisionCard {
	now := time.Now().UTC()
	card := types.PolicyDecisionCard{
		DecisionID: decl.ID.String(),
		PolicyRefs: []string{p.profile.Name},
		Adjudicator: "policy:" + p.profile.Name,
		DecidedAt:  now,
		Version:    1,
	}

	if p.profile.RequireIntentRef && decl.DerivedFromIntent == nil {
		card.Decision = types.DecisionDenied
		card.Rationale = "no action without stabilized intent"
		return card
	}
	if !decl.Confidence.IsSufficientForCommitment(p.profile.MinConfidence) {
		card.Decision = types.DecisionDenied
		card.Rationale = "overall confidence below policy minimum"
		return card
	}
	if decl.Scope.IsEmpty() {
		card.Decision = types.DecisionDenied
		card.Rationale = "empty commitment scope"
		return card
	}

	card.Decision = types.DecisionApproved
	card.Rationale = "provisional approval pending risk and co-signature review"
	return card
}

// MaxAllowedRisk and HumanReviewAtRisk expose the profile's risk
// thresholds to the Gate's Risk Assessment stage, which otherwise has no
// way to read the provider's configured profile.
func (p *ProfileProvider) MaxAllowedRisk() types.RiskClass    { return p.profile.MaxAllowedRisk }
func (p *ProfileProvider) HumanReviewAtRisk() types.RiskClass { return p.profile.HumanReviewAtRisk }
func (p *ProfileProvider) RequiresCoSignBeyondSelf() bool     { return p.profile.CoSignBeyondSelf }
func (p *ProfileProvider) RequiresIntentRef() bool            { return p.profile.RequireIntentRef }
func (p *ProfileProvider) MinConfidence() float64             { return p.profile.MinConfidence }
