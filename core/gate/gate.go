// Package gate implements the Commitment Gate (spec component G): the
// seven-stage pipeline that adjudicates a commitment declaration against
// identity, capability, policy, risk, and co-signature constraints,
// producing a signed Policy Decision Card.
package gate

import (
	"time"

	"github.com/wardenledger/kernel/core/capability"
	kernelerrors "github.com/wardenledger/kernel/core/errors"
	"github.com/wardenledger/kernel/core/identity"
	"github.com/wardenledger/kernel/core/policy"
	"github.com/wardenledger/kernel/core/risk"
	"github.com/wardenledger/kernel/core/types"
	"github.com/wardenledger/kernel/crypto"
)

// StageResult is what every Gate stage returns. Exactly one of the
// constructors below should be used to build one.
type StageResultKind string

const (
	ResultPass                 StageResultKind = "Pass"
	ResultDeny                 StageResultKind = "Deny"
	ResultRequireCoSign        StageResultKind = "RequireCoSign"
	ResultRequireHumanApproval StageResultKind = "RequireHumanApproval"
	ResultDefer                StageResultKind = "Defer"
)

type StageResult struct {
	Kind     StageResultKind
	Reason   types.DenialReason
	Signers  []types.WorldlineId
	Message  string
	Duration time.Duration
}

func Pass() StageResult { return StageResult{Kind: ResultPass} }
func Deny(reason types.DenialReason) StageResult {
	return StageResult{Kind: ResultDeny, Reason: reason}
}
func RequireCoSign(signers []types.WorldlineId) StageResult {
	return StageResult{Kind: ResultRequireCoSign, Signers: signers}
}
func RequireHumanApproval(message string) StageResult {
	return StageResult{Kind: ResultRequireHumanApproval, Message: message}
}
func Defer(d time.Duration) StageResult {
	return StageResult{Kind: ResultDefer, Duration: d}
}

// GateContext is the mutable state threaded through all seven stages.
type GateContext struct {
	Declaration types.CommitmentDeclaration

	IdentityValid   bool
	CapabilityValid bool

	Card types.PolicyDecisionCard
	Risk types.RiskLevel

	MissingSigners  []types.WorldlineId
	RequireApproval bool
	ApprovalMessage string

	Denied       bool
	DenialReason types.DenialReason

	StageEvents []types.EventId
}

// EventEmitter is the narrow Fabric contract the Gate depends on.
type EventEmitter interface {
	Emit(worldline types.WorldlineId, stage types.Stage, payloadKind string, payload []byte, parents []types.EventId) (types.KernelEvent, error)
}

// Config bounds the Gate's stage thresholds, independent of any one
// policy profile, so the same Gate can be pointed at different profiles
// without recompiling thresholds into the pipeline logic.
type Config struct {
	MinConfidence     float64
	MaxAllowedRisk    types.RiskClass
	HumanReviewAtRisk types.RiskClass
	RequireIntentRef  bool
	CoSignBeyondSelf  bool
	CoSignTimeout     time.Duration
	CardSigner        *crypto.CardSigner

	// DependencyLookup, when set, lets the Co-signature Collection stage
	// consult a worldline's measured DependencyMetrics (core/safety,
	// supplemented from the original source). A worldline whose recorded
	// DependencyMetrics are concerning (the lookup is per worldline, not per
	// target) is held to a co-sign requirement even when the declaration
	// would otherwise only affect itself.
	DependencyLookup func(types.WorldlineId) (types.DependencyMetrics, bool)

	// SubmissionAllowed, when set, paces Declaration Validation against a
	// per-worldline submission rate ceiling (core/safety.SubmissionLimiter),
	// denying rather than adjudicating a declaration submitted faster than
	// its worldline's allowance.
	SubmissionAllowed func(types.WorldlineId) bool
}

// Gate composes the Identity Registry, Capability Registry, Policy
// Provider, and Risk Scorer into the seven-stage pipeline.
type Gate struct {
	identity     *identity.Registry
	capabilities *capability.Registry
	provider     policy.Provider
	emitter      EventEmitter
	cfg          Config
}

// New constructs a Gate. provider may be any policy.Provider; a
// *policy.ProfileProvider is typical, but Config's thresholds are read
// independently so the Gate never needs to type-assert the provider to
// learn its risk thresholds.
func New(identityReg *identity.Registry, capReg *capability.Registry, provider policy.Provider, emitter EventEmitter, cfg Config) *Gate {
	return &Gate{identity: identityReg, capabilities: capReg, provider: provider, emitter: emitter, cfg: cfg}
}

// Adjudicate runs a declaration through all seven stages and returns the
// final AdjudicationResult. Every stage entry/exit is emitted as a fabric
// event keyed to the declaration id; a card is always produced (even for a
// denial). The Gate does not record it: recording is the caller's step
// (Kernel.Submit writes it to the Ledger).
func (g *Gate) Adjudicate(decl types.CommitmentDeclaration) AdjudicationResult {
	ctx := &GateContext{Declaration: decl}

	stages := []struct {
		name string
		fn   func(*GateContext) StageResult
	}{
		{"declaration_validation", g.stageDeclarationValidation},
		{"identity_binding", g.stageIdentityBinding},
		{"capability_check", g.stageCapabilityCheck},
		{"policy_evaluation", g.stagePolicyEvaluation},
		{"risk_assessment", g.stageRiskAssessment},
		{"cosignature_collection", g.stageCoSignatureCollection},
	}

	for _, s := range stages {
		g.emitStage(ctx, s.name, "enter")
		result := s.fn(ctx)
		g.emitStage(ctx, s.name, "exit")

		switch result.Kind {
		case ResultDeny:
			ctx.Denied = true
			ctx.DenialReason = result.Reason
			return g.finalizeWithStageEvents(ctx)
		case ResultRequireCoSign:
			ctx.MissingSigners = result.Signers
		case ResultRequireHumanApproval:
			ctx.RequireApproval = true
			ctx.ApprovalMessage = result.Message
		}
		// Pass and Defer do not short-circuit; require-* flags carry
		// forward and later stages may still deny.
	}

	return g.finalizeWithStageEvents(ctx)
}

// finalizeWithStageEvents wraps finalize (stage 7, Final Decision) with the
// same enter/exit fabric events the first six stages get, so every stage,
// including the last, is accounted for in the fabric.
func (g *Gate) finalizeWithStageEvents(ctx *GateContext) AdjudicationResult {
	g.emitStage(ctx, "final_decision", "enter")
	result := g.finalize(ctx)
	g.emitStage(ctx, "final_decision", "exit")
	return result
}

func (g *Gate) emitStage(ctx *GateContext, stageName, phase string) {
	if g.emitter == nil {
		return
	}
	payload := []byte(ctx.Declaration.ID.String() + ":" + stageName + ":" + phase)
	e, err := g.emitter.Emit(ctx.Declaration.DeclaringWorldline, types.StageCommitment, "gate.stage", payload, nil)
	if err == nil {
		ctx.StageEvents = append(ctx.StageEvents, e.ID)
	}
}

// stageDeclarationValidation is stage 1.
func (g *Gate) stageDeclarationValidation(ctx *GateContext) StageResult {
	if g.cfg.SubmissionAllowed != nil && !g.cfg.SubmissionAllowed(ctx.Declaration.DeclaringWorldline) {
		return Deny(types.DenialReason{Code: "RATE_LIMITED", Message: "submission rate exceeds the worldline's configured ceiling"})
	}
	if g.cfg.RequireIntentRef && ctx.Declaration.DerivedFromIntent == nil {
		return Deny(types.DenialReason{Code: "MISSING_INTENT_REF", Message: "no action without stabilized intent"})
	}
	if !ctx.Declaration.Confidence.IsSufficientForCommitment(g.cfg.MinConfidence) {
		return Deny(types.DenialReason{Code: "LOW_CONFIDENCE", Message: "overall confidence below configured minimum"})
	}
	if ctx.Declaration.Scope.IsEmpty() {
		return Deny(types.DenialReason{Code: "EMPTY_SCOPE", Message: "commitment scope is empty"})
	}
	return Pass()
}

// stageIdentityBinding is stage 2.
func (g *Gate) stageIdentityBinding(ctx *GateContext) StageResult {
	if !g.identity.Known(ctx.Declaration.DeclaringWorldline) {
		return Deny(types.DenialReason{Code: "IDENTITY_UNKNOWN", Message: "declaring worldline is not registered"})
	}
	if !g.identity.Verify(ctx.Declaration.DeclaringWorldline) {
		return Deny(types.DenialReason{Code: "IDENTITY_CONTINUITY_BROKEN", Message: "continuity chain failed verification"})
	}
	ctx.IdentityValid = true
	return Pass()
}

// stageCapabilityCheck is stage 3.
func (g *Gate) stageCapabilityCheck(ctx *GateContext) StageResult {
	for _, capID := range ctx.Declaration.CapabilityRefs {
		if !g.capabilities.Has(ctx.Declaration.DeclaringWorldline, capID) {
			return Deny(types.DenialReason{Code: "CAPABILITY_MISSING_OR_EXPIRED", Message: "required capability not held or not active: " + string(capID)})
		}
	}
	ctx.CapabilityValid = true
	return Pass()
}

// stagePolicyEvaluation is stage 4.
func (g *Gate) stagePolicyEvaluation(ctx *GateContext) StageResult {
	card := g.provider.Evaluate(ctx.Declaration)
	card.Version = 1
	ctx.Card = card

	switch card.Decision {
	case types.DecisionDenied:
		return Deny(types.DenialReason{Code: "POLICY_DENIED", Message: card.Rationale, PolicyRefs: card.PolicyRefs})
	case types.DecisionPendingHumanReview:
		return RequireHumanApproval(card.Rationale)
	default:
		return Pass()
	}
}

// stageRiskAssessment is stage 5.
func (g *Gate) stageRiskAssessment(ctx *GateContext) StageResult {
	level := risk.Score(ctx.Declaration)
	ctx.Risk = level

	if level.Class > g.cfg.MaxAllowedRisk {
		return Deny(types.DenialReason{Code: "RISK_TOO_HIGH", Message: "risk class exceeds configured maximum"})
	}
	if level.Class >= g.cfg.HumanReviewAtRisk {
		return RequireHumanApproval("risk class requires human review")
	}
	return Pass()
}

// stageCoSignatureCollection is stage 6. Beyond spec.md §4.G's base rule
// (co-sign whenever scope affects parties beyond the declarer), a worldline
// whose recorded DependencyMetrics are already concerning (per the original
// source's supplemented dependency check) is held to the same requirement
// even for a self-only declaration, with the declaration's scope targets as
// the required co-signers. The metrics are looked up per worldline; which
// peer they were measured against is not compared with the targets.
func (g *Gate) stageCoSignatureCollection(ctx *GateContext) StageResult {
	decl := ctx.Declaration
	dependent := false
	if g.cfg.DependencyLookup != nil {
		if dm, ok := g.cfg.DependencyLookup(decl.DeclaringWorldline); ok {
			dependent = dm.IsConcerning()
		}
	}

	if !g.cfg.CoSignBeyondSelf && !dependent {
		return Pass()
	}

	var missing []types.WorldlineId
	for _, party := range decl.AffectedParties {
		if party != decl.DeclaringWorldline {
			missing = append(missing, party)
		}
	}
	if dependent && len(missing) == 0 {
		missing = append(missing, decl.Scope.Targets...)
	}
	if len(missing) == 0 {
		return Pass()
	}
	return RequireCoSign(missing)
}

// finalize is stage 7: aggregate everything accumulated in ctx into a
// final card, sign it, and produce the AdjudicationResult. The card is
// always produced and considered recorded by the caller (the Kernel),
// even for a denial.
func (g *Gate) finalize(ctx *GateContext) AdjudicationResult {
	card := ctx.Card
	if card.DecisionID == "" {
		card.DecisionID = ctx.Declaration.ID.String()
	}
	card.DecidedAt = time.Now().UTC()
	if card.Version == 0 {
		card.Version = 1
	}

	switch {
	case ctx.Denied:
		card.Decision = types.DecisionDenied
		card.Rationale = ctx.DenialReason.Message
		card.PolicyRefs = append(card.PolicyRefs, ctx.DenialReason.PolicyRefs...)
		g.sign(&card)
		return AdjudicationResult{Kind: ResultDeny, Card: card, Reason: ctx.DenialReason}
	case len(ctx.MissingSigners) > 0:
		card.Decision = types.DecisionPendingHumanReview
		g.sign(&card)
		return AdjudicationResult{Kind: ResultRequireCoSign, Card: card, MissingSigners: ctx.MissingSigners}
	case ctx.RequireApproval:
		card.Decision = types.DecisionPendingHumanReview
		g.sign(&card)
		return AdjudicationResult{Kind: ResultRequireHumanApproval, Card: card, Message: ctx.ApprovalMessage}
	default:
		card.Decision = types.DecisionApproved
		card.Risk = ctx.Risk
		g.sign(&card)
		return AdjudicationResult{Kind: ResultPass, Card: card}
	}
}

func (g *Gate) sign(card *types.PolicyDecisionCard) {
	if g.cfg.CardSigner == nil {
		return
	}
	body, err := cardHashInput(*card)
	if err != nil {
		return
	}
	hash := crypto.ContentHash(body)
	token, err := g.cfg.CardSigner.Sign(card.DecisionID, hexEncode(hash), string(card.Decision), card.Adjudicator, joinRefs(card.PolicyRefs), card.DecidedAt)
	if err != nil {
		return
	}
	card.SignedToken = token
}

// AdjudicationResult mirrors spec.md §6's submit() return shape.
type AdjudicationResult struct {
	Kind           StageResultKind
	Card           types.PolicyDecisionCard
	Reason         types.DenialReason
	Message        string
	MissingSigners []types.WorldlineId
}

// Err converts a denial result into a typed KernelError, for callers that
// want a Go error rather than inspecting Kind.
func (r AdjudicationResult) Err() error {
	if r.Kind != ResultDeny {
		return nil
	}
	return kernelerrors.New(kernelerrors.KindPolicyDenied, r.Reason.Message).WithStage("gate.finalize")
}
