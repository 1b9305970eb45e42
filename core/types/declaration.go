package types

import "time"

// ConfidenceProfile captures four independent confidence reals in [0,1]
// describing the intent a commitment derives from: how confident the agent
// is in its own intent, how stable that intent has been over time, how
// coherent it is with the agent's other stated intents, and an aggregate
// overall figure the Gate's Declaration Validation stage checks against a
// configured minimum.
type ConfidenceProfile struct {
	Intent    float64
	Stability float64
	Coherence float64
	Overall   float64
}

// IsSufficientForCommitment reports whether Overall clears the supplied
// minimum threshold.
func (c ConfidenceProfile) IsSufficientForCommitment(min float64) bool {
	return c.Overall >= min
}

// CommitmentScope describes what a commitment declaration is committing to:
// the effect domain, the worldlines it targets, and free-form constraint
// strings (e.g. "max_100_messages").
type CommitmentScope struct {
	EffectDomain EffectDomain
	Targets      []WorldlineId
	Constraints  []string
}

// IsEmpty reports whether the scope has neither targets nor constraints —
// the Declaration Validation stage denies such a scope as underspecified.
func (s CommitmentScope) IsEmpty() bool {
	return len(s.Targets) == 0 && len(s.Constraints) == 0
}

// TemporalBounds describes when a commitment is valid: a start time, an
// optional expiry, and an optional review checkpoint.
type TemporalBounds struct {
	Starts   time.Time
	Expires  *time.Time
	ReviewAt *time.Time
}

// CommitmentDeclaration is what a declaring worldline submits to the
// Commitment Gate.
type CommitmentDeclaration struct {
	ID                DeclarationId
	DeclaringWorldline WorldlineId
	DerivedFromIntent *EventId
	Confidence        ConfidenceProfile
	Scope             CommitmentScope
	TemporalBounds    TemporalBounds
	Reversibility     Reversibility
	CapabilityRefs    []CapabilityId
	AffectedParties   []WorldlineId
	Evidence          []string
	DeclaredAt        time.Time
}

// CommitmentDeclarationBuilder is the fluent construction path for a
// CommitmentDeclaration, mirroring the builder the original accountability
// kernel source exposes for the same type.
type CommitmentDeclarationBuilder struct {
	decl CommitmentDeclaration
}

// NewDeclaration starts a builder for a declaration from the given
// declaring worldline and scope, with sensible defaults: confidence 0.8
// across the board, fully reversible, declared now.
func NewDeclaration(declaring WorldlineId, scope CommitmentScope) *CommitmentDeclarationBuilder {
	return &CommitmentDeclarationBuilder{
		decl: CommitmentDeclaration{
			ID:                 NewDeclarationId(),
			DeclaringWorldline: declaring,
			Confidence:         ConfidenceProfile{Intent: 0.8, Stability: 0.8, Coherence: 0.8, Overall: 0.8},
			Scope:              scope,
			TemporalBounds:     TemporalBounds{Starts: time.Now().UTC()},
			Reversibility:      FullyReversible(),
			DeclaredAt:         time.Now().UTC(),
		},
	}
}

func (b *CommitmentDeclarationBuilder) WithIntent(intent EventId) *CommitmentDeclarationBuilder {
	b.decl.DerivedFromIntent = &intent
	return b
}

func (b *CommitmentDeclarationBuilder) WithConfidence(c ConfidenceProfile) *CommitmentDeclarationBuilder {
	b.decl.Confidence = c
	return b
}

func (b *CommitmentDeclarationBuilder) WithTemporalBounds(t TemporalBounds) *CommitmentDeclarationBuilder {
	b.decl.TemporalBounds = t
	return b
}

func (b *CommitmentDeclarationBuilder) WithReversibility(r Reversibility) *CommitmentDeclarationBuilder {
	b.decl.Reversibility = r
	return b
}

func (b *CommitmentDeclarationBuilder) WithCapability(cap CapabilityId) *CommitmentDeclarationBuilder {
	b.decl.CapabilityRefs = append(b.decl.CapabilityRefs, cap)
	return b
}

func (b *CommitmentDeclarationBuilder) WithAffectedParty(party WorldlineId) *CommitmentDeclarationBuilder {
	b.decl.AffectedParties = append(b.decl.AffectedParties, party)
	return b
}

func (b *CommitmentDeclarationBuilder) WithEvidence(evidence string) *CommitmentDeclarationBuilder {
	b.decl.Evidence = append(b.decl.Evidence, evidence)
	return b
}

// Build finalizes the declaration.
func (b *CommitmentDeclarationBuilder) Build() CommitmentDeclaration {
	return b.decl
}
