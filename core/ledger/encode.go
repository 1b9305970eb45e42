package ledger

import "github.com/wardenledger/kernel/core/types"

// declBody and cardBodyType are RLP-encodable projections used only to
// produce an opaque durable blob for audit; the Ledger never decodes or
// queries into their structure; core/provenance and core/audit are the
// paths used to query ledger-adjacent data.
type declBody struct {
	ID                 [16]byte
	DeclaringWorldline [32]byte
	Confidence         [4]uint64
	EffectDomain       string
	Targets            [][32]byte
	Constraints        []string
	StartsNS           int64
	ReversibilityKind  string
	CapabilityRefs     []string
	AffectedParties    [][32]byte
	Evidence           []string
	DeclaredAtNS       int64
}

func declarationBody(decl types.CommitmentDeclaration) declBody {
	targets := make([][32]byte, len(decl.Scope.Targets))
	for i, t := range decl.Scope.Targets {
		targets[i] = [32]byte(t)
	}
	parties := make([][32]byte, len(decl.AffectedParties))
	for i, p := range decl.AffectedParties {
		parties[i] = [32]byte(p)
	}
	caps := make([]string, len(decl.CapabilityRefs))
	for i, c := range decl.CapabilityRefs {
		caps[i] = string(c)
	}
	return declBody{
		ID:                 [16]byte(decl.ID),
		DeclaringWorldline: [32]byte(decl.DeclaringWorldline),
		Confidence: [4]uint64{
			uint64(decl.Confidence.Intent * 1e9),
			uint64(decl.Confidence.Stability * 1e9),
			uint64(decl.Confidence.Coherence * 1e9),
			uint64(decl.Confidence.Overall * 1e9),
		},
		EffectDomain:      decl.Scope.EffectDomain.Name(),
		Targets:           targets,
		Constraints:       decl.Scope.Constraints,
		StartsNS:          decl.TemporalBounds.Starts.UnixNano(),
		ReversibilityKind: string(decl.Reversibility.Kind),
		CapabilityRefs:    caps,
		AffectedParties:   parties,
		Evidence:          decl.Evidence,
		DeclaredAtNS:      decl.DeclaredAt.UnixNano(),
	}
}

type cardBodyType struct {
	DecisionID  string
	Decision    string
	Rationale   string
	PolicyRefs  []string
	RiskClass   int
	RiskScore   uint64
	Adjudicator string
	DecidedAtNS int64
	Version     int
}

func cardBodyOf(card types.PolicyDecisionCard) cardBodyType {
	return cardBodyType{
		DecisionID:  card.DecisionID,
		Decision:    string(card.Decision),
		Rationale:   card.Rationale,
		PolicyRefs:  card.PolicyRefs,
		RiskClass:   int(card.Risk.Class),
		RiskScore:   uint64(card.Risk.Score * 1e9),
		Adjudicator: card.Adjudicator,
		DecidedAtNS: card.DecidedAt.UnixNano(),
		Version:     card.Version,
	}
}
