package types

import "time"

// Decision is the adjudication outcome recorded on a PolicyDecisionCard.
type Decision string

const (
	DecisionApproved           Decision = "Approved"
	DecisionDenied             Decision = "Denied"
	DecisionPendingHumanReview Decision = "PendingHumanReview"
)

// RiskLevel is the output of the Risk Scorer: a class, the numeric score
// that produced it, and the named factors that contributed.
type RiskLevel struct {
	Class   RiskClass
	Score   float64
	Factors []string
}

// PolicyDecisionCard is the structured output of adjudication. A denial
// card is still a card: it is always recorded, never merely returned to
// the caller and discarded.
type PolicyDecisionCard struct {
	DecisionID  string
	Decision    Decision
	Rationale   string
	PolicyRefs  []string
	Risk        RiskLevel
	Conditions  []string
	Adjudicator string
	DecidedAt   time.Time
	Version     int
	// SignedToken is the compact signed-card token (see crypto.CardSigner)
	// binding Adjudicator to a digest of this card's canonical encoding.
	SignedToken string
}

// DenialReason is the structured reason a Gate stage attaches to a Deny
// result.
type DenialReason struct {
	Code       string
	Message    string
	PolicyRefs []string
}
