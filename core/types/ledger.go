package types

import "time"

// LifecycleState is a LedgerEntry's position in the commitment lifecycle.
type LifecycleState string

const (
	LifecyclePending   LifecycleState = "Pending"
	LifecycleApproved  LifecycleState = "Approved"
	LifecycleDenied    LifecycleState = "Denied"
	LifecycleExecuting LifecycleState = "Executing"
	LifecycleCompleted LifecycleState = "Completed"
	LifecycleFailed    LifecycleState = "Failed"
	LifecycleExpired   LifecycleState = "Expired"
)

// IsTerminal reports whether the state is sticky (no further transitions
// are legal once reached).
func (s LifecycleState) IsTerminal() bool {
	switch s {
	case LifecycleCompleted, LifecycleFailed, LifecycleDenied, LifecycleExpired:
		return true
	default:
		return false
	}
}

// legalTransitions encodes the lifecycle state diagram from spec.md §4.H.
var legalTransitions = map[LifecycleState]map[LifecycleState]bool{
	LifecyclePending:   {LifecycleApproved: true, LifecycleDenied: true},
	LifecycleApproved:  {LifecycleExecuting: true, LifecycleExpired: true},
	LifecycleExecuting: {LifecycleCompleted: true, LifecycleFailed: true},
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition.
func (s LifecycleState) CanTransition(next LifecycleState) bool {
	allowed, ok := legalTransitions[s]
	if !ok {
		return false
	}
	return allowed[next]
}

// LifecycleTransition records one historical state change with its
// timestamp, so transitions are append-only and auditable rather than
// overwriting a single "current state" field silently.
type LifecycleTransition struct {
	From LifecycleState
	To   LifecycleState
	At   time.Time
}

// OutcomeKind classifies a completed commitment's outcome, supplementing
// spec.md's free-text outcome summary with the CommitmentContent
// vocabulary from the original source (action/state/boundary/result).
type OutcomeKind string

const (
	OutcomeKindAction   OutcomeKind = "Action"
	OutcomeKindState    OutcomeKind = "State"
	OutcomeKindBoundary OutcomeKind = "Boundary"
	OutcomeKindResult   OutcomeKind = "Result"
)

// Receipt pins an external tool-call effect to the ledger entry that
// authorized it.
type Receipt struct {
	ID           ReceiptId
	ToolCallID   string
	CapabilityID CapabilityId
	ContentHash  []byte
	Status       string
	At           time.Time
}

// LedgerEntry is the durable record of a commitment's lifecycle, decision
// card, and receipts.
type LedgerEntry struct {
	ID             LedgerEntryId
	Declaration    CommitmentDeclaration
	Card           PolicyDecisionCard
	State          LifecycleState
	Transitions    []LifecycleTransition
	OutcomeSummary string
	OutcomeKind    OutcomeKind
	Receipts       []Receipt
	CreatedAt      time.Time
}
