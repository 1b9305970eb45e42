package types

// ReversibilityKind enumerates how a commitment's effect can be undone.
type ReversibilityKind string

const (
	ReversibilityFullyReversible ReversibilityKind = "FullyReversible"
	ReversibilityTimeWindow      ReversibilityKind = "TimeWindow"
	ReversibilityConditional     ReversibilityKind = "Conditional"
	ReversibilityIrreversible    ReversibilityKind = "Irreversible"
)

// Reversibility describes how, if at all, a commitment's effect can be
// undone. It is a closed tagged union over ReversibilityKind; only the
// field relevant to Kind is populated.
type Reversibility struct {
	Kind       ReversibilityKind
	WindowMS   uint64   // populated when Kind == TimeWindow
	Conditions []string // populated when Kind == Conditional
}

func FullyReversible() Reversibility {
	return Reversibility{Kind: ReversibilityFullyReversible}
}

func TimeWindow(windowMS uint64) Reversibility {
	return Reversibility{Kind: ReversibilityTimeWindow, WindowMS: windowMS}
}

func Conditional(conditions []string) Reversibility {
	return Reversibility{Kind: ReversibilityConditional, Conditions: conditions}
}

func Irreversible() Reversibility {
	return Reversibility{Kind: ReversibilityIrreversible}
}
