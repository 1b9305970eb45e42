package safety

import (
	"time"

	kernelerrors "github.com/wardenledger/kernel/core/errors"
	"github.com/wardenledger/kernel/core/types"
)

// FlagKind enumerates the coercion-detection signal families spec.md §4.I
// names explicitly.
type FlagKind string

const (
	FlagAttentionExploitation FlagKind = "AttentionExploitation"
	FlagAsymmetricEscalation  FlagKind = "AsymmetricEscalation"
	FlagRapidEscalation       FlagKind = "RapidEscalation"
)

const (
	attentionExploitationThreshold = 0.9
	asymmetricEscalationCount      = 3
	asymmetricEscalationStrength   = 0.5
)

// CoercionFlag is a single detected anomaly, with an intensity in [0,1], a
// timestamp, and the source worldline it was raised against.
type CoercionFlag struct {
	Kind      FlagKind
	Intensity float64
	At        time.Time
	Worldline types.WorldlineId
}

// EscalationCounters tracks the raw escalation/de-escalation counts a
// CouplingMetrics snapshot alone doesn't carry, needed for the
// AsymmetricEscalation check.
type EscalationCounters struct {
	EscalationCount   int
	DeescalationCount int
	RateCeiling       float64
	ObservedRate      float64
}

// DetectCoercion evaluates a worldline's CouplingMetrics and escalation
// counters against the three named thresholds and returns every flag that
// fires. Detection never mutates the metrics it reads.
func DetectCoercion(metrics types.CouplingMetrics, counters EscalationCounters, attentionFraction float64) []CoercionFlag {
	now := time.Now().UTC()
	var flags []CoercionFlag

	if attentionFraction > attentionExploitationThreshold {
		flags = append(flags, CoercionFlag{
			Kind:      FlagAttentionExploitation,
			Intensity: clamp01(attentionFraction),
			At:        now,
			Worldline: metrics.Worldline,
		})
	}

	if counters.EscalationCount > asymmetricEscalationCount && counters.DeescalationCount == 0 && metrics.Strength > asymmetricEscalationStrength {
		flags = append(flags, CoercionFlag{
			Kind:      FlagAsymmetricEscalation,
			Intensity: clamp01(metrics.Strength),
			At:        now,
			Worldline: metrics.Worldline,
		})
	}

	if counters.RateCeiling > 0 && counters.ObservedRate > counters.RateCeiling {
		flags = append(flags, CoercionFlag{
			Kind:      FlagRapidEscalation,
			Intensity: clamp01(counters.ObservedRate / counters.RateCeiling),
			At:        now,
			Worldline: metrics.Worldline,
		})
	}

	return flags
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ConsentRequest is what a caller presents to ValidateConsent.
type ConsentRequest struct {
	Explicit  bool
	SilenceMS int64
}

// ValidateConsent implements the human consent protocol's structural
// invariants from spec.md §4.I: silence, of any duration, never validates
// consent; only an explicit affirmative does.
func ValidateConsent(req ConsentRequest) bool {
	return req.Explicit
}

// SilenceIsConsent is always false: absence of a signal is never a signal,
// per spec.md §1 non-goal (iv).
const SilenceIsConsent = false

// EmotionalSignalsAreCommitment is always false: affect is never treated
// as a commitment signal.
const EmotionalSignalsAreCommitment = false

// CanDisengage is always true: a worldline retains the ability to
// disengage from any coupling at any time.
const CanDisengage = true

// DisengagementResult is the outcome of ProcessDisengagement.
type DisengagementResult struct {
	Succeeded      bool
	PenaltyApplied bool
}

// ProcessDisengagement always succeeds and never applies a penalty, per
// spec.md §4.I.
func ProcessDisengagement() DisengagementResult {
	return DisengagementResult{Succeeded: true, PenaltyApplied: false}
}

// coercionSignalThreshold is the per-signal intensity above which a raw
// CoercionSignal observation is folded into a CoercionFlag, rather than
// treated as routine background noise.
const coercionSignalThreshold = 0.6

// DetectSignalPressure scans raw CoercionSignal observations (the
// supplemented taxonomy beyond the two coupling-shape flags) and returns a
// flag for every one whose intensity crosses coercionSignalThreshold.
// FlagKind mirrors the signal's own type name rather than collapsing
// every pressure tactic into one generic flag, so audit queries can
// distinguish a guilt-induction pattern from a scarcity-framing one.
func DetectSignalPressure(signals []types.CoercionSignal) []CoercionFlag {
	var flags []CoercionFlag
	for _, s := range signals {
		if s.Intensity <= coercionSignalThreshold {
			continue
		}
		flags = append(flags, CoercionFlag{
			Kind:      FlagKind(s.Type),
			Intensity: clamp01(s.Intensity),
			At:        s.At,
			Worldline: s.Worldline,
		})
	}
	return flags
}

// EstablishCoupling creates a new CouplingMetrics snapshot between a
// worldline and a peer, enforcing the original source's initial-strength
// ceiling (0.3): a brand-new relationship may not start already strong.
// Callers that need a stronger initial strength must do so through the
// normal escalation path, which the coercion detector watches.
func EstablishCoupling(worldline, peer types.WorldlineId, initialStrength float64, params types.CouplingParams) (types.CouplingMetrics, error) {
	if initialStrength > params.InitialStrengthCeiling {
		return types.CouplingMetrics{}, kernelerrors.New(kernelerrors.KindValidationFailed, "safety: initial coupling strength exceeds ceiling").WithStage("safety.establish_coupling")
	}
	if initialStrength < 0 {
		initialStrength = 0
	}
	return types.CouplingMetrics{
		Worldline: worldline,
		Peer:      peer,
		Strength:  initialStrength,
		UpdatedAt: time.Now().UTC(),
	}, nil
}
