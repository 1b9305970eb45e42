package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wardenledger/kernel/core/types"
)

// yamlProfile is the on-disk shape of a policy profile document, letting
// operators define custom profiles without a rebuild.
type yamlProfile struct {
	Name              string  `yaml:"name"`
	RequireIntentRef  bool    `yaml:"require_intent_ref"`
	MinConfidence     float64 `yaml:"min_confidence"`
	MaxAllowedRisk    string  `yaml:"max_allowed_risk"`
	HumanReviewAtRisk string  `yaml:"human_review_at_risk"`
	CoSignBeyondSelf  bool    `yaml:"cosign_beyond_self"`
}

func parseRiskClass(s string) (types.RiskClass, error) {
	switch s {
	case "Low", "low":
		return types.RiskLow, nil
	case "Medium", "medium":
		return types.RiskMedium, nil
	case "High", "high":
		return types.RiskHigh, nil
	case "Critical", "critical":
		return types.RiskCritical, nil
	default:
		return 0, fmt.Errorf("policy: unknown risk class %q", s)
	}
}

// LoadProfile reads a YAML profile document from path and converts it to a
// Profile.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("policy: read profile: %w", err)
	}
	var y yamlProfile
	if err := yaml.Unmarshal(data, &y); err != nil {
		return Profile{}, fmt.Errorf("policy: parse profile: %w", err)
	}
	maxRisk, err := parseRiskClass(y.MaxAllowedRisk)
	if err != nil {
		return Profile{}, err
	}
	reviewRisk, err := parseRiskClass(y.HumanReviewAtRisk)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Name:              y.Name,
		RequireIntentRef:  y.RequireIntentRef,
		MinConfidence:     y.MinConfidence,
		MaxAllowedRisk:    maxRisk,
		HumanReviewAtRisk: reviewRisk,
		CoSignBeyondSelf:  y.CoSignBeyondSelf,
	}, nil
}

// NamedProfile resolves one of the built-in profiles by name, or reports
// false if name does not match any of them.
func NamedProfile(name string) (Profile, bool) {
	switch name {
	case ThroughputFirst.Name:
		return ThroughputFirst, true
	case OversightFirst.Name:
		return OversightFirst, true
	case AccountabilityMaximal.Name:
		return AccountabilityMaximal, true
	case PermissiveDev.Name:
		return PermissiveDev, true
	default:
		return Profile{}, false
	}
}
