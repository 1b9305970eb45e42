package gate

import (
	"encoding/hex"
	"strings"

	"github.com/wardenledger/kernel/core/types"
	"github.com/wardenledger/kernel/crypto"
)

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func joinRefs(refs []string) string {
	return strings.Join(refs, ",")
}

// cardBody is the RLP-encodable projection of a PolicyDecisionCard used as
// signing-hash input. time.Time carries unexported fields RLP cannot
// reflect over, so it is projected to a unix-nano int64, mirroring the
// same substitution core/types/event.go makes for KernelEvent.
type cardBody struct {
	DecisionID  string
	Decision    string
	Rationale   string
	PolicyRefs  []string
	RiskClass   int
	RiskScore   uint64
	Conditions  []string
	Adjudicator string
	DecidedAtNS int64
	Version     int
}

func cardHashInput(card types.PolicyDecisionCard) ([]byte, error) {
	return crypto.CanonicalEncode(cardBody{
		DecisionID:  card.DecisionID,
		Decision:    string(card.Decision),
		Rationale:   card.Rationale,
		PolicyRefs:  card.PolicyRefs,
		RiskClass:   int(card.Risk.Class),
		RiskScore:   uint64(card.Risk.Score * 1e9),
		Conditions:  card.Conditions,
		Adjudicator: card.Adjudicator,
		DecidedAtNS: card.DecidedAt.UnixNano(),
		Version:     card.Version,
	})
}
