package crypto

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CardClaims are the JWT claims embedded in a signed decision card token.
// The token does not carry the full PolicyDecisionCard — only enough to
// bind a specific adjudicator identity, at a specific time, to a specific
// card's content hash, so a verifier holding the plaintext card can confirm
// it hasn't been altered since adjudication without re-running policy.
type CardClaims struct {
	jwt.RegisteredClaims
	DecisionID   string `json:"decision_id"`
	CardHash     string `json:"card_hash"`
	Decision     string `json:"decision"`
	Adjudicator  string `json:"adjudicator"`
	PolicyRefs   string `json:"policy_refs,omitempty"`
}

// CardSigner signs and verifies decision-card tokens with a shared key held
// by the Kernel process. HMAC is sufficient here: the token is produced and
// consumed within the same accountability boundary (the Gate signs; only a
// holder of the same key can Verify); it is not handed to untrusted third
// parties the way a user-facing auth token would be.
type CardSigner struct {
	key    []byte
	issuer string
}

// NewCardSigner constructs a signer from a non-empty secret key.
func NewCardSigner(key []byte, issuer string) (*CardSigner, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("crypto: card signing key must not be empty")
	}
	return &CardSigner{key: append([]byte(nil), key...), issuer: issuer}, nil
}

// Sign issues a compact JWT binding the adjudicator identity to the card's
// content hash at the given decision time.
func (s *CardSigner) Sign(decisionID, cardHashHex, decision, adjudicator, policyRefs string, decidedAt time.Time) (string, error) {
	claims := CardClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(decidedAt),
		},
		DecisionID:  decisionID,
		CardHash:    cardHashHex,
		Decision:    decision,
		Adjudicator: adjudicator,
		PolicyRefs:  policyRefs,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Verify parses and validates a signed card token, returning its claims.
func (s *CardSigner) Verify(tokenString string) (*CardClaims, error) {
	claims := &CardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("crypto: unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("crypto: invalid card token")
	}
	return claims, nil
}
