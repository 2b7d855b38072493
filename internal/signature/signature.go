// Package signature validates inbound payment-webhook authenticity.
//
// It intentionally avoids transport and policy concerns; callers decide
// what a failed check means.
package signature

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
)

// Params are the payload fields covered by the signature.
type Params struct {
	Amount    string
	RefID     string
	MessageID string
}

// AmountString renders a JSON number the way the upstream provider does:
// plain decimal, no exponent, no trailing zeros.
func AmountString(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Compute returns the lowercase hex SHA-256 over the fixed concatenation
// amount + refId + messageId + merchantKey, with no delimiter.
func Compute(p Params, merchantKey string) string {
	sum := sha256.Sum256([]byte(p.Amount + p.RefID + p.MessageID + merchantKey))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether provided matches the computed signature.
// Any missing field fails the check rather than erroring.
func Verify(p Params, merchantKey, provided string) bool {
	if p.Amount == "" || p.RefID == "" || p.MessageID == "" || merchantKey == "" || provided == "" {
		return false
	}
	want := Compute(p, merchantKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(provided)) == 1
}
