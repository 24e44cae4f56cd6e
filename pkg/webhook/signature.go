package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/codeready-toolchain/relay/pkg/schema"
)

// SignatureHeader carries the payload HMAC on outbound deliveries.
const SignatureHeader = "X-Signature-SHA256"

// Sign computes the delivery signature for a payload: "sha256=" followed
// by the hex HMAC-SHA256 of the canonical JSON serialization. Receivers
// must canonicalize the same way (keys sorted, no whitespace) or the
// digest will not match.
func Sign(secret string, payload any) (string, error) {
	canonical, err := schema.CanonicalJSON(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether header is a valid signature for payload under
// secret. Comparison is constant-time.
func Verify(secret string, payload any, header string) bool {
	expected, err := Sign(secret, payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(header))
}
