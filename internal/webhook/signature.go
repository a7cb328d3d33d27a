package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const signaturePrefix = "sha256="

// Reasons a signature check can fail
const (
	ReasonMissingHeader      = "missing header"
	ReasonInvalidPayload     = "invalid payload"
	ReasonLengthMismatch     = "length mismatch"
	ReasonVerificationFailed = "verification failed"
)

// VerificationResult is the outcome of VerifySignature. Error is empty when
// Valid is true.
type VerificationResult struct {
	Valid bool
	Error string
}

// Sign returns the sha256=<hex> HMAC of payload under secret
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a X-Hub-Signature-256 header against payload.
// Missing input and length differences are rejected before the constant-time
// comparison.
func VerifySignature(payload []byte, header, secret string) VerificationResult {
	if header == "" {
		return VerificationResult{Error: ReasonMissingHeader}
	}
	if len(payload) == 0 {
		return VerificationResult{Error: ReasonInvalidPayload}
	}

	expected := Sign(payload, secret)
	if len(header) != len(expected) {
		return VerificationResult{Error: ReasonLengthMismatch}
	}
	if !hmac.Equal([]byte(header), []byte(expected)) {
		return VerificationResult{Error: ReasonVerificationFailed}
	}
	return VerificationResult{Valid: true}
}
