package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature_RoundTrip(t *testing.T) {
	payloads := []string{
		`{"zen":"Keep it logically awesome."}`,
		"plain text body",
		strings.Repeat("x", 4096),
	}
	for _, p := range payloads {
		sig := Sign([]byte(p), "s3cret")
		assert.True(t, strings.HasPrefix(sig, "sha256="))
		assert.Len(t, sig, len("sha256=")+64)

		result := VerifySignature([]byte(p), sig, "s3cret")
		assert.True(t, result.Valid)
		assert.Empty(t, result.Error)
	}
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	payload := []byte(`{"action":"opened"}`)
	sig := Sign(payload, "s3cret")

	for i := range payload {
		tampered := make([]byte, len(payload))
		copy(tampered, payload)
		tampered[i] ^= 0x01

		result := VerifySignature(tampered, sig, "s3cret")
		assert.False(t, result.Valid, "flipped byte %d", i)
		assert.Equal(t, ReasonVerificationFailed, result.Error)
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"action":"opened"}`)

	result := VerifySignature(payload, Sign(payload, "other"), "s3cret")

	assert.False(t, result.Valid)
	assert.Equal(t, ReasonVerificationFailed, result.Error)
}

func TestVerifySignature_FailsFast(t *testing.T) {
	payload := []byte(`{}`)

	assert.Equal(t, ReasonMissingHeader, VerifySignature(payload, "", "s3cret").Error)
	assert.Equal(t, ReasonInvalidPayload, VerifySignature(nil, "sha256=abc", "s3cret").Error)
	assert.Equal(t, ReasonLengthMismatch, VerifySignature(payload, "sha256=abc", "s3cret").Error)
	assert.Equal(t, ReasonLengthMismatch, VerifySignature(payload, Sign(payload, "s3cret")+"0", "s3cret").Error)
}

func TestParseEventType(t *testing.T) {
	for _, e := range KnownEventTypes() {
		parsed, ok := ParseEventType(string(e))
		assert.True(t, ok)
		assert.Equal(t, e, parsed)
	}

	_, ok := ParseEventType("deployment")
	assert.False(t, ok)

	parsed, ok := ParseEventType(" Pull_Request ")
	assert.True(t, ok)
	assert.Equal(t, EventPullRequest, parsed)
}

func TestReviewTriggers(t *testing.T) {
	for _, a := range []string{"opened", "edited", "synchronize", "reopened", "ready_for_review"} {
		assert.True(t, IsReviewTrigger(a), a)
	}
	for _, a := range []string{"closed", "labeled", "assigned", ""} {
		assert.False(t, IsReviewTrigger(a), a)
	}
	assert.True(t, EventPullRequestReview.IsPullRequestKind())
	assert.False(t, EventIssues.IsPullRequestKind())
}
