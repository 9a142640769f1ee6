package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// SignatureHeader carries the HMAC of the request body.
	SignatureHeader = "X-Hub-Signature-256"

	// SignaturePrefix is the only accepted signature scheme.
	SignaturePrefix = "sha256="
)

// Verify reports whether header is a valid "sha256=<hex>" HMAC-SHA256 of body
// under secret.
//
// body must be the exact bytes received; any re-encoding changes the digest.
// The hex digests are compared with hmac.Equal, which is constant-time.
// An empty secret never verifies.
func Verify(secret, body []byte, header string) bool {
	if len(secret) == 0 || header == "" {
		return false
	}
	if !strings.HasPrefix(header, SignaturePrefix) {
		return false
	}

	received := strings.TrimPrefix(header, SignaturePrefix)
	expected := computeSignature(secret, body)

	return hmac.Equal([]byte(expected), []byte(received))
}

// Sign returns the X-Hub-Signature-256 header value for body.
func Sign(secret, body []byte) string {
	return SignaturePrefix + computeSignature(secret, body)
}

// computeSignature returns the lowercase hex HMAC-SHA256 of body.
func computeSignature(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
