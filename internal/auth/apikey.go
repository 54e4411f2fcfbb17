package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const apiKeyPrefixLength = 8

// GenerateAPIKey returns a new random raw key and its digest. The raw key
// is shown to the caller exactly once (§6.2); only the digest and a short
// prefix (for display/lookup-by-eye purposes) are persisted.
func GenerateAPIKey() (raw, prefix, digest string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", err
	}
	raw = "gwk_" + hex.EncodeToString(buf)
	prefix = raw[:apiKeyPrefixLength]
	digest = DigestAPIKey(raw)
	return raw, prefix, digest, nil
}

// DigestAPIKey hashes a raw API key for storage/lookup (§4.2: digest-only
// storage — the raw key is never persisted).
func DigestAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEqualDigest compares two digests without leaking timing
// information, for callers that receive a digest from an untrusted source
// rather than looking it up by exact match.
func ConstantTimeEqualDigest(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ErrMalformedAPIKey is returned when a presented key doesn't look like one
// this gateway issued.
var ErrMalformedAPIKey = fmt.Errorf("auth: malformed api key")
