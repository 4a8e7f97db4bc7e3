package telephony

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Headers carrying Vapi webhook credentials.
const (
	HeaderVapiSignature = "X-Vapi-Signature"
	HeaderVapiSecret    = "X-Vapi-Secret"
)

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature (hex, optionally "sha256="-prefixed)
// against the raw request bytes. The body must not be re-serialized.
func VerifySignature(body []byte, signature, secret string) error {
	sig := strings.TrimSpace(signature)
	if sig == "" {
		return ErrMissingSignature
	}
	sig = strings.TrimPrefix(sig, "sha256=")
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifySharedSecret checks the plain shared-secret header Vapi can send
// instead of a signature.
func VerifySharedSecret(header, secret string) error {
	if header == "" {
		return ErrMissingSignature
	}
	if subtle.ConstantTimeCompare([]byte(header), []byte(secret)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
