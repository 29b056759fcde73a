// Package webhooks delivers corpus events to configured HTTP endpoints,
// signing every payload so receivers can authenticate it.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Delivery headers. The signature is an HMAC-SHA256 of the raw request body
// keyed by the endpoint secret, hex encoded behind a "sha256=" prefix, so
// receivers verify it the same way app servers verify signed platform
// webhooks.
const (
	HeaderEvent     = "X-Prepdesk-Event"
	HeaderDelivery  = "X-Prepdesk-Delivery"
	HeaderSignature = "X-Prepdesk-Signature"
)

// Sign computes the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a presented signature against body in constant time.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
