// Package webhook implements the Outbound Webhook Dispatcher (C5): signed
// delivery with a per-integration FIFO retry queue, and the inverse
// signature verification path for incoming webhooks.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Payload is serialized with struct field order matching spec exactly:
// event, data, timestamp, webhookId. encoding/json preserves declared
// field order, which is what makes the signature byte-exact.
type Payload struct {
	Event     string `json:"event"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
	WebhookID string `json:"webhookId"`
}

// NewPayload builds a payload with the timestamp stamped at call time.
func NewPayload(event string, data any, webhookID string, at time.Time) Payload {
	return Payload{
		Event:     event,
		Data:      data,
		Timestamp: at.UTC().Format(time.RFC3339),
		WebhookID: webhookID,
	}
}

// Serialize produces the canonical bytes signatures are computed over:
// UTF-8 JSON, no extra whitespace, key order as declared on Payload.
func (p Payload) Serialize() ([]byte, error) {
	return json.Marshal(p)
}

// Sign computes the X-Webhook-Signature header value for a serialized
// payload under secret: "sha256=" followed by the lowercase hex HMAC-SHA256
// digest.
func Sign(serialized []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(serialized)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reverses Sign and reports whether signature matches serialized
// under secret. Comparison is constant-time over the full "sha256=<hex>"
// header string, via hmac.Equal.
func Verify(serialized []byte, signature string, secret string) bool {
	expected := Sign(serialized, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseSignatureHeader extracts the hex digest from a "sha256=<hex>" header
// value, returning an error if the scheme prefix is missing.
func ParseSignatureHeader(header string) (string, error) {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", fmt.Errorf("webhook signature header missing %q scheme", prefix)
	}
	return header[len(prefix):], nil
}
